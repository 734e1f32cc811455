package main

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/auth"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/events"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/services"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/blobstore"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/ratelimit"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
)

func main() {

	serviceName := "fleet-registry"

	cfg, envLoaded := config.Load(serviceName)

	log := logging.NewLoggerWithLevel(cfg.LogLevel)
	log.Infof("Starting up %s ...", serviceName)

	if envLoaded {
		log.Infof("Loaded settings from .env")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %s", err.Error())
	}

	connector := database.NewPostgreSQLConnector(cfg.PostgresDSN(), cfg.Debug, log)
	if cfg.DBHost == "" {
		log.Warnf("FLEET_DB_HOST is not set, using a transient in-memory database")
		connector = database.NewSQLiteConnector()
	}

	db, err := database.NewDatabaseConnection(connector, log)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %s", err.Error())
	}
	defer db.Close()

	store := blobstore.NewMemoryStore()
	if cfg.S3Endpoint != "" {
		store, err = blobstore.NewMinioStore(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, log)
		if err != nil {
			log.Fatalf("Failed to connect to the object store: %s", err.Error())
		}
	} else {
		log.Warnf("FLEET_S3_ENDPOINT is not set, firmware binaries are kept in memory")
	}

	counter := ratelimit.NewMemoryCounter()
	if addr := cfg.RedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.RedisDB})
		defer client.Close()

		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Warnf("Redis at %s is not reachable yet: %s", addr, err.Error())
		}
		counter = ratelimit.NewRedisCounter(client)
	}
	limiter := ratelimit.NewLimiter(counter, cfg.RateLimitTimes, cfg.RateLimitWindow)

	var messenger events.MessagingContext
	msgCtx, err := messaging.Initialize(messaging.LoadConfiguration(serviceName))
	if err != nil {
		log.Warnf("Failed to initialize messaging, events will not be published: %s", err.Error())
	} else {
		defer msgCtx.Close()
		messenger = msgCtx
	}

	svc := services.New(db, store, events.NewPublisher(messenger, log), log)

	sweeper := services.NewFirmwareSweeper(db, store, cfg.FirmwarePendingTTL, log)
	go sweeper.Run(context.Background(), cfg.FirmwareSweepInterval)

	application.CreateRouterAndStartServing(log, cfg, svc, auth.NewVerifier(cfg.JWTSecret), limiter)
}
