package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

//Config holds every setting the service reads from its environment. It is loaded once at
//start up and never modified afterwards.
type Config struct {
	ServiceName string
	ServiceHost string
	ServicePort string
	Debug       bool
	LogLevel    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBSchema   string

	RedisHost string
	RedisPort string
	RedisDB   int

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	JWTSecret string

	RateLimitTimes  int
	RateLimitWindow time.Duration

	FirmwarePendingTTL    time.Duration
	FirmwareSweepInterval time.Duration
}

//Load reads an optional .env file and then builds a Config from the environment. A missing
//.env file is not an error, the variables may have been set by other means.
func Load(serviceName string) (*Config, bool) {
	envLoaded := godotenv.Load() == nil

	cfg := &Config{
		ServiceName: serviceName,
		ServiceHost: getEnv("SERVICE_HOST", ""),
		ServicePort: getEnv("SERVICE_PORT", "8880"),
		Debug:       getEnvBool("FLEET_DEBUG", false),
		LogLevel:    getEnv("FLEET_LOG_LEVEL", "info"),

		DBHost:     os.Getenv("FLEET_DB_HOST"),
		DBPort:     getEnv("FLEET_DB_PORT", "5432"),
		DBUser:     os.Getenv("FLEET_DB_USER"),
		DBPassword: os.Getenv("FLEET_DB_PASSWORD"),
		DBName:     getEnv("FLEET_DB_NAME", "fleet"),
		DBSSLMode:  getEnv("FLEET_DB_SSLMODE", "require"),
		DBSchema:   getEnv("FLEET_DB_SCHEMA", "public"),

		RedisHost: getEnv("FLEET_REDIS_HOST", ""),
		RedisPort: getEnv("FLEET_REDIS_PORT", "6379"),
		RedisDB:   getEnvInt("FLEET_REDIS_DB", 0),

		S3Endpoint:  os.Getenv("FLEET_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("FLEET_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("FLEET_S3_SECRET_KEY"),
		S3UseSSL:    getEnvBool("FLEET_S3_USE_SSL", false),

		JWTSecret: os.Getenv("FLEET_JWT_SECRET"),

		RateLimitTimes:  getEnvInt("FLEET_RATE_LIMIT_TIMES", 100),
		RateLimitWindow: time.Duration(getEnvInt("FLEET_RATE_LIMIT_SECONDS", 60)) * time.Second,

		FirmwarePendingTTL:    getEnvDuration("FLEET_FIRMWARE_PENDING_TTL", 30*time.Minute),
		FirmwareSweepInterval: getEnvDuration("FLEET_FIRMWARE_SWEEP_INTERVAL", 5*time.Minute),
	}

	return cfg, envLoaded
}

//Validate reports settings that the service cannot start without
func (cfg *Config) Validate() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("FLEET_JWT_SECRET must be set")
	}
	if cfg.RateLimitTimes <= 0 || cfg.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit must allow at least one request per window (got %d per %s)", cfg.RateLimitTimes, cfg.RateLimitWindow)
	}
	if cfg.FirmwarePendingTTL <= 0 {
		return fmt.Errorf("FLEET_FIRMWARE_PENDING_TTL must be positive (got %s)", cfg.FirmwarePendingTTL)
	}
	if cfg.FirmwareSweepInterval <= 0 {
		return fmt.Errorf("FLEET_FIRMWARE_SWEEP_INTERVAL must be positive (got %s)", cfg.FirmwareSweepInterval)
	}
	return nil
}

//PostgresDSN builds the connection string used by the postgres connector
func (cfg *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s sslmode=%s password=%s search_path=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBName, cfg.DBSSLMode, cfg.DBPassword, cfg.DBSchema,
	)
}

//RedisAddr returns host:port of the redis server, or an empty string when redis is not configured
func (cfg *Config) RedisAddr() string {
	if cfg.RedisHost == "" {
		return ""
	}
	return cfg.RedisHost + ":" + cfg.RedisPort
}

//ListenAddr is the address the HTTP server binds to
func (cfg *Config) ListenAddr() string {
	return cfg.ServiceHost + ":" + cfg.ServicePort
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}
