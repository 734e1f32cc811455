package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//Repositories gives access to one fresh instance of every entity repository
type Repositories interface {
	Types() TypeRepository
	Groups() GroupRepository
	Devices() DeviceRepository
	Firmware() FirmwareRepository
	Tags() TagRepository
	Deployments() DeploymentRepository
}

//Datastore is an interface that is used to inject the database into different services to improve testability.
//Repositories obtained directly from the Datastore run outside of any transaction, use Begin to get a UnitOfWork.
type Datastore interface {
	Repositories

	Begin(ctx context.Context) (UnitOfWork, error)
	Ping(ctx context.Context) error
	Close() error
}

type repositories struct {
	impl *gorm.DB
}

func (r repositories) Types() TypeRepository {
	return &typeRepo{db: r.impl}
}

func (r repositories) Groups() GroupRepository {
	return &groupRepo{db: r.impl}
}

func (r repositories) Devices() DeviceRepository {
	return &deviceRepo{db: r.impl}
}

func (r repositories) Firmware() FirmwareRepository {
	return &firmwareRepo{db: r.impl}
}

func (r repositories) Tags() TagRepository {
	return &tagRepo{db: r.impl}
}

func (r repositories) Deployments() DeploymentRepository {
	return &deploymentRepo{db: r.impl}
}

type myDB struct {
	repositories
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

func gormConfig(debug bool) *gorm.Config {
	level := logger.Silent
	if debug {
		level = logger.Info
	}

	return &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

//NewPostgreSQLConnector opens a connection to a postgresql database, retrying until the server answers
func NewPostgreSQLConnector(dsn string, debug bool, log logging.Logger) ConnectorFunc {
	return func() (*gorm.DB, error) {
		for {
			log.Infof("Connecting to database ...")
			db, err := gorm.Open(postgres.Open(dsn), gormConfig(debug))
			if err == nil {
				return db, nil
			}

			log.Errorf("Failed to connect to database %s", err.Error())
			time.Sleep(3 * time.Second)
		}
	}
}

//NewSQLiteConnector opens a connection to a private, in-memory sqlite database
func NewSQLiteConnector() ConnectorFunc {
	return func() (*gorm.DB, error) {
		name := strings.ReplaceAll(uuid.NewString(), "-", "")
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)

		db, err := gorm.Open(sqlite.Open(dsn), gormConfig(false))
		if err != nil {
			return nil, err
		}

		// a single connection keeps the shared cache database alive and serialises transactions
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)

		db.Exec("PRAGMA foreign_keys = ON")

		return db, nil
	}
}

//NewDatabaseConnection initializes a new connection to the database and wraps it in a Datastore
func NewDatabaseConnection(connect ConnectorFunc, log logging.Logger) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(
		&models.Type{},
		&models.FirmwareInfo{},
		&models.Group{},
		&models.Tag{},
		&models.Device{},
		&models.DeviceTag{},
		&models.Deployment{},
		&models.DeploymentTask{},
		&models.DeploymentTaskLog{},
	)
	if err != nil {
		log.Errorf("Failed to migrate database schema: %s", err.Error())
		return nil, err
	}

	return &myDB{repositories{impl: impl}}, nil
}

func (db *myDB) Begin(ctx context.Context) (UnitOfWork, error) {
	tx := db.impl.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	return &unitOfWork{repositories: repositories{impl: tx}, tx: tx}, nil
}

func (db *myDB) Ping(ctx context.Context) error {
	sqlDB, err := db.impl.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (db *myDB) Close() error {
	sqlDB, err := db.impl.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
