package services

import (
	"context"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/events"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/blobstore"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
)

//Services bundles the entity services that make up the registry
type Services struct {
	Types       *TypeService
	Groups      *GroupService
	Devices     *DeviceService
	Tags        *TagService
	Firmware    *FirmwareService
	Deployments *DeploymentService
}

//New wires the entity services to a datastore, a blob store and an event publisher
func New(db database.Datastore, store blobstore.Store, publisher *events.Publisher, log logging.Logger) *Services {
	return &Services{
		Types:       &TypeService{db: db, store: store, log: log},
		Groups:      &GroupService{db: db},
		Devices:     &DeviceService{db: db, publisher: publisher, now: time.Now},
		Tags:        &TagService{db: db},
		Firmware:    &FirmwareService{db: db, store: store, publisher: publisher, log: log},
		Deployments: &DeploymentService{db: db, publisher: publisher, now: time.Now},
	}
}

//inUnitOfWork runs fn against a fresh unit of work and commits it when fn succeeds.
//Any failure rolls back every write made through the unit of work.
func inUnitOfWork[T any](ctx context.Context, db database.Datastore, fn func(database.UnitOfWork) (T, error)) (T, error) {
	var zero T

	uow, err := db.Begin(ctx)
	if err != nil {
		return zero, err
	}
	defer uow.Rollback()

	result, err := fn(uow)
	if err != nil {
		return zero, translate(err)
	}

	if err := uow.Commit(); err != nil {
		return zero, translate(err)
	}

	return result, nil
}

func requireType(ctx context.Context, repos database.Repositories, companyID, typeID uuid.UUID) error {
	ok, err := repos.Types().BelongsTo(ctx, typeID, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{ID: typeID}
	}
	return nil
}

func requireGroup(ctx context.Context, repos database.Repositories, owner database.Owner, groupID *uuid.UUID) error {
	if groupID == nil {
		return nil
	}

	ok, err := repos.Groups().BelongsTo(ctx, *groupID, owner)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{ID: *groupID}
	}
	return nil
}

func requireFirmware(ctx context.Context, repos database.Repositories, owner database.Owner, firmwareID *uuid.UUID) error {
	if firmwareID == nil {
		return nil
	}

	ok, err := repos.Firmware().BelongsTo(ctx, *firmwareID, owner)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{ID: *firmwareID}
	}
	return nil
}

func requireTags(ctx context.Context, repos database.Repositories, owner database.Owner, tagIDs []uuid.UUID) error {
	for _, tagID := range tagIDs {
		ok, err := repos.Tags().BelongsTo(ctx, tagID, owner)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{ID: tagID}
		}
	}
	return nil
}

const maxTextLength = 255

func requireText(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	return limitText(field, &value, maxTextLength)
}

func limitText(field string, value *string, max int) error {
	if value != nil && utf8.RuneCountInString(*value) > max {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
