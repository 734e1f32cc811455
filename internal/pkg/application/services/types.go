package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/blobstore"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

//TypeService manages device types. Deleting a type removes everything of that type, unless a
//deployment still rolls out firmware of it.
type TypeService struct {
	db    database.Datastore
	store blobstore.Store
	log   logging.Logger
}

func validateType(fields database.TypeFields) error {
	if err := requireText("name", fields.Name); err != nil {
		return err
	}
	return limitText("description", fields.Description, 1000)
}

func (s *TypeService) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Type, error) {
	t, err := s.db.Types().GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &NotFoundError{ID: id}
	}
	return t, nil
}

func (s *TypeService) List(ctx context.Context, companyID uuid.UUID, filter database.TypeFilter, p database.Pagination) (*database.Page[models.Type], error) {
	return s.db.Types().List(ctx, companyID, filter, p)
}

func (s *TypeService) Create(ctx context.Context, companyID uuid.UUID, fields database.TypeFields) (*models.Type, error) {
	if err := validateType(fields); err != nil {
		return nil, err
	}

	return inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Type, error) {
		return uow.Types().Create(ctx, companyID, fields)
	})
}

func (s *TypeService) Update(ctx context.Context, companyID, id uuid.UUID, fields database.TypeFields) (*models.Type, error) {
	if err := validateType(fields); err != nil {
		return nil, err
	}

	t, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Type, error) {
		return uow.Types().Update(ctx, companyID, id, fields)
	})

	return t, notFoundIfMissing(err, id)
}

//Delete removes a type together with its groups, devices, tags and firmware. The firmware
//binaries are removed from the blob store once the delete has been committed.
func (s *TypeService) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	firmwareIDs, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) ([]uuid.UUID, error) {
		ids, err := uow.Firmware().ListIDsOfType(ctx, companyID, id)
		if err != nil {
			return nil, err
		}
		return ids, uow.Types().Delete(ctx, companyID, id)
	})
	if err != nil {
		return err
	}

	for _, firmwareID := range firmwareIDs {
		if err := s.store.Delete(ctx, companyID, firmwareID); err != nil {
			s.log.Warnf("Failed to remove object of firmware %s: %s", firmwareID, err.Error())
		}
	}

	return nil
}
