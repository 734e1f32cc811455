package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/events"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

//DeviceService manages registered devices
type DeviceService struct {
	db        database.Datastore
	publisher *events.Publisher
	now       func() time.Time
}

func validateDevice(fields database.DeviceFields) error {
	if err := requireText("name", fields.Name); err != nil {
		return err
	}
	if err := requireText("serial_number", fields.SerialNumber); err != nil {
		return err
	}
	return limitText("description", fields.Description, maxTextLength)
}

//validateReferences checks type, group, firmware and tags in that order. Everything a
//device references must belong to the caller's tenant and share the device's type.
func (s *DeviceService) validateReferences(ctx context.Context, repos database.Repositories, companyID uuid.UUID, fields database.DeviceFields) error {
	if err := requireType(ctx, repos, companyID, fields.TypeID); err != nil {
		return err
	}

	owner := database.Owner{CompanyID: companyID, TypeID: fields.TypeID}

	if err := requireGroup(ctx, repos, owner, fields.GroupID); err != nil {
		return err
	}
	if err := requireFirmware(ctx, repos, owner, fields.FirmwareID); err != nil {
		return err
	}
	return requireTags(ctx, repos, owner, fields.TagIDs)
}

func (s *DeviceService) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Device, error) {
	d, err := s.db.Devices().GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{ID: id}
	}
	return d, nil
}

func (s *DeviceService) List(ctx context.Context, companyID uuid.UUID, filter database.DeviceFilter, p database.Pagination) (*database.Page[models.Device], error) {
	return s.db.Devices().List(ctx, companyID, filter, p)
}

func (s *DeviceService) Create(ctx context.Context, companyID uuid.UUID, fields database.DeviceFields) (*models.Device, error) {
	if err := validateDevice(fields); err != nil {
		return nil, err
	}

	if fields.RegisteredAt == nil {
		now := s.now().UTC()
		fields.RegisteredAt = &now
	}

	d, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Device, error) {
		if err := s.validateReferences(ctx, uow, companyID, fields); err != nil {
			return nil, err
		}
		return uow.Devices().Create(ctx, companyID, fields)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.DeviceCreated, companyID, d.ID)
	return d, nil
}

func (s *DeviceService) Update(ctx context.Context, companyID, id uuid.UUID, fields database.DeviceFields) (*models.Device, error) {
	if err := validateDevice(fields); err != nil {
		return nil, err
	}

	d, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Device, error) {
		if err := s.validateReferences(ctx, uow, companyID, fields); err != nil {
			return nil, err
		}

		existing, err := uow.Devices().GetByID(ctx, companyID, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, &NotFoundError{ID: id}
		}
		if fields.RegisteredAt == nil {
			fields.RegisteredAt = existing.RegisteredAt
		}

		return uow.Devices().Update(ctx, companyID, id, fields)
	})
	if err != nil {
		return nil, notFoundIfMissing(err, id)
	}

	s.publisher.Publish(events.DeviceUpdated, companyID, d.ID)
	return d, nil
}

func (s *DeviceService) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	deleted, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (bool, error) {
		existing, err := uow.Devices().GetByID(ctx, companyID, id)
		if err != nil || existing == nil {
			return false, err
		}
		return true, uow.Devices().Delete(ctx, companyID, id)
	})
	if err != nil {
		return err
	}

	if deleted {
		s.publisher.Publish(events.DeviceDeleted, companyID, id)
	}
	return nil
}
