package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

//GroupService manages device groups
type GroupService struct {
	db database.Datastore
}

func (s *GroupService) validateReferences(ctx context.Context, repos database.Repositories, companyID uuid.UUID, fields database.GroupFields) error {
	if err := requireType(ctx, repos, companyID, fields.TypeID); err != nil {
		return err
	}

	owner := database.Owner{CompanyID: companyID, TypeID: fields.TypeID}
	return requireFirmware(ctx, repos, owner, fields.AssignedFirmwareID)
}

func (s *GroupService) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Group, error) {
	g, err := s.db.Groups().GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &NotFoundError{ID: id}
	}
	return g, nil
}

func (s *GroupService) List(ctx context.Context, companyID uuid.UUID, filter database.GroupFilter, p database.Pagination) (*database.Page[models.Group], error) {
	return s.db.Groups().List(ctx, companyID, filter, p)
}

func (s *GroupService) Create(ctx context.Context, companyID uuid.UUID, fields database.GroupFields) (*models.Group, error) {
	if err := requireText("name", fields.Name); err != nil {
		return nil, err
	}

	return inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Group, error) {
		if err := s.validateReferences(ctx, uow, companyID, fields); err != nil {
			return nil, err
		}
		return uow.Groups().Create(ctx, companyID, fields)
	})
}

//Update renames a group or changes its assigned firmware. The type of a group never changes.
func (s *GroupService) Update(ctx context.Context, companyID, id uuid.UUID, fields database.GroupFields) (*models.Group, error) {
	if err := requireText("name", fields.Name); err != nil {
		return nil, err
	}

	g, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Group, error) {
		current, err := uow.Groups().GetByID(ctx, companyID, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, database.ErrNotFound
		}

		owner := database.Owner{CompanyID: companyID, TypeID: current.TypeID}
		if err := requireFirmware(ctx, uow, owner, fields.AssignedFirmwareID); err != nil {
			return nil, err
		}
		return uow.Groups().Update(ctx, companyID, id, fields)
	})

	return g, notFoundIfMissing(err, id)
}

//Delete removes a group. Groups that still have devices cannot be deleted.
func (s *GroupService) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	_, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (struct{}, error) {
		return struct{}{}, uow.Groups().Delete(ctx, companyID, id)
	})
	return err
}
