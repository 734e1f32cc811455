package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

//TagService manages the labels devices can carry
type TagService struct {
	db database.Datastore
}

func prepareTag(fields *database.TagFields) error {
	if err := requireText("name", fields.Name); err != nil {
		return err
	}

	if fields.Color == "" {
		fields.Color = models.DefaultTagColor
	}
	if !colorPattern.MatchString(fields.Color) {
		return &ValidationError{Field: "color", Message: "must be a color in #RRGGBB notation"}
	}

	return nil
}

func (s *TagService) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Tag, error) {
	t, err := s.db.Tags().GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &NotFoundError{ID: id}
	}
	return t, nil
}

func (s *TagService) List(ctx context.Context, companyID uuid.UUID, filter database.TagFilter, p database.Pagination) (*database.Page[models.Tag], error) {
	return s.db.Tags().List(ctx, companyID, filter, p)
}

func (s *TagService) Create(ctx context.Context, companyID uuid.UUID, fields database.TagFields) (*models.Tag, error) {
	if err := prepareTag(&fields); err != nil {
		return nil, err
	}

	return inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Tag, error) {
		if err := requireType(ctx, uow, companyID, fields.TypeID); err != nil {
			return nil, err
		}
		return uow.Tags().Create(ctx, companyID, fields)
	})
}

//Update changes the name and color of a tag, its type is kept
func (s *TagService) Update(ctx context.Context, companyID, id uuid.UUID, fields database.TagFields) (*models.Tag, error) {
	if err := prepareTag(&fields); err != nil {
		return nil, err
	}

	t, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Tag, error) {
		return uow.Tags().Update(ctx, companyID, id, fields)
	})

	return t, notFoundIfMissing(err, id)
}

//Delete removes a tag and detaches it from every device carrying it
func (s *TagService) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	_, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (struct{}, error) {
		return struct{}{}, uow.Tags().Delete(ctx, companyID, id)
	})
	return err
}
