package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//TagFilter narrows a listing of tags. Empty fields are not applied.
type TagFilter struct {
	Name    string
	Color   string
	TypeID  *uuid.UUID
	OrderBy []OrderBy
}

//TagFields are the client controlled fields of a tag. TypeID is fixed at creation and ignored by Update.
type TagFields struct {
	Name   string
	Color  string
	TypeID uuid.UUID
}

//TagRepository persists tags
type TagRepository interface {
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Tag, error)
	List(ctx context.Context, companyID uuid.UUID, filter TagFilter, p Pagination) (*Page[models.Tag], error)
	Create(ctx context.Context, companyID uuid.UUID, fields TagFields) (*models.Tag, error)
	Update(ctx context.Context, companyID, id uuid.UUID, fields TagFields) (*models.Tag, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) error
	BelongsTo(ctx context.Context, id uuid.UUID, owner Owner) (bool, error)
}

type tagRepo struct {
	db *gorm.DB
}

func (r *tagRepo) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Tag, error) {
	t := &models.Tag{}

	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (r *tagRepo) List(ctx context.Context, companyID uuid.UUID, filter TagFilter, p Pagination) (*Page[models.Tag], error) {
	q := r.db.WithContext(ctx).Model(&models.Tag{}).Where("company_id = ?", companyID)
	q = whereLike(q, "name", filter.Name)
	q = whereEqual(q, "color", filter.Color)
	q = whereEqual(q, "type_id", filter.TypeID)

	return paginate[models.Tag](q, p, filter.OrderBy)
}

func (r *tagRepo) Create(ctx context.Context, companyID uuid.UUID, fields TagFields) (*models.Tag, error) {
	t := &models.Tag{
		CompanyID: companyID,
		Name:      fields.Name,
		Color:     fields.Color,
		TypeID:    fields.TypeID,
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error; err != nil {
		return nil, translate(err)
	}

	return t, nil
}

func (r *tagRepo) Update(ctx context.Context, companyID, id uuid.UUID, fields TagFields) (*models.Tag, error) {
	t, err := r.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}

	t.Name = fields.Name
	t.Color = fields.Color

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(t).Error; err != nil {
		return nil, translate(err)
	}

	return t, nil
}

func (r *tagRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).Delete(&models.Tag{}).Error
	return translate(err)
}

func (r *tagRepo) BelongsTo(ctx context.Context, id uuid.UUID, owner Owner) (bool, error) {
	return belongsTo(r.db.WithContext(ctx), &models.Tag{}, id, owner)
}

