package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//TypeFilter narrows a listing of types. Empty fields are not applied.
type TypeFilter struct {
	Name    string
	OrderBy []OrderBy
}

//TypeFields are the client controlled fields of a type
type TypeFields struct {
	Name        string
	Description *string
}

//TypeRepository persists device types
type TypeRepository interface {
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Type, error)
	List(ctx context.Context, companyID uuid.UUID, filter TypeFilter, p Pagination) (*Page[models.Type], error)
	Create(ctx context.Context, companyID uuid.UUID, fields TypeFields) (*models.Type, error)
	Update(ctx context.Context, companyID, id uuid.UUID, fields TypeFields) (*models.Type, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) error
	BelongsTo(ctx context.Context, id, companyID uuid.UUID) (bool, error)
}

type typeRepo struct {
	db *gorm.DB
}

func (r *typeRepo) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Type, error) {
	t := &models.Type{}

	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (r *typeRepo) List(ctx context.Context, companyID uuid.UUID, filter TypeFilter, p Pagination) (*Page[models.Type], error) {
	q := r.db.WithContext(ctx).Model(&models.Type{}).Where("company_id = ?", companyID)
	q = whereLike(q, "name", filter.Name)

	return paginate[models.Type](q, p, filter.OrderBy)
}

func (r *typeRepo) Create(ctx context.Context, companyID uuid.UUID, fields TypeFields) (*models.Type, error) {
	t := &models.Type{
		CompanyID:   companyID,
		Name:        fields.Name,
		Description: fields.Description,
		SecretKey:   uuid.New(),
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error; err != nil {
		return nil, translate(err)
	}

	return t, nil
}

func (r *typeRepo) Update(ctx context.Context, companyID, id uuid.UUID, fields TypeFields) (*models.Type, error) {
	t, err := r.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}

	t.Name = fields.Name
	t.Description = fields.Description

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(t).Error; err != nil {
		return nil, translate(err)
	}

	return t, nil
}

func (r *typeRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).Delete(&models.Type{}).Error
	return translate(err)
}

func (r *typeRepo) BelongsTo(ctx context.Context, id, companyID uuid.UUID) (bool, error) {
	return belongsTo(r.db.WithContext(ctx), &models.Type{}, id, Owner{CompanyID: companyID})
}
