package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//GroupFilter narrows a listing of groups. Empty fields are not applied.
type GroupFilter struct {
	Name               string
	TypeID             *uuid.UUID
	AssignedFirmwareID *uuid.UUID
	OrderBy            []OrderBy
}

//GroupFields are the client controlled fields of a group. TypeID is fixed at creation and ignored by Update.
type GroupFields struct {
	Name               string
	TypeID             uuid.UUID
	AssignedFirmwareID *uuid.UUID
}

//GroupRepository persists device groups
type GroupRepository interface {
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Group, error)
	List(ctx context.Context, companyID uuid.UUID, filter GroupFilter, p Pagination) (*Page[models.Group], error)
	Create(ctx context.Context, companyID uuid.UUID, fields GroupFields) (*models.Group, error)
	Update(ctx context.Context, companyID, id uuid.UUID, fields GroupFields) (*models.Group, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) error
	BelongsTo(ctx context.Context, id uuid.UUID, owner Owner) (bool, error)
}

type groupRepo struct {
	db *gorm.DB
}

func (r *groupRepo) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Group, error) {
	g := &models.Group{}

	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return g, nil
}

func (r *groupRepo) List(ctx context.Context, companyID uuid.UUID, filter GroupFilter, p Pagination) (*Page[models.Group], error) {
	q := r.db.WithContext(ctx).Model(&models.Group{}).Where("company_id = ?", companyID)
	q = whereLike(q, "name", filter.Name)
	q = whereEqual(q, "type_id", filter.TypeID)
	q = whereEqual(q, "assigned_firmware_id", filter.AssignedFirmwareID)

	return paginate[models.Group](q, p, filter.OrderBy)
}

func (r *groupRepo) Create(ctx context.Context, companyID uuid.UUID, fields GroupFields) (*models.Group, error) {
	g := &models.Group{
		CompanyID:          companyID,
		Name:               fields.Name,
		TypeID:             fields.TypeID,
		AssignedFirmwareID: fields.AssignedFirmwareID,
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(g).Error; err != nil {
		return nil, translate(err)
	}

	return g, nil
}

func (r *groupRepo) Update(ctx context.Context, companyID, id uuid.UUID, fields GroupFields) (*models.Group, error) {
	g, err := r.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrNotFound
	}

	g.Name = fields.Name
	g.AssignedFirmwareID = fields.AssignedFirmwareID

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(g).Error; err != nil {
		return nil, translate(err)
	}

	return g, nil
}

func (r *groupRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).Delete(&models.Group{}).Error
	return translate(err)
}

func (r *groupRepo) BelongsTo(ctx context.Context, id uuid.UUID, owner Owner) (bool, error) {
	return belongsTo(r.db.WithContext(ctx), &models.Group{}, id, owner)
}
