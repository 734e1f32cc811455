package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//FirmwareFilter narrows a listing of firmware. Empty fields are not applied.
type FirmwareFilter struct {
	Name         string
	Version      string
	SerialNumber string
	TypeID       *uuid.UUID
	OrderBy      []OrderBy
}

//FirmwareFields are the client controlled metadata fields of a firmware
type FirmwareFields struct {
	Name         string
	Version      string
	Description  *string
	SerialNumber string
}

//FirmwareRepository persists firmware metadata. Rows start out pending and only become
//visible to reads, listings and ownership checks once marked ready.
type FirmwareRepository interface {
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.FirmwareInfo, error)
	List(ctx context.Context, companyID uuid.UUID, filter FirmwareFilter, p Pagination) (*Page[models.FirmwareInfo], error)
	CreatePending(ctx context.Context, companyID, typeID uuid.UUID, fields FirmwareFields) (*models.FirmwareInfo, error)
	MarkReady(ctx context.Context, companyID, id uuid.UUID, size int64, checksum string) (*models.FirmwareInfo, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.FirmwareInfo, error)
	ListIDsOfType(ctx context.Context, companyID, typeID uuid.UUID) ([]uuid.UUID, error)
	Update(ctx context.Context, companyID, id uuid.UUID, fields FirmwareFields) (*models.FirmwareInfo, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) error
	BelongsTo(ctx context.Context, id uuid.UUID, owner Owner) (bool, error)
}

type firmwareRepo struct {
	db *gorm.DB
}

func (r *firmwareRepo) ready(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.FirmwareInfo{}).Where("state = ?", models.FirmwareReady)
}

func (r *firmwareRepo) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.FirmwareInfo, error) {
	f := &models.FirmwareInfo{}

	err := r.ready(ctx).Where("company_id = ? AND id = ?", companyID, id).First(f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (r *firmwareRepo) List(ctx context.Context, companyID uuid.UUID, filter FirmwareFilter, p Pagination) (*Page[models.FirmwareInfo], error) {
	q := r.ready(ctx).Where("company_id = ?", companyID)
	q = whereLike(q, "name", filter.Name)
	q = whereLike(q, "version", filter.Version)
	q = whereLike(q, "serial_number", filter.SerialNumber)
	q = whereEqual(q, "type_id", filter.TypeID)

	return paginate[models.FirmwareInfo](q, p, filter.OrderBy)
}

func (r *firmwareRepo) CreatePending(ctx context.Context, companyID, typeID uuid.UUID, fields FirmwareFields) (*models.FirmwareInfo, error) {
	f := &models.FirmwareInfo{
		CompanyID:    companyID,
		TypeID:       typeID,
		Name:         fields.Name,
		Version:      fields.Version,
		Description:  fields.Description,
		SerialNumber: fields.SerialNumber,
		State:        models.FirmwarePending,
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(f).Error; err != nil {
		return nil, translate(err)
	}

	return f, nil
}

func (r *firmwareRepo) MarkReady(ctx context.Context, companyID, id uuid.UUID, size int64, checksum string) (*models.FirmwareInfo, error) {
	f := &models.FirmwareInfo{}

	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	f.State = models.FirmwareReady
	f.Size = size
	f.Checksum = checksum

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(f).Error; err != nil {
		return nil, translate(err)
	}

	return f, nil
}

func (r *firmwareRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.FirmwareInfo, error) {
	stale := []models.FirmwareInfo{}

	err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", models.FirmwarePending, olderThan).
		Order("created_at").
		Limit(limit).
		Find(&stale).Error

	return stale, err
}

//ListIDsOfType returns every firmware of a type, pending ones included
func (r *firmwareRepo) ListIDsOfType(ctx context.Context, companyID, typeID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}

	err := r.db.WithContext(ctx).Model(&models.FirmwareInfo{}).
		Where("company_id = ? AND type_id = ?", companyID, typeID).
		Pluck("id", &ids).Error

	return ids, err
}

func (r *firmwareRepo) Update(ctx context.Context, companyID, id uuid.UUID, fields FirmwareFields) (*models.FirmwareInfo, error) {
	f, err := r.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrNotFound
	}

	f.Name = fields.Name
	f.Version = fields.Version
	f.Description = fields.Description
	f.SerialNumber = fields.SerialNumber

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(f).Error; err != nil {
		return nil, translate(err)
	}

	return f, nil
}

//Delete removes the metadata regardless of its state
func (r *firmwareRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).Delete(&models.FirmwareInfo{}).Error
	return translate(err)
}

func (r *firmwareRepo) BelongsTo(ctx context.Context, id uuid.UUID, owner Owner) (bool, error) {
	return belongsTo(r.ready(ctx), &models.FirmwareInfo{}, id, owner)
}
