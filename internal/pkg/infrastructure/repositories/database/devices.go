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

//DeviceFilter narrows a listing of devices. Empty fields are not applied.
type DeviceFilter struct {
	Name         string
	SerialNumber string
	TypeID       *uuid.UUID
	GroupID      *uuid.UUID
	FirmwareID   *uuid.UUID
	TagID        *uuid.UUID
	OrderBy      []OrderBy
}

//DeviceFields are the client controlled fields of a device
type DeviceFields struct {
	Name         string
	SerialNumber string
	Description  *string
	RegisteredAt *time.Time
	LastSeenAt   *time.Time
	TypeID       uuid.UUID
	GroupID      *uuid.UUID
	FirmwareID   *uuid.UUID
	TagIDs       []uuid.UUID
}

//DeviceRepository persists devices and their tag associations
type DeviceRepository interface {
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Device, error)
	List(ctx context.Context, companyID uuid.UUID, filter DeviceFilter, p Pagination) (*Page[models.Device], error)
	ListIDsInGroup(ctx context.Context, companyID, groupID uuid.UUID) ([]uuid.UUID, error)
	Create(ctx context.Context, companyID uuid.UUID, fields DeviceFields) (*models.Device, error)
	Update(ctx context.Context, companyID, id uuid.UUID, fields DeviceFields) (*models.Device, error)
	SetFirmware(ctx context.Context, companyID, id, firmwareID uuid.UUID) error
	Delete(ctx context.Context, companyID, id uuid.UUID) error
	BelongsTo(ctx context.Context, id uuid.UUID, owner Owner) (bool, error)
}

type deviceRepo struct {
	db *gorm.DB
}

func (r *deviceRepo) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Device, error) {
	d := models.Device{}

	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	devices := []models.Device{d}
	if err := r.loadTags(ctx, devices); err != nil {
		return nil, err
	}

	return &devices[0], nil
}

func (r *deviceRepo) List(ctx context.Context, companyID uuid.UUID, filter DeviceFilter, p Pagination) (*Page[models.Device], error) {
	q := r.db.WithContext(ctx).Model(&models.Device{}).Where("company_id = ?", companyID)
	q = whereLike(q, "name", filter.Name)
	q = whereEqual(q, "serial_number", filter.SerialNumber)
	q = whereEqual(q, "type_id", filter.TypeID)
	q = whereEqual(q, "group_id", filter.GroupID)
	q = whereEqual(q, "firmware_id", filter.FirmwareID)

	if filter.TagID != nil {
		tagged := r.db.Model(&models.DeviceTag{}).Select("device_id").Where("tag_id = ?", *filter.TagID)
		q = q.Where("id IN (?)", tagged)
	}

	page, err := paginate[models.Device](q, p, filter.OrderBy)
	if err != nil {
		return nil, err
	}

	if err := r.loadTags(ctx, page.Items); err != nil {
		return nil, err
	}

	return page, nil
}

func (r *deviceRepo) ListIDsInGroup(ctx context.Context, companyID, groupID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}

	err := r.db.WithContext(ctx).Model(&models.Device{}).
		Where("company_id = ? AND group_id = ?", companyID, groupID).
		Order("created_at").Order("id").
		Pluck("id", &ids).Error

	return ids, err
}

func (r *deviceRepo) Create(ctx context.Context, companyID uuid.UUID, fields DeviceFields) (*models.Device, error) {
	d := &models.Device{CompanyID: companyID}
	fields.applyTo(d)

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(d).Error; err != nil {
		return nil, translate(err)
	}

	if err := r.replaceTags(ctx, d.ID, fields.TagIDs); err != nil {
		return nil, err
	}
	d.TagIDs = uniqueIDs(fields.TagIDs)

	return d, nil
}

func (r *deviceRepo) Update(ctx context.Context, companyID, id uuid.UUID, fields DeviceFields) (*models.Device, error) {
	d, err := r.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNotFound
	}

	fields.applyTo(d)

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(d).Error; err != nil {
		return nil, translate(err)
	}

	if err := r.replaceTags(ctx, d.ID, fields.TagIDs); err != nil {
		return nil, err
	}
	d.TagIDs = uniqueIDs(fields.TagIDs)

	return d, nil
}

func (r *deviceRepo) SetFirmware(ctx context.Context, companyID, id, firmwareID uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&models.Device{}).
		Where("company_id = ? AND id = ?", companyID, id).
		Update("firmware_id", firmwareID).Error
	return translate(err)
}

func (r *deviceRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).Delete(&models.Device{}).Error
	return translate(err)
}

func (r *deviceRepo) BelongsTo(ctx context.Context, id uuid.UUID, owner Owner) (bool, error) {
	return belongsTo(r.db.WithContext(ctx), &models.Device{}, id, owner)
}

func (fields DeviceFields) applyTo(d *models.Device) {
	d.Name = fields.Name
	d.SerialNumber = fields.SerialNumber
	d.Description = fields.Description
	d.RegisteredAt = fields.RegisteredAt
	d.LastSeenAt = fields.LastSeenAt
	d.TypeID = fields.TypeID
	d.GroupID = fields.GroupID
	d.FirmwareID = fields.FirmwareID
}

func (r *deviceRepo) replaceTags(ctx context.Context, deviceID uuid.UUID, tagIDs []uuid.UUID) error {
	db := r.db.WithContext(ctx)

	if err := db.Where("device_id = ?", deviceID).Delete(&models.DeviceTag{}).Error; err != nil {
		return translate(err)
	}

	ids := uniqueIDs(tagIDs)
	if len(ids) == 0 {
		return nil
	}

	links := make([]models.DeviceTag, 0, len(ids))
	for _, tagID := range ids {
		links = append(links, models.DeviceTag{DeviceID: deviceID, TagID: tagID})
	}

	return translate(db.Omit(clause.Associations).Create(&links).Error)
}

func (r *deviceRepo) loadTags(ctx context.Context, devices []models.Device) error {
	if len(devices) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]int, len(devices))
	ids := make([]uuid.UUID, 0, len(devices))
	for i := range devices {
		devices[i].TagIDs = []uuid.UUID{}
		index[devices[i].ID] = i
		ids = append(ids, devices[i].ID)
	}

	links := []models.DeviceTag{}
	err := r.db.WithContext(ctx).Where("device_id IN ?", ids).Order("tag_id").Find(&links).Error
	if err != nil {
		return err
	}

	for _, link := range links {
		i := index[link.DeviceID]
		devices[i].TagIDs = append(devices[i].TagIDs, link.TagID)
	}

	return nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))

	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	return unique
}
