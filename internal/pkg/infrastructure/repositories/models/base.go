package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

//Base carries the surface identity and timestamps shared by every tenant owned row
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

//BeforeCreate assigns a random id to rows that are inserted without one
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

//Type is a tenant defined device category that scopes groups, devices, tags and firmware
type Type struct {
	Base
	CompanyID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_types_company_name,priority:1"`
	Name        string    `gorm:"size:255;not null;uniqueIndex:idx_types_company_name,priority:2"`
	Description *string   `gorm:"size:1000"`
	SecretKey   uuid.UUID `gorm:"type:uuid;not null"`
}

//Group is a named collection of devices sharing a type and optionally an assigned firmware
type Group struct {
	Base
	CompanyID          uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_groups_company_name,priority:1"`
	Name               string        `gorm:"size:255;not null;uniqueIndex:idx_groups_company_name,priority:2"`
	TypeID             uuid.UUID     `gorm:"type:uuid;not null;index"`
	Type               *Type         `gorm:"constraint:OnDelete:CASCADE"`
	AssignedFirmwareID *uuid.UUID    `gorm:"type:uuid;index"`
	AssignedFirmware   *FirmwareInfo `gorm:"foreignKey:AssignedFirmwareID"`
}

//Device is a physical or logical unit registered by a tenant
type Device struct {
	Base
	CompanyID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_devices_company_serial,priority:1"`
	SerialNumber string    `gorm:"size:255;not null;uniqueIndex:idx_devices_company_serial,priority:2"`
	Name         string    `gorm:"size:255;not null"`
	Description  *string   `gorm:"size:255"`
	RegisteredAt *time.Time
	LastSeenAt   *time.Time

	TypeID     uuid.UUID     `gorm:"type:uuid;not null;index"`
	Type       *Type         `gorm:"constraint:OnDelete:CASCADE"`
	GroupID    *uuid.UUID    `gorm:"type:uuid;index"`
	Group      *Group        `gorm:"foreignKey:GroupID"`
	FirmwareID *uuid.UUID    `gorm:"type:uuid;index"`
	Firmware   *FirmwareInfo `gorm:"foreignKey:FirmwareID"`

	TagIDs []uuid.UUID `gorm:"-"`
}

//DeviceTag links a device to one of the tags it carries
type DeviceTag struct {
	DeviceID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Device   *Device   `gorm:"constraint:OnDelete:CASCADE"`
	TagID    uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Tag      *Tag      `gorm:"constraint:OnDelete:CASCADE"`
}

//Firmware states. Only ready firmware is visible to clients.
const (
	FirmwarePending = "pending"
	FirmwareReady   = "ready"
)

//FirmwareInfo is the metadata of a firmware build whose payload lives in the blob store
type FirmwareInfo struct {
	Base
	CompanyID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_firmware_company_name,priority:1"`
	Name         string    `gorm:"size:255;not null;uniqueIndex:idx_firmware_company_name,priority:2"`
	Version      string    `gorm:"size:255;not null"`
	Description  *string   `gorm:"size:255"`
	SerialNumber string    `gorm:"size:255;not null"`
	TypeID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Type         *Type     `gorm:"constraint:OnDelete:CASCADE"`
	State        string    `gorm:"size:16;not null;index"`
	Size         int64
	Checksum     string `gorm:"size:64"`
}

//TableName keeps the table name singular, the way the firmware table has always been named
func (FirmwareInfo) TableName() string {
	return "firmware_info"
}

//DefaultTagColor is used for tags created without a color
const DefaultTagColor = "#FF0000"

//Tag is a label that devices of the same type can carry
type Tag struct {
	Base
	CompanyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tags_company_name,priority:1"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:idx_tags_company_name,priority:2"`
	Color     string    `gorm:"size:10;not null"`
	TypeID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Type      *Type     `gorm:"constraint:OnDelete:CASCADE"`
}
