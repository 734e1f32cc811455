package models

import (
	"time"

	"github.com/google/uuid"
)

//Deployment rolls a firmware out to every device of a group
type Deployment struct {
	Base
	CompanyID   uuid.UUID     `gorm:"type:uuid;not null;index"`
	Name        string        `gorm:"size:255;not null"`
	GroupID     uuid.UUID     `gorm:"type:uuid;not null;index"`
	Group       *Group        `gorm:"foreignKey:GroupID"`
	FirmwareID  uuid.UUID     `gorm:"type:uuid;not null;index"`
	Firmware    *FirmwareInfo `gorm:"foreignKey:FirmwareID"`
	ScheduledAt *time.Time
	CompletedAt *time.Time
}

//Deployment task states
const (
	TaskFailed    = "failed"
	TaskPlanned   = "planned"
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
)

//IsTaskState reports whether s names a known deployment task state
func IsTaskState(s string) bool {
	switch s {
	case TaskFailed, TaskPlanned, TaskPending, TaskRunning, TaskCompleted:
		return true
	}
	return false
}

//DeploymentTask tracks the rollout of a deployment to a single device
type DeploymentTask struct {
	Base
	CompanyID    uuid.UUID   `gorm:"type:uuid;not null;index"`
	DeploymentID uuid.UUID   `gorm:"type:uuid;not null;index"`
	Deployment   *Deployment `gorm:"constraint:OnDelete:CASCADE"`
	DeviceID     uuid.UUID   `gorm:"type:uuid;not null;index"`
	Device       *Device     `gorm:"foreignKey:DeviceID"`
	State        string      `gorm:"size:16;not null"`
}

//DeploymentTaskLog is a message reported while a task was carried out
type DeploymentTaskLog struct {
	Base
	CompanyID uuid.UUID       `gorm:"type:uuid;not null;index"`
	TaskID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Task      *DeploymentTask `gorm:"constraint:OnDelete:CASCADE"`
	Message   string          `gorm:"type:text;not null"`
}
