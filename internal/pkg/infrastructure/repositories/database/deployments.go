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

//DeploymentFilter narrows a listing of deployments. Empty fields are not applied.
type DeploymentFilter struct {
	GroupID    *uuid.UUID
	FirmwareID *uuid.UUID
	OrderBy    []OrderBy
}

//DeploymentFields are the client controlled fields of a deployment
type DeploymentFields struct {
	Name        string
	GroupID     uuid.UUID
	FirmwareID  uuid.UUID
	ScheduledAt *time.Time
}

//DeploymentRepository persists firmware rollouts and their per device tasks
type DeploymentRepository interface {
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Deployment, error)
	List(ctx context.Context, companyID uuid.UUID, filter DeploymentFilter, p Pagination) (*Page[models.Deployment], error)
	Create(ctx context.Context, companyID uuid.UUID, fields DeploymentFields) (*models.Deployment, error)
	MarkCompleted(ctx context.Context, companyID, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, companyID, id uuid.UUID) error

	CreateTasks(ctx context.Context, companyID, deploymentID uuid.UUID, deviceIDs []uuid.UUID) ([]models.DeploymentTask, error)
	ListTasks(ctx context.Context, companyID, deploymentID uuid.UUID) ([]models.DeploymentTask, error)
	GetTask(ctx context.Context, companyID, deploymentID, taskID uuid.UUID) (*models.DeploymentTask, error)
	UpdateTaskState(ctx context.Context, companyID, deploymentID, taskID uuid.UUID, state string) (*models.DeploymentTask, error)

	AddTaskLog(ctx context.Context, companyID, taskID uuid.UUID, message string) (*models.DeploymentTaskLog, error)
	ListTaskLogs(ctx context.Context, companyID, taskID uuid.UUID, p Pagination) (*Page[models.DeploymentTaskLog], error)
}

type deploymentRepo struct {
	db *gorm.DB
}

func (r *deploymentRepo) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Deployment, error) {
	d := &models.Deployment{}

	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (r *deploymentRepo) List(ctx context.Context, companyID uuid.UUID, filter DeploymentFilter, p Pagination) (*Page[models.Deployment], error) {
	q := r.db.WithContext(ctx).Model(&models.Deployment{}).Where("company_id = ?", companyID)
	q = whereEqual(q, "group_id", filter.GroupID)
	q = whereEqual(q, "firmware_id", filter.FirmwareID)

	return paginate[models.Deployment](q, p, filter.OrderBy)
}

func (r *deploymentRepo) Create(ctx context.Context, companyID uuid.UUID, fields DeploymentFields) (*models.Deployment, error) {
	d := &models.Deployment{
		CompanyID:   companyID,
		Name:        fields.Name,
		GroupID:     fields.GroupID,
		FirmwareID:  fields.FirmwareID,
		ScheduledAt: fields.ScheduledAt,
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(d).Error; err != nil {
		return nil, translate(err)
	}

	return d, nil
}

func (r *deploymentRepo) MarkCompleted(ctx context.Context, companyID, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("company_id = ? AND id = ?", companyID, id).
		Update("completed_at", at).Error
	return translate(err)
}

func (r *deploymentRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).Delete(&models.Deployment{}).Error
	return translate(err)
}

func (r *deploymentRepo) CreateTasks(ctx context.Context, companyID, deploymentID uuid.UUID, deviceIDs []uuid.UUID) ([]models.DeploymentTask, error) {
	tasks := make([]models.DeploymentTask, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		tasks = append(tasks, models.DeploymentTask{
			CompanyID:    companyID,
			DeploymentID: deploymentID,
			DeviceID:     deviceID,
			State:        models.TaskPlanned,
		})
	}

	if len(tasks) == 0 {
		return tasks, nil
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&tasks).Error; err != nil {
		return nil, translate(err)
	}

	return tasks, nil
}

func (r *deploymentRepo) ListTasks(ctx context.Context, companyID, deploymentID uuid.UUID) ([]models.DeploymentTask, error) {
	tasks := []models.DeploymentTask{}

	err := r.db.WithContext(ctx).
		Where("company_id = ? AND deployment_id = ?", companyID, deploymentID).
		Order("created_at").Order("id").
		Find(&tasks).Error

	return tasks, err
}

func (r *deploymentRepo) GetTask(ctx context.Context, companyID, deploymentID, taskID uuid.UUID) (*models.DeploymentTask, error) {
	task := &models.DeploymentTask{}

	err := r.db.WithContext(ctx).
		Where("company_id = ? AND deployment_id = ? AND id = ?", companyID, deploymentID, taskID).
		First(task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return task, nil
}

func (r *deploymentRepo) UpdateTaskState(ctx context.Context, companyID, deploymentID, taskID uuid.UUID, state string) (*models.DeploymentTask, error) {
	task, err := r.GetTask(ctx, companyID, deploymentID, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrNotFound
	}

	task.State = state
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(task).Error; err != nil {
		return nil, translate(err)
	}

	return task, nil
}

func (r *deploymentRepo) AddTaskLog(ctx context.Context, companyID, taskID uuid.UUID, message string) (*models.DeploymentTaskLog, error) {
	entry := &models.DeploymentTaskLog{CompanyID: companyID, TaskID: taskID, Message: message}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(entry).Error; err != nil {
		return nil, translate(err)
	}

	return entry, nil
}

//ListTaskLogs returns the log of a task, oldest entry first
func (r *deploymentRepo) ListTaskLogs(ctx context.Context, companyID, taskID uuid.UUID, p Pagination) (*Page[models.DeploymentTaskLog], error) {
	q := r.db.WithContext(ctx).Model(&models.DeploymentTaskLog{}).Where("company_id = ? AND task_id = ?", companyID, taskID)
	return paginate[models.DeploymentTaskLog](q, p, nil)
}
