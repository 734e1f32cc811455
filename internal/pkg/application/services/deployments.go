package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/events"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

//DeploymentService rolls firmware out to groups of devices and tracks the progress per device
type DeploymentService struct {
	db        database.Datastore
	publisher *events.Publisher
	now       func() time.Time
}

func (s *DeploymentService) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Deployment, error) {
	d, err := s.db.Deployments().GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{ID: id}
	}
	return d, nil
}

func (s *DeploymentService) List(ctx context.Context, companyID uuid.UUID, filter database.DeploymentFilter, p database.Pagination) (*database.Page[models.Deployment], error) {
	return s.db.Deployments().List(ctx, companyID, filter, p)
}

//Create schedules a firmware for every device currently in the group. The firmware must
//be of the same type as the group.
func (s *DeploymentService) Create(ctx context.Context, companyID uuid.UUID, fields database.DeploymentFields) (*models.Deployment, error) {
	if err := requireText("name", fields.Name); err != nil {
		return nil, err
	}

	d, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.Deployment, error) {
		group, err := uow.Groups().GetByID(ctx, companyID, fields.GroupID)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, &NotFoundError{ID: fields.GroupID}
		}

		owner := database.Owner{CompanyID: companyID, TypeID: group.TypeID}
		if err := requireFirmware(ctx, uow, owner, &fields.FirmwareID); err != nil {
			return nil, err
		}

		d, err := uow.Deployments().Create(ctx, companyID, fields)
		if err != nil {
			return nil, err
		}

		deviceIDs, err := uow.Devices().ListIDsInGroup(ctx, companyID, group.ID)
		if err != nil {
			return nil, err
		}

		if _, err := uow.Deployments().CreateTasks(ctx, companyID, d.ID, deviceIDs); err != nil {
			return nil, err
		}

		return d, nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.DeploymentCreated, companyID, d.ID)
	return d, nil
}

func (s *DeploymentService) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	_, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (struct{}, error) {
		return struct{}{}, uow.Deployments().Delete(ctx, companyID, id)
	})
	return err
}

func (s *DeploymentService) ListTasks(ctx context.Context, companyID, id uuid.UUID) ([]models.DeploymentTask, error) {
	if _, err := s.Get(ctx, companyID, id); err != nil {
		return nil, err
	}
	return s.db.Deployments().ListTasks(ctx, companyID, id)
}

//UpdateTask moves a task to a new state. A completed task installs the deployment's
//firmware on its device, and the deployment completes once no task is left unfinished.
func (s *DeploymentService) UpdateTask(ctx context.Context, companyID, deploymentID, taskID uuid.UUID, state string) (*models.DeploymentTask, error) {
	if !models.IsTaskState(state) {
		return nil, &ValidationError{Field: "state", Message: "is not a known task state"}
	}

	return inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.DeploymentTask, error) {
		deployment, err := uow.Deployments().GetByID(ctx, companyID, deploymentID)
		if err != nil {
			return nil, err
		}
		if deployment == nil {
			return nil, &NotFoundError{ID: deploymentID}
		}

		task, err := uow.Deployments().UpdateTaskState(ctx, companyID, deploymentID, taskID, state)
		if err != nil {
			return nil, notFoundIfMissing(err, taskID)
		}

		if state == models.TaskCompleted {
			if err := uow.Devices().SetFirmware(ctx, companyID, task.DeviceID, deployment.FirmwareID); err != nil {
				return nil, err
			}
		}

		tasks, err := uow.Deployments().ListTasks(ctx, companyID, deploymentID)
		if err != nil {
			return nil, err
		}

		if allFinished(tasks) {
			err = uow.Deployments().MarkCompleted(ctx, companyID, deploymentID, s.now().UTC())
		}

		return task, err
	})
}

func allFinished(tasks []models.DeploymentTask) bool {
	for _, t := range tasks {
		if t.State != models.TaskCompleted && t.State != models.TaskFailed {
			return false
		}
	}
	return true
}

const maxLogMessageLength = 4096

func (s *DeploymentService) requireTask(ctx context.Context, repos database.Repositories, companyID, deploymentID, taskID uuid.UUID) error {
	task, err := repos.Deployments().GetTask(ctx, companyID, deploymentID, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return &NotFoundError{ID: taskID}
	}
	return nil
}

//AddTaskLog appends a message to the log of a task
func (s *DeploymentService) AddTaskLog(ctx context.Context, companyID, deploymentID, taskID uuid.UUID, message string) (*models.DeploymentTaskLog, error) {
	if message == "" {
		return nil, &ValidationError{Field: "message", Message: "must not be empty"}
	}
	if err := limitText("message", &message, maxLogMessageLength); err != nil {
		return nil, err
	}

	return inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.DeploymentTaskLog, error) {
		if err := s.requireTask(ctx, uow, companyID, deploymentID, taskID); err != nil {
			return nil, err
		}
		return uow.Deployments().AddTaskLog(ctx, companyID, taskID, message)
	})
}

func (s *DeploymentService) ListTaskLogs(ctx context.Context, companyID, deploymentID, taskID uuid.UUID, p database.Pagination) (*database.Page[models.DeploymentTaskLog], error) {
	if err := s.requireTask(ctx, s.db, companyID, deploymentID, taskID); err != nil {
		return nil, err
	}
	return s.db.Deployments().ListTaskLogs(ctx, companyID, taskID, p)
}
