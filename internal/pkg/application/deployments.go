package application

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/services"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

type deploymentRequest struct {
	Name        string     `json:"name"`
	GroupID     uuid.UUID  `json:"group_id"`
	FirmwareID  uuid.UUID  `json:"firmware_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (req deploymentRequest) fields() (database.DeploymentFields, error) {
	if err := requireID("group_id", req.GroupID); err != nil {
		return database.DeploymentFields{}, err
	}
	if err := requireID("firmware_id", req.FirmwareID); err != nil {
		return database.DeploymentFields{}, err
	}

	return database.DeploymentFields{
		Name:        req.Name,
		GroupID:     req.GroupID,
		FirmwareID:  req.FirmwareID,
		ScheduledAt: req.ScheduledAt,
	}, nil
}

type deploymentResponse struct {
	ID          uuid.UUID  `json:"id"`
	CompanyID   uuid.UUID  `json:"company_id"`
	Name        string     `json:"name"`
	GroupID     uuid.UUID  `json:"group_id"`
	FirmwareID  uuid.UUID  `json:"firmware_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func newDeploymentResponse(d models.Deployment) deploymentResponse {
	return deploymentResponse{
		ID:          d.ID,
		CompanyID:   d.CompanyID,
		Name:        d.Name,
		GroupID:     d.GroupID,
		FirmwareID:  d.FirmwareID,
		ScheduledAt: d.ScheduledAt,
		CompletedAt: d.CompletedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type taskRequest struct {
	State string `json:"state"`
}

type taskResponse struct {
	ID           uuid.UUID `json:"id"`
	DeploymentID uuid.UUID `json:"deployment_id"`
	DeviceID     uuid.UUID `json:"device_id"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newTaskResponse(t models.DeploymentTask) taskResponse {
	return taskResponse{
		ID:           t.ID,
		DeploymentID: t.DeploymentID,
		DeviceID:     t.DeviceID,
		State:        t.State,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func newCreateDeploymentHandler(log logging.Logger, svc *services.DeploymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := deploymentRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		fields, err := req.fields()
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		d, err := svc.Create(r.Context(), companyOf(r), fields)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, newDeploymentResponse(*d))
	}
}

func newListDeploymentsHandler(log logging.Logger, svc *services.DeploymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseListQuery(r)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		ids, err := q.ids("group_id", "firmware_id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		filter := database.DeploymentFilter{GroupID: ids[0], FirmwareID: ids[1], OrderBy: q.orderBy}

		page, err := svc.List(r.Context(), companyOf(r), filter, q.pagination)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, database.MapPage(page, newDeploymentResponse))
	}
}

func newGetDeploymentHandler(log logging.Logger, svc *services.DeploymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		d, err := svc.Get(r.Context(), companyOf(r), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newDeploymentResponse(*d))
	}
}

func newDeleteDeploymentHandler(log logging.Logger, svc *services.DeploymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		if err := svc.Delete(r.Context(), companyOf(r), id); err != nil {
			handleError(w, r, log, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func newListDeploymentTasksHandler(log logging.Logger, svc *services.DeploymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		tasks, err := svc.ListTasks(r.Context(), companyOf(r), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		response := make([]taskResponse, 0, len(tasks))
		for _, t := range tasks {
			response = append(response, newTaskResponse(t))
		}

		writeJSON(w, http.StatusOK, response)
	}
}

func newUpdateDeploymentTaskHandler(log logging.Logger, svc *services.DeploymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		taskID, err := pathID(r, "task_id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		req := taskRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		t, err := svc.UpdateTask(r.Context(), companyOf(r), id, taskID, req.State)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newTaskResponse(*t))
	}
}

type taskLogRequest struct {
	Message string `json:"message"`
}

type taskLogResponse struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func newTaskLogResponse(l models.DeploymentTaskLog) taskLogResponse {
	return taskLogResponse{ID: l.ID, TaskID: l.TaskID, Message: l.Message, CreatedAt: l.CreatedAt}
}

func taskPath(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	taskID, err := pathID(r, "task_id")
	return id, taskID, err
}

func newAddTaskLogHandler(log logging.Logger, svc *services.DeploymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, taskID, err := taskPath(r)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		req := taskLogRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		entry, err := svc.AddTaskLog(r.Context(), companyOf(r), id, taskID, req.Message)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, newTaskLogResponse(*entry))
	}
}

func newListTaskLogsHandler(log logging.Logger, svc *services.DeploymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, taskID, err := taskPath(r)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		q, err := parseListQuery(r)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		page, err := svc.ListTaskLogs(r.Context(), companyOf(r), id, taskID, q.pagination)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, database.MapPage(page, newTaskLogResponse))
	}
}
