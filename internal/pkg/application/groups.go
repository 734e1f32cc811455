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

type groupRequest struct {
	Name               string     `json:"name"`
	TypeID             uuid.UUID  `json:"type_id"`
	AssignedFirmwareID *uuid.UUID `json:"assigned_firmware_id"`
}

func (req groupRequest) fields() (database.GroupFields, error) {
	if err := requireID("type_id", req.TypeID); err != nil {
		return database.GroupFields{}, err
	}
	return database.GroupFields{Name: req.Name, TypeID: req.TypeID, AssignedFirmwareID: req.AssignedFirmwareID}, nil
}

//updateFields drops the type, it cannot be changed once the group exists
func (req groupRequest) updateFields() database.GroupFields {
	return database.GroupFields{Name: req.Name, AssignedFirmwareID: req.AssignedFirmwareID}
}

type groupResponse struct {
	ID                 uuid.UUID  `json:"id"`
	CompanyID          uuid.UUID  `json:"company_id"`
	Name               string     `json:"name"`
	TypeID             uuid.UUID  `json:"type_id"`
	AssignedFirmwareID *uuid.UUID `json:"assigned_firmware_id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func newGroupResponse(g models.Group) groupResponse {
	return groupResponse{
		ID:                 g.ID,
		CompanyID:          g.CompanyID,
		Name:               g.Name,
		TypeID:             g.TypeID,
		AssignedFirmwareID: g.AssignedFirmwareID,
		CreatedAt:          g.CreatedAt,
		UpdatedAt:          g.UpdatedAt,
	}
}

func newCreateGroupHandler(log logging.Logger, svc *services.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := groupRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		fields, err := req.fields()
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		g, err := svc.Create(r.Context(), companyOf(r), fields)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, newGroupResponse(*g))
	}
}

func newListGroupsHandler(log logging.Logger, svc *services.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseListQuery(r)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		ids, err := q.ids("type_id", "assigned_firmware_id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		filter := database.GroupFilter{
			Name:               q.text("name"),
			TypeID:             ids[0],
			AssignedFirmwareID: ids[1],
			OrderBy:            q.orderBy,
		}

		page, err := svc.List(r.Context(), companyOf(r), filter, q.pagination)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, database.MapPage(page, newGroupResponse))
	}
}

func newGetGroupHandler(log logging.Logger, svc *services.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		g, err := svc.Get(r.Context(), companyOf(r), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newGroupResponse(*g))
	}
}

func newUpdateGroupHandler(log logging.Logger, svc *services.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		req := groupRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		g, err := svc.Update(r.Context(), companyOf(r), id, req.updateFields())
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newGroupResponse(*g))
	}
}

func newDeleteGroupHandler(log logging.Logger, svc *services.GroupService) http.HandlerFunc {
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
