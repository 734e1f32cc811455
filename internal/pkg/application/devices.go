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

type deviceRequest struct {
	Name         string      `json:"name"`
	SerialNumber string      `json:"serial_number"`
	Description  *string     `json:"description"`
	RegisteredAt *time.Time  `json:"registered_at"`
	LastSeenAt   *time.Time  `json:"last_seen_at"`
	TypeID       uuid.UUID   `json:"type_id"`
	GroupID      *uuid.UUID  `json:"group_id"`
	FirmwareID   *uuid.UUID  `json:"firmware_id"`
	Tags         []uuid.UUID `json:"tags"`
}

func (req deviceRequest) fields() (database.DeviceFields, error) {
	if err := requireID("type_id", req.TypeID); err != nil {
		return database.DeviceFields{}, err
	}

	return database.DeviceFields{
		Name:         req.Name,
		SerialNumber: req.SerialNumber,
		Description:  req.Description,
		RegisteredAt: req.RegisteredAt,
		LastSeenAt:   req.LastSeenAt,
		TypeID:       req.TypeID,
		GroupID:      req.GroupID,
		FirmwareID:   req.FirmwareID,
		TagIDs:       req.Tags,
	}, nil
}

type deviceResponse struct {
	ID           uuid.UUID   `json:"id"`
	CompanyID    uuid.UUID   `json:"company_id"`
	Name         string      `json:"name"`
	SerialNumber string      `json:"serial_number"`
	Description  *string     `json:"description"`
	RegisteredAt *time.Time  `json:"registered_at"`
	LastSeenAt   *time.Time  `json:"last_seen_at"`
	TypeID       uuid.UUID   `json:"type_id"`
	GroupID      *uuid.UUID  `json:"group_id"`
	FirmwareID   *uuid.UUID  `json:"firmware_id"`
	Tags         []uuid.UUID `json:"tags"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func newDeviceResponse(d models.Device) deviceResponse {
	tags := d.TagIDs
	if tags == nil {
		tags = []uuid.UUID{}
	}

	return deviceResponse{
		ID:           d.ID,
		CompanyID:    d.CompanyID,
		Name:         d.Name,
		SerialNumber: d.SerialNumber,
		Description:  d.Description,
		RegisteredAt: d.RegisteredAt,
		LastSeenAt:   d.LastSeenAt,
		TypeID:       d.TypeID,
		GroupID:      d.GroupID,
		FirmwareID:   d.FirmwareID,
		Tags:         tags,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func newCreateDeviceHandler(log logging.Logger, svc *services.DeviceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := deviceRequest{}
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

		writeJSON(w, http.StatusCreated, newDeviceResponse(*d))
	}
}

func newListDevicesHandler(log logging.Logger, svc *services.DeviceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseListQuery(r)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		ids, err := q.ids("type_id", "group_id", "firmware_id", "tag")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		filter := database.DeviceFilter{
			Name:         q.text("name"),
			SerialNumber: q.text("serial_number"),
			TypeID:       ids[0],
			GroupID:      ids[1],
			FirmwareID:   ids[2],
			TagID:        ids[3],
			OrderBy:      q.orderBy,
		}

		page, err := svc.List(r.Context(), companyOf(r), filter, q.pagination)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, database.MapPage(page, newDeviceResponse))
	}
}

func newGetDeviceHandler(log logging.Logger, svc *services.DeviceService) http.HandlerFunc {
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

		writeJSON(w, http.StatusOK, newDeviceResponse(*d))
	}
}

func newUpdateDeviceHandler(log logging.Logger, svc *services.DeviceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		req := deviceRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		fields, err := req.fields()
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		d, err := svc.Update(r.Context(), companyOf(r), id, fields)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newDeviceResponse(*d))
	}
}

func newDeleteDeviceHandler(log logging.Logger, svc *services.DeviceService) http.HandlerFunc {
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
