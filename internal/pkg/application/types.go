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

type typeRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (req typeRequest) fields() database.TypeFields {
	return database.TypeFields{Name: req.Name, Description: req.Description}
}

type typeResponse struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	SecretKey   uuid.UUID `json:"secret_key"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newTypeResponse(t models.Type) typeResponse {
	return typeResponse{
		ID:          t.ID,
		CompanyID:   t.CompanyID,
		Name:        t.Name,
		Description: t.Description,
		SecretKey:   t.SecretKey,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func newCreateTypeHandler(log logging.Logger, svc *services.TypeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := typeRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		t, err := svc.Create(r.Context(), companyOf(r), req.fields())
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, newTypeResponse(*t))
	}
}

func newListTypesHandler(log logging.Logger, svc *services.TypeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseListQuery(r)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		filter := database.TypeFilter{Name: q.text("name"), OrderBy: q.orderBy}

		page, err := svc.List(r.Context(), companyOf(r), filter, q.pagination)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, database.MapPage(page, newTypeResponse))
	}
}

func newGetTypeHandler(log logging.Logger, svc *services.TypeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		t, err := svc.Get(r.Context(), companyOf(r), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newTypeResponse(*t))
	}
}

func newUpdateTypeHandler(log logging.Logger, svc *services.TypeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		req := typeRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		t, err := svc.Update(r.Context(), companyOf(r), id, req.fields())
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newTypeResponse(*t))
	}
}

func newDeleteTypeHandler(log logging.Logger, svc *services.TypeService) http.HandlerFunc {
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
