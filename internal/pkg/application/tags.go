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

type tagRequest struct {
	Name   string    `json:"name"`
	Color  string    `json:"color"`
	TypeID uuid.UUID `json:"type_id"`
}

func (req tagRequest) fields() (database.TagFields, error) {
	if err := requireID("type_id", req.TypeID); err != nil {
		return database.TagFields{}, err
	}
	return database.TagFields{Name: req.Name, Color: req.Color, TypeID: req.TypeID}, nil
}

//updateFields drops the type, it cannot be changed once the tag exists
func (req tagRequest) updateFields() database.TagFields {
	return database.TagFields{Name: req.Name, Color: req.Color}
}

type tagResponse struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	TypeID    uuid.UUID `json:"type_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newTagResponse(t models.Tag) tagResponse {
	return tagResponse{
		ID:        t.ID,
		CompanyID: t.CompanyID,
		Name:      t.Name,
		Color:     t.Color,
		TypeID:    t.TypeID,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func newCreateTagHandler(log logging.Logger, svc *services.TagService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := tagRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		fields, err := req.fields()
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		t, err := svc.Create(r.Context(), companyOf(r), fields)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, newTagResponse(*t))
	}
}

func newListTagsHandler(log logging.Logger, svc *services.TagService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseListQuery(r)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		typeID, err := q.id("type_id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		filter := database.TagFilter{Name: q.text("name"), Color: q.text("color"), TypeID: typeID, OrderBy: q.orderBy}

		page, err := svc.List(r.Context(), companyOf(r), filter, q.pagination)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, database.MapPage(page, newTagResponse))
	}
}

func newGetTagHandler(log logging.Logger, svc *services.TagService) http.HandlerFunc {
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

		writeJSON(w, http.StatusOK, newTagResponse(*t))
	}
}

func newUpdateTagHandler(log logging.Logger, svc *services.TagService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		req := tagRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		t, err := svc.Update(r.Context(), companyOf(r), id, req.updateFields())
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newTagResponse(*t))
	}
}

func newDeleteTagHandler(log logging.Logger, svc *services.TagService) http.HandlerFunc {
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
