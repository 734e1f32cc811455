package application

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/auth"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/services"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
)

const maxBodySize = 1 << 20

//companyOf returns the tenant of the authenticated caller
func companyOf(r *http.Request) uuid.UUID {
	identity, _ := auth.FromContext(r.Context())
	return identity.CompanyID
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, &services.ValidationError{Field: name, Message: "must be a valid uuid"}
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, body interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(body)
	if err != nil {
		return &services.ValidationError{Field: "body", Message: "could not be decoded: " + err.Error()}
	}
	return nil
}

func requireID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return &services.ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

//listQuery holds the query parameters shared by every listing endpoint
type listQuery struct {
	pagination database.Pagination
	orderBy    []database.OrderBy
	values     map[string][]string
}

func parseListQuery(r *http.Request) (*listQuery, error) {
	q := r.URL.Query()

	page, err := queryInt(q.Get("page"), "page")
	if err != nil {
		return nil, err
	}
	size, err := queryInt(q.Get("size"), "size")
	if err != nil {
		return nil, err
	}

	orderBy, err := database.ParseOrderBy(q.Get("order_by"))
	if errors.Is(err, database.ErrInvalidOrder) {
		return nil, &services.ValidationError{Field: "order_by", Message: err.Error()}
	}

	return &listQuery{pagination: database.NewPagination(page, size), orderBy: orderBy, values: q}, nil
}

func queryInt(value, field string) (int, error) {
	if value == "" {
		return 0, nil
	}

	i, err := strconv.Atoi(value)
	if err != nil || i < 1 {
		return 0, &services.ValidationError{Field: field, Message: "must be a positive integer"}
	}
	return i, nil
}

func (q *listQuery) text(name string) string {
	if v, ok := q.values[name]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

func (q *listQuery) id(name string) (*uuid.UUID, error) {
	value := q.text(name)
	if value == "" {
		return nil, nil
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return nil, &services.ValidationError{Field: name, Message: "must be a valid uuid"}
	}
	return &id, nil
}

//ids collects the first error encountered while parsing optional uuid parameters
func (q *listQuery) ids(names ...string) ([]*uuid.UUID, error) {
	result := make([]*uuid.UUID, 0, len(names))
	for _, name := range names {
		id, err := q.id(name)
		if err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, nil
}
