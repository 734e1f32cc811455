package application

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/services"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
)

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{StatusCode: status, Message: message})
}

//handleError maps service errors onto http responses
func handleError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	var (
		notFound   *services.NotFoundError
		conflict   *services.ConflictError
		validation *services.ValidationError
	)

	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		log.Infof("Rejected %s %s: %s", r.Method, r.URL.Path, errors.Unwrap(conflict))
		writeError(w, http.StatusBadRequest, "the request conflicts with existing data")
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Error())
	case errors.Is(err, context.Canceled):
		log.Infof("Request %s %s was cancelled", r.Method, r.URL.Path)
	default:
		log.Errorf("Request %s %s failed: %s", r.Method, r.URL.Path, err.Error())
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
