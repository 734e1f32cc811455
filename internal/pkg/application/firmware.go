package application

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/services"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

const (
	maxFirmwareSize      = 512 << 20
	multipartMemoryLimit = 32 << 20
)

type firmwareInfoRequest struct {
	Name         string  `json:"name"`
	Version      string  `json:"version"`
	Description  *string `json:"description"`
	SerialNumber string  `json:"serial_number"`
}

func (req firmwareInfoRequest) fields() database.FirmwareFields {
	return database.FirmwareFields{
		Name:         req.Name,
		Version:      req.Version,
		Description:  req.Description,
		SerialNumber: req.SerialNumber,
	}
}

type firmwareResponse struct {
	ID           uuid.UUID `json:"id"`
	CompanyID    uuid.UUID `json:"company_id"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Description  *string   `json:"description"`
	SerialNumber string    `json:"serial_number"`
	TypeID       uuid.UUID `json:"type_id"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newFirmwareResponse(f models.FirmwareInfo) firmwareResponse {
	return firmwareResponse{
		ID:           f.ID,
		CompanyID:    f.CompanyID,
		Name:         f.Name,
		Version:      f.Version,
		Description:  f.Description,
		SerialNumber: f.SerialNumber,
		TypeID:       f.TypeID,
		Size:         f.Size,
		Checksum:     f.Checksum,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

//newUploadFirmwareHandler accepts a multipart form carrying the binary in the
//"firmware" part together with the metadata fields
func newUploadFirmwareHandler(log logging.Logger, svc *services.FirmwareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFirmwareSize)

		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			handleError(w, r, log, &services.ValidationError{Field: "body", Message: "must be a multipart form: " + err.Error()})
			return
		}
		defer r.MultipartForm.RemoveAll()

		typeID, err := uuid.Parse(r.FormValue("type_id"))
		if err != nil {
			handleError(w, r, log, &services.ValidationError{Field: "type_id", Message: "must be a valid uuid"})
			return
		}

		file, header, err := r.FormFile("firmware")
		if err != nil {
			handleError(w, r, log, &services.ValidationError{Field: "firmware", Message: "is required"})
			return
		}
		defer file.Close()

		fields := database.FirmwareFields{
			Name:         r.FormValue("name"),
			Version:      r.FormValue("version"),
			SerialNumber: r.FormValue("serial_number"),
		}
		if description, ok := r.MultipartForm.Value["description"]; ok && len(description) > 0 {
			fields.Description = &description[0]
		}

		f, err := svc.Upload(r.Context(), companyOf(r), typeID, fields, file, header.Size)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, newFirmwareResponse(*f))
	}
}

func newDownloadFirmwareHandler(log logging.Logger, svc *services.FirmwareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		f, stream, err := svc.Download(r.Context(), companyOf(r), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		defer stream.Close()

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(stream.Size, 10))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name+"-"+f.Version+".bin"))
		w.WriteHeader(http.StatusOK)

		flush := func() {}
		if flusher, ok := w.(http.Flusher); ok {
			flush = flusher.Flush
		}

		if _, err := stream.CopyTo(w, flush); err != nil {
			log.Errorf("Failed to stream firmware %s: %s", id, err.Error())
		}
	}
}

func newListFirmwareHandler(log logging.Logger, svc *services.FirmwareService) http.HandlerFunc {
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

		filter := database.FirmwareFilter{
			Name:         q.text("name"),
			Version:      q.text("version"),
			SerialNumber: q.text("serial_number"),
			TypeID:       typeID,
			OrderBy:      q.orderBy,
		}

		page, err := svc.List(r.Context(), companyOf(r), filter, q.pagination)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, database.MapPage(page, newFirmwareResponse))
	}
}

func newGetFirmwareInfoHandler(log logging.Logger, svc *services.FirmwareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		f, err := svc.GetInfo(r.Context(), companyOf(r), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newFirmwareResponse(*f))
	}
}

func newUpdateFirmwareInfoHandler(log logging.Logger, svc *services.FirmwareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		req := firmwareInfoRequest{}
		if err := decodeBody(w, r, &req); err != nil {
			handleError(w, r, log, err)
			return
		}

		f, err := svc.UpdateInfo(r.Context(), companyOf(r), id, req.fields())
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, newFirmwareResponse(*f))
	}
}

func newDeleteFirmwareHandler(log logging.Logger, svc *services.FirmwareService) http.HandlerFunc {
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
