package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/events"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/blobstore"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

//FirmwareService manages firmware metadata together with the binaries kept in the blob store
type FirmwareService struct {
	db        database.Datastore
	store     blobstore.Store
	publisher *events.Publisher
	log       logging.Logger
}

func validateFirmware(fields database.FirmwareFields) error {
	if err := requireText("name", fields.Name); err != nil {
		return err
	}
	if err := requireText("version", fields.Version); err != nil {
		return err
	}
	if err := requireText("serial_number", fields.SerialNumber); err != nil {
		return err
	}
	return limitText("description", fields.Description, maxTextLength)
}

//Upload stores a new firmware binary of the given type. The metadata is committed in
//a pending state first and only becomes visible once the binary has been stored. If the
//upload fails the pending metadata and any partially written object are removed again.
func (s *FirmwareService) Upload(ctx context.Context, companyID, typeID uuid.UUID, fields database.FirmwareFields, r io.Reader, size int64) (*models.FirmwareInfo, error) {
	if err := validateFirmware(fields); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, &ValidationError{Field: "firmware", Message: "must not be empty"}
	}

	pending, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.FirmwareInfo, error) {
		if err := requireType(ctx, uow, companyID, typeID); err != nil {
			return nil, err
		}
		return uow.Firmware().CreatePending(ctx, companyID, typeID, fields)
	})
	if err != nil {
		return nil, err
	}

	hash := sha256.New()
	err = s.store.Upload(ctx, companyID, pending.ID, io.TeeReader(r, hash), size)
	if err != nil {
		s.log.Errorf("Failed to upload firmware %s: %s", pending.ID, err.Error())
		s.discard(ctx, companyID, pending.ID)
		return nil, err
	}

	ready, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.FirmwareInfo, error) {
		return uow.Firmware().MarkReady(ctx, companyID, pending.ID, size, hex.EncodeToString(hash.Sum(nil)))
	})
	if err != nil {
		s.log.Errorf("Failed to mark firmware %s as ready: %s", pending.ID, err.Error())
		s.discard(ctx, companyID, pending.ID)
		return nil, notFoundIfMissing(err, pending.ID)
	}

	s.publisher.Publish(events.FirmwareUploaded, companyID, ready.ID)
	return ready, nil
}

//discard removes a pending firmware and its object. Failures are left to the sweeper.
func (s *FirmwareService) discard(ctx context.Context, companyID, id uuid.UUID) {
	ctx = context.WithoutCancel(ctx)

	if err := s.db.Firmware().Delete(ctx, companyID, id); err != nil {
		s.log.Errorf("Failed to remove pending firmware %s: %s", id, err.Error())
	}
	if err := s.store.Delete(ctx, companyID, id); err != nil {
		s.log.Warnf("Failed to remove object of firmware %s: %s", id, err.Error())
	}
}

//Download returns the metadata of a firmware together with a stream of its binary.
//The caller must close the stream.
func (s *FirmwareService) Download(ctx context.Context, companyID, id uuid.UUID) (*models.FirmwareInfo, *blobstore.Stream, error) {
	f, err := s.GetInfo(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}

	stream, err := s.store.Download(ctx, companyID, id)
	if errors.Is(err, blobstore.ErrObjectNotFound) {
		return nil, nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, nil, err
	}

	return f, stream, nil
}

func (s *FirmwareService) GetInfo(ctx context.Context, companyID, id uuid.UUID) (*models.FirmwareInfo, error) {
	f, err := s.db.Firmware().GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, &NotFoundError{ID: id}
	}
	return f, nil
}

func (s *FirmwareService) List(ctx context.Context, companyID uuid.UUID, filter database.FirmwareFilter, p database.Pagination) (*database.Page[models.FirmwareInfo], error) {
	return s.db.Firmware().List(ctx, companyID, filter, p)
}

//UpdateInfo replaces the descriptive metadata of a firmware. Type and binary cannot change.
func (s *FirmwareService) UpdateInfo(ctx context.Context, companyID, id uuid.UUID, fields database.FirmwareFields) (*models.FirmwareInfo, error) {
	if err := validateFirmware(fields); err != nil {
		return nil, err
	}

	f, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.FirmwareInfo, error) {
		return uow.Firmware().Update(ctx, companyID, id, fields)
	})

	return f, notFoundIfMissing(err, id)
}

//Delete removes a firmware that is no longer referenced by any device, group or
//deployment, and then its binary
func (s *FirmwareService) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	existing, err := inUnitOfWork(ctx, s.db, func(uow database.UnitOfWork) (*models.FirmwareInfo, error) {
		f, err := uow.Firmware().GetByID(ctx, companyID, id)
		if err != nil || f == nil {
			return nil, err
		}
		return f, uow.Firmware().Delete(ctx, companyID, id)
	})
	if err != nil || existing == nil {
		return err
	}

	if err := s.store.Delete(ctx, companyID, id); err != nil {
		s.log.Warnf("Failed to remove object of firmware %s: %s", id, err.Error())
	}

	s.publisher.Publish(events.FirmwareDeleted, companyID, id)
	return nil
}

//FirmwareSweeper removes firmware that has been pending for longer than a grace period,
//which happens when the process dies between storing the metadata and the binary
type FirmwareSweeper struct {
	db    database.Datastore
	store blobstore.Store
	ttl   time.Duration
	log   logging.Logger
	now   func() time.Time
}

const sweepBatchSize = 100

//NewFirmwareSweeper returns a sweeper removing firmware that has been pending for longer than ttl
func NewFirmwareSweeper(db database.Datastore, store blobstore.Store, ttl time.Duration, log logging.Logger) *FirmwareSweeper {
	return &FirmwareSweeper{db: db, store: store, ttl: ttl, log: log, now: time.Now}
}

//Sweep removes one batch of stale pending firmware and returns how many were removed
func (s *FirmwareSweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.db.Firmware().ListStalePending(ctx, s.now().UTC().Add(-s.ttl), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range stale {
		if err := s.db.Firmware().Delete(ctx, f.CompanyID, f.ID); err != nil {
			s.log.Errorf("Failed to remove stale firmware %s: %s", f.ID, err.Error())
			continue
		}
		if err := s.store.Delete(ctx, f.CompanyID, f.ID); err != nil {
			s.log.Warnf("Failed to remove object of stale firmware %s: %s", f.ID, err.Error())
		}
		removed++
	}

	if removed > 0 {
		s.log.Infof("Removed %d stale pending firmware", removed)
	}

	return removed, nil
}

//Run sweeps every interval until ctx is done
func (s *FirmwareSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Errorf("Firmware sweep failed: %s", err.Error())
			}
		}
	}
}
