package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/events"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/blobstore"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
)

type messagingMock struct {
	topics []string
}

func (m *messagingMock) PublishOnTopic(message messaging.TopicMessage) error {
	m.topics = append(m.topics, message.TopicName())
	return nil
}

type failingStore struct {
	blobstore.Store
	deleted []uuid.UUID
}

func (s *failingStore) Upload(ctx context.Context, companyID, objectID uuid.UUID, r io.Reader, size int64) error {
	return errors.New("object store unavailable")
}

func (s *failingStore) Delete(ctx context.Context, companyID, objectID uuid.UUID) error {
	s.deleted = append(s.deleted, objectID)
	return nil
}

type fixture struct {
	db        database.Datastore
	store     blobstore.Store
	messenger *messagingMock
	svc       *Services
	tenant    uuid.UUID
}

func newServicesForTest(t *testing.T) *fixture {
	log := logging.NewLogger()

	db, err := database.NewDatabaseConnection(database.NewSQLiteConnector(), log)
	if err != nil {
		t.Fatalf("Failed to create database: %s", err.Error())
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, store: blobstore.NewMemoryStore(), messenger: &messagingMock{}, tenant: uuid.New()}
	f.svc = New(db, f.store, events.NewPublisher(f.messenger, log), log)

	return f
}

func (f *fixture) createType(t *testing.T, name string) *models.Type {
	typ, err := f.svc.Types.Create(context.Background(), f.tenant, database.TypeFields{Name: name})
	if err != nil {
		t.Fatalf("Failed to create type: %s", err.Error())
	}
	return typ
}

func (f *fixture) uploadFirmware(t *testing.T, typeID uuid.UUID, name string, payload []byte) *models.FirmwareInfo {
	fw, err := f.svc.Firmware.Upload(context.Background(), f.tenant, typeID,
		database.FirmwareFields{Name: name, Version: "1.0.0", SerialNumber: "FW-" + name},
		bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("Failed to upload firmware: %s", err.Error())
	}
	return fw
}

func expectNotFound(t *testing.T, err error, id uuid.UUID) {
	t.Helper()

	nf := &NotFoundError{}
	if !errors.As(err, &nf) {
		t.Fatalf("Expected a NotFoundError, got %v", err)
	}
	if nf.ID != id {
		t.Errorf("Expected the error to name %s, but it named %s", id, nf.ID)
	}
}

func TestThatDeviceReferencesAreValidatedTypeFirst(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	missingType, missingGroup := uuid.New(), uuid.New()

	_, err := f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{
		Name: "d", SerialNumber: "S", TypeID: missingType, GroupID: &missingGroup,
	})
	expectNotFound(t, err, missingType)

	typ := f.createType(t, "t")
	_, err = f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{
		Name: "d", SerialNumber: "S", TypeID: typ.ID, GroupID: &missingGroup,
	})
	expectNotFound(t, err, missingGroup)

	page, _ := f.svc.Devices.List(ctx, f.tenant, database.DeviceFilter{}, database.NewPagination(1, 10))
	if page.Total != 0 {
		t.Error("A failed create should not leave a device behind")
	}
}

func TestThatDeviceCannotJoinAGroupOfAnotherType(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	t1, t2 := f.createType(t, "t1"), f.createType(t, "t2")
	group, err := f.svc.Groups.Create(ctx, f.tenant, database.GroupFields{Name: "g", TypeID: t2.ID})
	if err != nil {
		t.Fatalf("Failed to create group: %s", err.Error())
	}

	_, err = f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{
		Name: "d", SerialNumber: "S", TypeID: t1.ID, GroupID: &group.ID,
	})
	expectNotFound(t, err, group.ID)
}

func TestThatReferencesOfAnotherTenantAreNotFound(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	typ := f.createType(t, "t")

	_, err := f.svc.Tags.Create(ctx, uuid.New(), database.TagFields{Name: "red", TypeID: typ.ID})
	expectNotFound(t, err, typ.ID)
}

func TestThatDuplicateSerialNumbersConflict(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	typ := f.createType(t, "t")
	fields := database.DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID}

	if _, err := f.svc.Devices.Create(ctx, f.tenant, fields); err != nil {
		t.Fatalf("Failed to create device: %s", err.Error())
	}

	_, err := f.svc.Devices.Create(ctx, f.tenant, fields)
	conflict := &ConflictError{}
	if !errors.As(err, &conflict) {
		t.Errorf("Expected a ConflictError, got %v", err)
	}

	if len(f.messenger.topics) != 1 || f.messenger.topics[0] != events.DeviceCreated {
		t.Errorf("Expected a single device.created event, got %v", f.messenger.topics)
	}
}

func TestThatDeviceCreateDefaultsTheRegistrationDate(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	typ := f.createType(t, "t")
	d, err := f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID})
	if err != nil {
		t.Fatalf("Failed to create device: %s", err.Error())
	}

	if d.RegisteredAt == nil {
		t.Fatal("Expected a registration date")
	}

	updated, err := f.svc.Devices.Update(ctx, f.tenant, d.ID, database.DeviceFields{Name: "renamed", SerialNumber: "S", TypeID: typ.ID})
	if err != nil {
		t.Fatalf("Failed to update device: %s", err.Error())
	}
	if updated.RegisteredAt == nil || !updated.RegisteredAt.Equal(*d.RegisteredAt) {
		t.Error("Update without a registration date should keep the original one")
	}
}

func TestThatUpdatingAMissingDeviceIsNotFound(t *testing.T) {
	f := newServicesForTest(t)
	typ := f.createType(t, "t")
	id := uuid.New()

	_, err := f.svc.Devices.Update(context.Background(), f.tenant, id, database.DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID})
	expectNotFound(t, err, id)
}

func TestThatEmptyNamesAreRejected(t *testing.T) {
	f := newServicesForTest(t)

	_, err := f.svc.Types.Create(context.Background(), f.tenant, database.TypeFields{})
	validation := &ValidationError{}
	if !errors.As(err, &validation) || validation.Field != "name" {
		t.Errorf("Expected a ValidationError on name, got %v", err)
	}
}

func TestThatTagColorDefaultsAndIsValidated(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")

	tag, err := f.svc.Tags.Create(ctx, f.tenant, database.TagFields{Name: "red", TypeID: typ.ID})
	if err != nil {
		t.Fatalf("Failed to create tag: %s", err.Error())
	}
	if tag.Color != models.DefaultTagColor {
		t.Errorf("Expected default color, got %s", tag.Color)
	}

	_, err = f.svc.Tags.Create(ctx, f.tenant, database.TagFields{Name: "blue", Color: "blue", TypeID: typ.ID})
	validation := &ValidationError{}
	if !errors.As(err, &validation) || validation.Field != "color" {
		t.Errorf("Expected a ValidationError on color, got %v", err)
	}
}

func TestThatAGroupWithDevicesCannotBeDeleted(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	typ := f.createType(t, "t")
	group, _ := f.svc.Groups.Create(ctx, f.tenant, database.GroupFields{Name: "g", TypeID: typ.ID})
	f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID, GroupID: &group.ID})

	err := f.svc.Groups.Delete(ctx, f.tenant, group.ID)
	conflict := &ConflictError{}
	if !errors.As(err, &conflict) {
		t.Errorf("Expected a ConflictError, got %v", err)
	}

	if _, err := f.svc.Groups.Get(ctx, f.tenant, group.ID); err != nil {
		t.Error("Group should still exist")
	}
}

func TestThatDeletingAMissingEntityIsSilent(t *testing.T) {
	f := newServicesForTest(t)

	if err := f.svc.Devices.Delete(context.Background(), f.tenant, uuid.New()); err != nil {
		t.Errorf("Expected no error, got %s", err.Error())
	}
	if len(f.messenger.topics) != 0 {
		t.Errorf("Deleting nothing should publish nothing, got %v", f.messenger.topics)
	}
}

func TestThatUploadedFirmwareCanBeDownloaded(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")
	payload := []byte("firmware image")

	fw := f.uploadFirmware(t, typ.ID, "fw", payload)

	sum := sha256.Sum256(payload)
	if fw.State != models.FirmwareReady || fw.Size != int64(len(payload)) || fw.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Unexpected firmware metadata %+v", fw)
	}

	info, stream, err := f.svc.Firmware.Download(ctx, f.tenant, fw.ID)
	if err != nil {
		t.Fatalf("Download failed: %s", err.Error())
	}
	defer stream.Close()

	buf := &bytes.Buffer{}
	stream.CopyTo(buf, nil)
	if info.ID != fw.ID || !bytes.Equal(buf.Bytes(), payload) {
		t.Error("Downloaded payload does not match the upload")
	}

	if len(f.messenger.topics) != 1 || f.messenger.topics[0] != events.FirmwareUploaded {
		t.Errorf("Expected a firmware.uploaded event, got %v", f.messenger.topics)
	}
}

func TestThatAFailedUploadLeavesNoFirmwareBehind(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")

	store := &failingStore{Store: f.store}
	f.svc.Firmware.store = store

	_, err := f.svc.Firmware.Upload(ctx, f.tenant, typ.ID,
		database.FirmwareFields{Name: "fw", Version: "1", SerialNumber: "F"}, bytes.NewReader([]byte("x")), 1)
	if err == nil {
		t.Fatal("Expected the upload to fail")
	}

	stale, _ := f.db.Firmware().ListStalePending(ctx, time.Now().Add(time.Hour), 10)
	if len(stale) != 0 {
		t.Errorf("Expected the pending firmware to be removed, %d remain", len(stale))
	}
	if len(store.deleted) != 1 {
		t.Error("Expected the partially written object to be removed")
	}

	// the name is free again
	f.svc.Firmware.store = f.store
	f.uploadFirmware(t, typ.ID, "fw", []byte("x"))
}

func TestThatDeletingFirmwareRemovesTheBinary(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")
	fw := f.uploadFirmware(t, typ.ID, "fw", []byte("abc"))

	if err := f.svc.Firmware.Delete(ctx, f.tenant, fw.ID); err != nil {
		t.Fatalf("Delete failed: %s", err.Error())
	}

	if _, err := f.store.Download(ctx, f.tenant, fw.ID); !errors.Is(err, blobstore.ErrObjectNotFound) {
		t.Errorf("Expected the object to be gone, got %v", err)
	}
}

func TestThatReferencedFirmwareCannotBeDeleted(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")
	fw := f.uploadFirmware(t, typ.ID, "fw", []byte("abc"))

	f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID, FirmwareID: &fw.ID})

	err := f.svc.Firmware.Delete(ctx, f.tenant, fw.ID)
	conflict := &ConflictError{}
	if !errors.As(err, &conflict) {
		t.Errorf("Expected a ConflictError, got %v", err)
	}

	if _, err := f.store.Download(ctx, f.tenant, fw.ID); err != nil {
		t.Error("The binary of a firmware still in use should be kept")
	}
}

func TestThatTheSweeperRemovesStalePendingFirmware(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")

	pending, _ := f.db.Firmware().CreatePending(ctx, f.tenant, typ.ID, database.FirmwareFields{Name: "stuck", Version: "1", SerialNumber: "F"})
	ready := f.uploadFirmware(t, typ.ID, "ok", []byte("abc"))

	sweeper := NewFirmwareSweeper(f.db, f.store, 30*time.Minute, logging.NewLogger())
	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }

	removed, err := sweeper.Sweep(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("Expected one removed firmware, got %d (%v)", removed, err)
	}

	stale, _ := f.db.Firmware().ListStalePending(ctx, time.Now().Add(2*time.Hour), 10)
	for _, s := range stale {
		if s.ID == pending.ID {
			t.Error("Pending firmware was not removed")
		}
	}

	if _, err := f.svc.Firmware.GetInfo(ctx, f.tenant, ready.ID); err != nil {
		t.Error("Ready firmware should not be swept")
	}
}

func TestThatCompletingAllTasksCompletesTheDeployment(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")

	group, _ := f.svc.Groups.Create(ctx, f.tenant, database.GroupFields{Name: "g", TypeID: typ.ID})
	d1, _ := f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{Name: "d1", SerialNumber: "S1", TypeID: typ.ID, GroupID: &group.ID})
	f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{Name: "d2", SerialNumber: "S2", TypeID: typ.ID, GroupID: &group.ID})
	fw := f.uploadFirmware(t, typ.ID, "fw", []byte("abc"))

	deployment, err := f.svc.Deployments.Create(ctx, f.tenant, database.DeploymentFields{Name: "rollout", GroupID: group.ID, FirmwareID: fw.ID})
	if err != nil {
		t.Fatalf("Failed to create deployment: %s", err.Error())
	}

	tasks, _ := f.svc.Deployments.ListTasks(ctx, f.tenant, deployment.ID)
	if len(tasks) != 2 || tasks[0].State != models.TaskPlanned {
		t.Fatalf("Expected two planned tasks, got %+v", tasks)
	}

	for i, task := range tasks {
		state := models.TaskCompleted
		if task.DeviceID != d1.ID {
			state = models.TaskFailed
		}

		if _, err := f.svc.Deployments.UpdateTask(ctx, f.tenant, deployment.ID, task.ID, state); err != nil {
			t.Fatalf("Failed to update task %d: %s", i, err.Error())
		}
	}

	deployment, _ = f.svc.Deployments.Get(ctx, f.tenant, deployment.ID)
	if deployment.CompletedAt == nil {
		t.Error("Deployment should be completed")
	}

	device, _ := f.svc.Devices.Get(ctx, f.tenant, d1.ID)
	if device.FirmwareID == nil || *device.FirmwareID != fw.ID {
		t.Error("Completed task should install the firmware on its device")
	}

	if _, err := f.svc.Deployments.UpdateTask(ctx, f.tenant, deployment.ID, tasks[0].ID, "exploded"); err == nil {
		t.Error("Unknown task states should be rejected")
	}
}

func TestThatDeploymentFirmwareMustMatchTheGroupType(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	t1, t2 := f.createType(t, "t1"), f.createType(t, "t2")

	group, _ := f.svc.Groups.Create(ctx, f.tenant, database.GroupFields{Name: "g", TypeID: t1.ID})
	fw := f.uploadFirmware(t, t2.ID, "fw", []byte("abc"))

	_, err := f.svc.Deployments.Create(ctx, f.tenant, database.DeploymentFields{Name: "rollout", GroupID: group.ID, FirmwareID: fw.ID})
	expectNotFound(t, err, fw.ID)
}

func TestThatUpdatingAGroupKeepsItsType(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	t1, t2 := f.createType(t, "t1"), f.createType(t, "t2")
	group, _ := f.svc.Groups.Create(ctx, f.tenant, database.GroupFields{Name: "g", TypeID: t1.ID})
	device, _ := f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{Name: "d", SerialNumber: "S", TypeID: t1.ID, GroupID: &group.ID})

	updated, err := f.svc.Groups.Update(ctx, f.tenant, group.ID, database.GroupFields{Name: "renamed", TypeID: t2.ID})
	if err != nil {
		t.Fatalf("Failed to update group: %s", err.Error())
	}
	if updated.Name != "renamed" || updated.TypeID != t1.ID {
		t.Errorf("Expected a renamed group of type %s, got %+v", t1.ID, updated)
	}

	stored, _ := f.svc.Groups.Get(ctx, f.tenant, group.ID)
	d, _ := f.svc.Devices.Get(ctx, f.tenant, device.ID)
	if stored.TypeID != d.TypeID {
		t.Errorf("Device of type %s ended up in a group of type %s", d.TypeID, stored.TypeID)
	}
}

func TestThatGroupFirmwareIsCheckedAgainstTheStoredType(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	t1, t2 := f.createType(t, "t1"), f.createType(t, "t2")
	group, _ := f.svc.Groups.Create(ctx, f.tenant, database.GroupFields{Name: "g", TypeID: t1.ID})
	fw := f.uploadFirmware(t, t2.ID, "fw", []byte("abc"))

	_, err := f.svc.Groups.Update(ctx, f.tenant, group.ID, database.GroupFields{Name: "g", TypeID: t2.ID, AssignedFirmwareID: &fw.ID})
	expectNotFound(t, err, fw.ID)

	missing := uuid.New()
	_, err = f.svc.Groups.Update(ctx, f.tenant, missing, database.GroupFields{Name: "g"})
	expectNotFound(t, err, missing)
}

func TestThatUpdatingATagKeepsItsType(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	t1, t2 := f.createType(t, "t1"), f.createType(t, "t2")
	tag, _ := f.svc.Tags.Create(ctx, f.tenant, database.TagFields{Name: "red", TypeID: t1.ID})
	f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{Name: "d", SerialNumber: "S", TypeID: t1.ID, TagIDs: []uuid.UUID{tag.ID}})

	updated, err := f.svc.Tags.Update(ctx, f.tenant, tag.ID, database.TagFields{Name: "blue", Color: "#0000FF", TypeID: t2.ID})
	if err != nil {
		t.Fatalf("Failed to update tag: %s", err.Error())
	}
	if updated.Name != "blue" || updated.TypeID != t1.ID {
		t.Errorf("Expected a renamed tag of type %s, got %+v", t1.ID, updated)
	}
}

func TestThatDeletingATypeRemovesItsFirmwareBinaries(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()

	doomed, kept := f.createType(t, "doomed"), f.createType(t, "kept")
	gone := f.uploadFirmware(t, doomed.ID, "gone", []byte("abc"))
	stays := f.uploadFirmware(t, kept.ID, "stays", []byte("def"))

	if err := f.svc.Types.Delete(ctx, f.tenant, doomed.ID); err != nil {
		t.Fatalf("Delete failed: %s", err.Error())
	}

	if _, err := f.store.Download(ctx, f.tenant, gone.ID); !errors.Is(err, blobstore.ErrObjectNotFound) {
		t.Errorf("Expected the binary of the deleted type to be gone, got %v", err)
	}

	stream, err := f.store.Download(ctx, f.tenant, stays.ID)
	if err != nil {
		t.Fatalf("The binary of another type should be kept: %s", err.Error())
	}
	stream.Close()
}

func TestThatTaskLogsRequireAnExistingTaskOfTheDeployment(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")

	group, _ := f.svc.Groups.Create(ctx, f.tenant, database.GroupFields{Name: "g", TypeID: typ.ID})
	f.svc.Devices.Create(ctx, f.tenant, database.DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID, GroupID: &group.ID})
	fw := f.uploadFirmware(t, typ.ID, "fw", []byte("abc"))
	deployment, _ := f.svc.Deployments.Create(ctx, f.tenant, database.DeploymentFields{Name: "rollout", GroupID: group.ID, FirmwareID: fw.ID})
	tasks, _ := f.svc.Deployments.ListTasks(ctx, f.tenant, deployment.ID)

	entry, err := f.svc.Deployments.AddTaskLog(ctx, f.tenant, deployment.ID, tasks[0].ID, "rebooting")
	if err != nil {
		t.Fatalf("AddTaskLog failed: %s", err.Error())
	}
	if entry.TaskID != tasks[0].ID || entry.Message != "rebooting" {
		t.Errorf("Unexpected log entry %+v", entry)
	}

	otherDeployment := uuid.New()
	_, err = f.svc.Deployments.AddTaskLog(ctx, f.tenant, otherDeployment, tasks[0].ID, "lost")
	expectNotFound(t, err, tasks[0].ID)

	_, err = f.svc.Deployments.ListTaskLogs(ctx, uuid.New(), deployment.ID, tasks[0].ID, database.NewPagination(1, 10))
	expectNotFound(t, err, tasks[0].ID)

	_, err = f.svc.Deployments.AddTaskLog(ctx, f.tenant, deployment.ID, tasks[0].ID, "")
	validation := &ValidationError{}
	if !errors.As(err, &validation) || validation.Field != "message" {
		t.Errorf("Expected a ValidationError on message, got %v", err)
	}

	page, _ := f.svc.Deployments.ListTaskLogs(ctx, f.tenant, deployment.ID, tasks[0].ID, database.NewPagination(1, 10))
	if page.Total != 1 {
		t.Errorf("Expected one log entry, got %d", page.Total)
	}
}

func TestThatATypeWithDeploymentsCannotBeDeleted(t *testing.T) {
	f := newServicesForTest(t)
	ctx := context.Background()
	typ := f.createType(t, "t")

	group, _ := f.svc.Groups.Create(ctx, f.tenant, database.GroupFields{Name: "g", TypeID: typ.ID})
	fw := f.uploadFirmware(t, typ.ID, "fw", []byte("abc"))
	f.svc.Deployments.Create(ctx, f.tenant, database.DeploymentFields{Name: "rollout", GroupID: group.ID, FirmwareID: fw.ID})

	err := f.svc.Types.Delete(ctx, f.tenant, typ.ID)
	conflict := &ConflictError{}
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected a ConflictError, got %v", err)
	}

	stream, err := f.store.Download(ctx, f.tenant, fw.ID)
	if err != nil {
		t.Fatal("Firmware binaries must be kept when the delete is rejected")
	}
	stream.Close()
}
