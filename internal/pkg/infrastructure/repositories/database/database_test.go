package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/repositories/models"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func TestThatAnEntityCreatedByOneTenantIsInvisibleToAnother(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenantA, tenantB := uuid.New(), uuid.New()

		created, err := db.Types().Create(ctx, tenantA, TypeFields{Name: "thermometer"})
		if err != nil {
			t.Fatalf("Create failed: %s", err.Error())
		}

		found, err := db.Types().GetByID(ctx, tenantB, created.ID)
		if err != nil || found != nil {
			t.Errorf("Tenant B should not see tenant A's type (found=%v, err=%v)", found, err)
		}

		page, _ := db.Types().List(ctx, tenantB, TypeFilter{}, NewPagination(1, 10))
		if page.Total != 0 {
			t.Errorf("Tenant B listing returned %d types", page.Total)
		}

		_, err = db.Types().Update(ctx, tenantB, created.ID, TypeFields{Name: "stolen"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Update across tenants should fail with ErrNotFound, got %v", err)
		}

		if err := db.Types().Delete(ctx, tenantB, created.ID); err != nil {
			t.Errorf("Delete across tenants should be a no-op, got %s", err.Error())
		}

		found, _ = db.Types().GetByID(ctx, tenantA, created.ID)
		if found == nil || found.Name != "thermometer" {
			t.Error("Tenant A's type was modified by tenant B")
		}
	}
}

func TestThatCreateTypeAssignsServerFields(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		description := "outdoor sensors"
		created, err := db.Types().Create(context.Background(), uuid.New(), TypeFields{Name: "sensor", Description: &description})
		if err != nil {
			t.Fatalf("Create failed: %s", err.Error())
		}

		if created.ID == uuid.Nil || created.SecretKey == uuid.Nil {
			t.Error("Create did not assign id and secret key")
		}
		if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
			t.Error("Create did not assign timestamps")
		}
		if created.Description == nil || *created.Description != description {
			t.Error("Create did not store the description")
		}
	}
}

func TestThatTypeNamesAreUniquePerTenant(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenantA, tenantB := uuid.New(), uuid.New()

		if _, err := db.Types().Create(ctx, tenantA, TypeFields{Name: "gateway"}); err != nil {
			t.Fatalf("Create failed: %s", err.Error())
		}

		_, err := db.Types().Create(ctx, tenantA, TypeFields{Name: "gateway"})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict for duplicate name, got %v", err)
		}

		if _, err := db.Types().Create(ctx, tenantB, TypeFields{Name: "gateway"}); err != nil {
			t.Errorf("Same name under another tenant should succeed: %s", err.Error())
		}
	}
}

func TestThatListPagesAreDisjointAndCoverAllRows(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		for i := 0; i < 7; i++ {
			db.Types().Create(ctx, tenant, TypeFields{Name: fmt.Sprintf("type-%d", i)})
		}

		seen := map[uuid.UUID]bool{}
		for p := 1; p <= 3; p++ {
			page, err := db.Types().List(ctx, tenant, TypeFilter{}, NewPagination(p, 3))
			if err != nil {
				t.Fatalf("List failed: %s", err.Error())
			}
			if page.Total != 7 || page.Pages != 3 {
				t.Errorf("Unexpected counters total=%d pages=%d", page.Total, page.Pages)
			}
			for _, item := range page.Items {
				if seen[item.ID] {
					t.Errorf("Type %s returned on more than one page", item.ID)
				}
				seen[item.ID] = true
			}
		}

		if len(seen) != 7 {
			t.Errorf("Pages covered %d of 7 types", len(seen))
		}
	}
}

func TestThatListHonoursOrderBy(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		for _, name := range []string{"bravo", "alpha", "charlie"} {
			db.Types().Create(ctx, tenant, TypeFields{Name: name})
		}

		order, _ := ParseOrderBy("-name")
		page, _ := db.Types().List(ctx, tenant, TypeFilter{OrderBy: order}, NewPagination(1, 10))

		if len(page.Items) != 3 || page.Items[0].Name != "charlie" || page.Items[2].Name != "alpha" {
			t.Errorf("Unexpected order: %v", page.Items)
		}
	}
}

func TestThatParseOrderByRejectsUnknownFields(t *testing.T) {
	if _, err := ParseOrderBy("name,-secret_key"); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Expected ErrInvalidOrder, got %v", err)
	}

	order, err := ParseOrderBy(" created_at , -updated_at")
	if err != nil || len(order) != 2 || order[0].Desc || !order[1].Desc {
		t.Errorf("Unexpected parse result %v (%v)", order, err)
	}
}

func TestThatNewPaginationClampsValues(t *testing.T) {
	p := NewPagination(0, 1000)
	if p.Page != 1 || p.Size != MaxPageSize {
		t.Errorf("Unexpected pagination %+v", p)
	}

	p = NewPagination(3, 0)
	if p.Size != DefaultPageSize || p.Offset() != 2*DefaultPageSize {
		t.Errorf("Unexpected pagination %+v", p)
	}
}

func TestThatDeviceFiltersAreConjunctive(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		t1, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t1"})
		t2, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t2"})

		db.Devices().Create(ctx, tenant, DeviceFields{Name: "pump-1", SerialNumber: "S1", TypeID: t1.ID})
		db.Devices().Create(ctx, tenant, DeviceFields{Name: "pump-2", SerialNumber: "S2", TypeID: t2.ID})
		db.Devices().Create(ctx, tenant, DeviceFields{Name: "valve-1", SerialNumber: "S3", TypeID: t1.ID})

		page, err := db.Devices().List(ctx, tenant, DeviceFilter{Name: "pump", TypeID: &t1.ID}, NewPagination(1, 10))
		if err != nil {
			t.Fatalf("List failed: %s", err.Error())
		}

		if page.Total != 1 || page.Items[0].SerialNumber != "S1" {
			t.Errorf("Expected only S1, got %v", page.Items)
		}

		page, _ = db.Devices().List(ctx, tenant, DeviceFilter{}, NewPagination(1, 10))
		if page.Total != 3 {
			t.Errorf("Empty filter should match all 3 devices, got %d", page.Total)
		}
	}
}

func TestThatDeviceTagsRoundTrip(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		typ, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t"})
		red, _ := db.Tags().Create(ctx, tenant, TagFields{Name: "red", Color: "#FF0000", TypeID: typ.ID})
		blue, _ := db.Tags().Create(ctx, tenant, TagFields{Name: "blue", Color: "#0000FF", TypeID: typ.ID})

		device, err := db.Devices().Create(ctx, tenant, DeviceFields{
			Name: "d", SerialNumber: "S", TypeID: typ.ID, TagIDs: []uuid.UUID{red.ID, blue.ID, red.ID},
		})
		if err != nil {
			t.Fatalf("Create failed: %s", err.Error())
		}

		found, _ := db.Devices().GetByID(ctx, tenant, device.ID)
		if len(found.TagIDs) != 2 {
			t.Errorf("Expected 2 tags, got %v", found.TagIDs)
		}

		page, _ := db.Devices().List(ctx, tenant, DeviceFilter{TagID: &blue.ID}, NewPagination(1, 10))
		if page.Total != 1 {
			t.Errorf("Tag filter should match the device, got %d", page.Total)
		}

		db.Devices().Update(ctx, tenant, device.ID, DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID, TagIDs: []uuid.UUID{blue.ID}})
		found, _ = db.Devices().GetByID(ctx, tenant, device.ID)
		if len(found.TagIDs) != 1 || found.TagIDs[0] != blue.ID {
			t.Errorf("Update should replace the tags, got %v", found.TagIDs)
		}

		db.Tags().Delete(ctx, tenant, blue.ID)
		found, _ = db.Devices().GetByID(ctx, tenant, device.ID)
		if len(found.TagIDs) != 0 {
			t.Errorf("Deleting a tag should detach it from devices, got %v", found.TagIDs)
		}
	}
}

func TestThatDeletingATypeCascades(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		typ, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t"})
		group, _ := db.Groups().Create(ctx, tenant, GroupFields{Name: "g", TypeID: typ.ID})
		device, _ := db.Devices().Create(ctx, tenant, DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID, GroupID: &group.ID})

		if err := db.Types().Delete(ctx, tenant, typ.ID); err != nil {
			t.Fatalf("Delete failed: %s", err.Error())
		}

		if g, _ := db.Groups().GetByID(ctx, tenant, group.ID); g != nil {
			t.Error("Group should have been deleted with its type")
		}
		if d, _ := db.Devices().GetByID(ctx, tenant, device.ID); d != nil {
			t.Error("Device should have been deleted with its type")
		}
	}
}

func TestThatDeletingAReferencedGroupConflicts(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		typ, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t"})
		group, _ := db.Groups().Create(ctx, tenant, GroupFields{Name: "g", TypeID: typ.ID})
		db.Devices().Create(ctx, tenant, DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID, GroupID: &group.ID})

		err := db.Groups().Delete(ctx, tenant, group.ID)
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}
	}
}

func TestThatBelongsToChecksTenantAndType(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		t1, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t1"})
		t2, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t2"})
		group, _ := db.Groups().Create(ctx, tenant, GroupFields{Name: "g", TypeID: t1.ID})

		if ok, _ := db.Groups().BelongsTo(ctx, group.ID, Owner{CompanyID: tenant, TypeID: t1.ID}); !ok {
			t.Error("Group should belong to tenant and type t1")
		}
		if ok, _ := db.Groups().BelongsTo(ctx, group.ID, Owner{CompanyID: tenant, TypeID: t2.ID}); ok {
			t.Error("Group should not belong to type t2")
		}
		if ok, _ := db.Groups().BelongsTo(ctx, group.ID, Owner{CompanyID: uuid.New()}); ok {
			t.Error("Group should not belong to another tenant")
		}
	}
}

func TestThatPendingFirmwareIsInvisibleUntilReady(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		typ, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t"})
		fw, err := db.Firmware().CreatePending(ctx, tenant, typ.ID, FirmwareFields{Name: "fw", Version: "1.0.0", SerialNumber: "F1"})
		if err != nil {
			t.Fatalf("CreatePending failed: %s", err.Error())
		}

		if found, _ := db.Firmware().GetByID(ctx, tenant, fw.ID); found != nil {
			t.Error("Pending firmware should not be returned")
		}
		if ok, _ := db.Firmware().BelongsTo(ctx, fw.ID, Owner{CompanyID: tenant}); ok {
			t.Error("Pending firmware should not pass ownership checks")
		}

		if _, err := db.Firmware().MarkReady(ctx, tenant, fw.ID, 42, "abc"); err != nil {
			t.Fatalf("MarkReady failed: %s", err.Error())
		}

		found, _ := db.Firmware().GetByID(ctx, tenant, fw.ID)
		if found == nil || found.Size != 42 || found.State != models.FirmwareReady {
			t.Errorf("Ready firmware not returned correctly: %+v", found)
		}
	}
}

func TestThatRolledBackUnitOfWorkLeavesNoTrace(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		uow, err := db.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin failed: %s", err.Error())
		}

		created, err := uow.Types().Create(ctx, tenant, TypeFields{Name: "t"})
		if err != nil {
			t.Fatalf("Create failed: %s", err.Error())
		}

		if err := uow.Rollback(); err != nil {
			t.Fatalf("Rollback failed: %s", err.Error())
		}

		if found, _ := db.Types().GetByID(ctx, tenant, created.ID); found != nil {
			t.Error("Rolled back type should not exist")
		}
	}
}

func TestThatRollbackAfterCommitIsANoop(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		uow, _ := db.Begin(ctx)
		created, _ := uow.Types().Create(ctx, tenant, TypeFields{Name: "t"})

		if err := uow.Commit(); err != nil {
			t.Fatalf("Commit failed: %s", err.Error())
		}
		if err := uow.Rollback(); err != nil {
			t.Errorf("Rollback after commit should be a no-op, got %s", err.Error())
		}
		if err := uow.Commit(); !errors.Is(err, ErrUnitOfWorkDone) {
			t.Errorf("Second commit should fail with ErrUnitOfWorkDone, got %v", err)
		}

		if found, _ := db.Types().GetByID(ctx, tenant, created.ID); found == nil {
			t.Error("Committed type should exist")
		}
	}
}

func TestThatDeploymentTasksCanBeCreatedAndUpdated(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		typ, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t"})
		group, _ := db.Groups().Create(ctx, tenant, GroupFields{Name: "g", TypeID: typ.ID})
		d1, _ := db.Devices().Create(ctx, tenant, DeviceFields{Name: "d1", SerialNumber: "S1", TypeID: typ.ID, GroupID: &group.ID})
		d2, _ := db.Devices().Create(ctx, tenant, DeviceFields{Name: "d2", SerialNumber: "S2", TypeID: typ.ID, GroupID: &group.ID})
		fw, _ := db.Firmware().CreatePending(ctx, tenant, typ.ID, FirmwareFields{Name: "fw", Version: "1", SerialNumber: "F"})
		db.Firmware().MarkReady(ctx, tenant, fw.ID, 1, "")

		deployment, err := db.Deployments().Create(ctx, tenant, DeploymentFields{Name: "rollout", GroupID: group.ID, FirmwareID: fw.ID})
		if err != nil {
			t.Fatalf("Create failed: %s", err.Error())
		}

		ids, _ := db.Devices().ListIDsInGroup(ctx, tenant, group.ID)
		if len(ids) != 2 || !containsID(ids, d1.ID) || !containsID(ids, d2.ID) {
			t.Errorf("Unexpected group members %v", ids)
		}

		tasks, err := db.Deployments().CreateTasks(ctx, tenant, deployment.ID, ids)
		if err != nil || len(tasks) != 2 {
			t.Fatalf("CreateTasks failed: %v", err)
		}

		task, err := db.Deployments().UpdateTaskState(ctx, tenant, deployment.ID, tasks[0].ID, models.TaskRunning)
		if err != nil || task.State != models.TaskRunning {
			t.Errorf("UpdateTaskState failed: %v", err)
		}

		_, err = db.Deployments().UpdateTaskState(ctx, uuid.New(), deployment.ID, tasks[0].ID, models.TaskFailed)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Updating another tenant's task should fail with ErrNotFound, got %v", err)
		}
	}
}

func createDeploymentForTest(t *testing.T, db Datastore, tenant uuid.UUID) (*models.Deployment, *models.Group, *models.Device, models.DeploymentTask) {
	ctx := context.Background()

	typ, _ := db.Types().Create(ctx, tenant, TypeFields{Name: "t"})
	group, _ := db.Groups().Create(ctx, tenant, GroupFields{Name: "g", TypeID: typ.ID})
	device, _ := db.Devices().Create(ctx, tenant, DeviceFields{Name: "d", SerialNumber: "S", TypeID: typ.ID, GroupID: &group.ID})
	fw, _ := db.Firmware().CreatePending(ctx, tenant, typ.ID, FirmwareFields{Name: "fw", Version: "1", SerialNumber: "F"})
	db.Firmware().MarkReady(ctx, tenant, fw.ID, 1, "")

	deployment, err := db.Deployments().Create(ctx, tenant, DeploymentFields{Name: "rollout", GroupID: group.ID, FirmwareID: fw.ID})
	if err != nil {
		t.Fatalf("Create failed: %s", err.Error())
	}

	tasks, err := db.Deployments().CreateTasks(ctx, tenant, deployment.ID, []uuid.UUID{device.ID})
	if err != nil {
		t.Fatalf("CreateTasks failed: %s", err.Error())
	}

	return deployment, group, device, tasks[0]
}

func TestThatDeploymentsProtectTheirGroupAndDevices(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		deployment, group, device, _ := createDeploymentForTest(t, db, tenant)

		if err := db.Devices().Delete(ctx, tenant, device.ID); !errors.Is(err, ErrConflict) {
			t.Errorf("Deleting a device with tasks should conflict, got %v", err)
		}

		db.Devices().Update(ctx, tenant, device.ID, DeviceFields{Name: "d", SerialNumber: "S", TypeID: device.TypeID})
		if err := db.Groups().Delete(ctx, tenant, group.ID); !errors.Is(err, ErrConflict) {
			t.Errorf("Deleting a group with deployments should conflict, got %v", err)
		}

		if err := db.Deployments().Delete(ctx, tenant, deployment.ID); err != nil {
			t.Fatalf("Deleting the deployment failed: %s", err.Error())
		}
		if err := db.Groups().Delete(ctx, tenant, group.ID); err != nil {
			t.Errorf("The group should be deletable once its deployment is gone, got %v", err)
		}
		if err := db.Devices().Delete(ctx, tenant, device.ID); err != nil {
			t.Errorf("The device should be deletable once its tasks are gone, got %v", err)
		}
	}
}

func TestThatTaskLogsAreKeptPerTask(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		tenant := uuid.New()

		deployment, _, _, task := createDeploymentForTest(t, db, tenant)

		for _, message := range []string{"downloading", "flashing"} {
			if _, err := db.Deployments().AddTaskLog(ctx, tenant, task.ID, message); err != nil {
				t.Fatalf("AddTaskLog failed: %s", err.Error())
			}
		}

		page, err := db.Deployments().ListTaskLogs(ctx, tenant, task.ID, NewPagination(1, 10))
		if err != nil || page.Total != 2 {
			t.Fatalf("Expected two log entries, got %v (%v)", page, err)
		}
		if page.Items[0].Message != "downloading" || page.Items[1].Message != "flashing" {
			t.Errorf("Expected the oldest entry first, got %q, %q", page.Items[0].Message, page.Items[1].Message)
		}

		other, _ := db.Deployments().ListTaskLogs(ctx, uuid.New(), task.ID, NewPagination(1, 10))
		if other.Total != 0 {
			t.Error("Another tenant should not see the log")
		}

		if _, err := db.Deployments().AddTaskLog(ctx, tenant, uuid.New(), "orphan"); !errors.Is(err, ErrConflict) {
			t.Errorf("A log entry for a missing task should violate the foreign key, got %v", err)
		}

		db.Deployments().Delete(ctx, tenant, deployment.ID)
		page, _ = db.Deployments().ListTaskLogs(ctx, tenant, task.ID, NewPagination(1, 10))
		if page.Total != 0 {
			t.Error("Deleting a deployment should remove the logs of its tasks")
		}
	}
}

func newDatabaseForTest(t *testing.T) (Datastore, bool) {
	log := logging.NewLogger()
	db, err := NewDatabaseConnection(NewSQLiteConnector(), log)

	if err != nil {
		t.Error(err.Error())
		return nil, false
	}

	t.Cleanup(func() { db.Close() })

	return db, true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
