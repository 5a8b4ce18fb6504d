package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nlfiedler/zorigami-sub002/internal/backup"
	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
	"github.com/nlfiedler/zorigami-sub002/internal/packstore"
)

func TestShouldRunNoSchedulesNeverDue(t *testing.T) {
	dataset := catalog.Dataset{ID: "ds1"}
	if ShouldRun(dataset, BackupStatus{}, nil, time.Now()) {
		t.Fatal("expected a dataset with no schedules to never be due")
	}
}

func TestShouldRunFirstEverBackupIsDue(t *testing.T) {
	dataset := catalog.Dataset{ID: "ds1", Schedules: []catalog.Schedule{{Interval: time.Hour}}}
	if !ShouldRun(dataset, BackupStatus{}, nil, time.Now()) {
		t.Fatal("expected a dataset with no prior snapshot to be due")
	}
}

func TestShouldRunAlreadyRunningIsNotDue(t *testing.T) {
	dataset := catalog.Dataset{ID: "ds1", Schedules: []catalog.Schedule{{Interval: time.Hour}}}
	status := BackupStatus{Kind: RunningBackup}
	if ShouldRun(dataset, status, nil, time.Now()) {
		t.Fatal("expected an in-flight backup to not be due again")
	}
}

func TestShouldRunInterruptedRestartIsDue(t *testing.T) {
	dataset := catalog.Dataset{ID: "ds1", Schedules: []catalog.Schedule{{Interval: time.Hour}}}
	latest := &catalog.Snapshot{StartTime: time.Now().Add(-time.Minute)} // zero EndTime
	if !ShouldRun(dataset, BackupStatus{}, latest, time.Now()) {
		t.Fatal("expected an interrupted snapshot with no Running state to be due")
	}
}

func TestShouldRunPriorErrorIsDueImmediately(t *testing.T) {
	dataset := catalog.Dataset{ID: "ds1", Schedules: []catalog.Schedule{{Interval: time.Hour}}}
	latest := &catalog.Snapshot{StartTime: time.Now().Add(-time.Minute), EndTime: time.Now().Add(-time.Minute)}
	status := BackupStatus{Kind: ErrorBackup}
	if !ShouldRun(dataset, status, latest, time.Now()) {
		t.Fatal("expected a dataset whose last attempt errored to be due on the next tick")
	}
}

func TestShouldRunIntervalNotYetElapsed(t *testing.T) {
	dataset := catalog.Dataset{ID: "ds1", Schedules: []catalog.Schedule{{Interval: time.Hour}}}
	now := time.Now()
	latest := &catalog.Snapshot{EndTime: now.Add(-time.Minute)}
	if ShouldRun(dataset, BackupStatus{}, latest, now) {
		t.Fatal("expected a recently completed snapshot to not be due yet")
	}
}

func TestShouldRunIntervalElapsed(t *testing.T) {
	dataset := catalog.Dataset{ID: "ds1", Schedules: []catalog.Schedule{{Interval: time.Hour}}}
	now := time.Now()
	latest := &catalog.Snapshot{EndTime: now.Add(-2 * time.Hour)}
	if !ShouldRun(dataset, BackupStatus{}, latest, now) {
		t.Fatal("expected a snapshot older than the schedule interval to be due")
	}
}

func TestShouldRunUsesShortestSchedule(t *testing.T) {
	dataset := catalog.Dataset{ID: "ds1", Schedules: []catalog.Schedule{
		{Interval: 24 * time.Hour},
		{Interval: 5 * time.Minute},
	}}
	now := time.Now()
	latest := &catalog.Snapshot{EndTime: now.Add(-10 * time.Minute)}
	if !ShouldRun(dataset, BackupStatus{}, latest, now) {
		t.Fatal("expected the shortest matching schedule interval to govern due-ness")
	}
}

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func newTestMulti(t *testing.T) *packstore.Multi {
	t.Helper()
	local, err := packstore.NewLocal("store-1", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	multi, err := packstore.NewMulti(local)
	if err != nil {
		t.Fatal(err)
	}
	return multi
}

func TestSchedulerRunsDueDatasetAndPublishesFinished(t *testing.T) {
	cat := openTestCatalog(t)
	store := newTestMulti(t)

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	dataset := catalog.Dataset{
		ID:        "ds1",
		Basepath:  root,
		PackSize:  4096,
		Stores:    []string{"store-1"},
		Schedules: []catalog.Schedule{{Interval: time.Hour}},
	}
	if err := cat.PutDataset(dataset); err != nil {
		t.Fatal(err)
	}

	state := NewStore()
	sched := &Scheduler{
		Catalog:      cat,
		Datasets:     cat,
		Performer:    &backup.Performer{Catalog: cat, Store: store, ComputerID: "computer-1", Passphrase: "correct horse battery staple"},
		State:        state,
		TickInterval: 20 * time.Millisecond,
	}
	sched.Start()
	defer sched.Stop()

	if _, ok := state.WaitForBackup("ds1", Finished, 2*time.Second); !ok {
		t.Fatal("expected the dataset's backup to finish")
	}
}

func TestSchedulerStopDatasetCancelsRun(t *testing.T) {
	cat := openTestCatalog(t)
	store := newTestMulti(t)

	root := t.TempDir()
	for i := 0; i < 50; i++ {
		name := filepath.Join(root, "f"+string(rune('a'+i%26))+".bin")
		if err := os.WriteFile(name, make([]byte, 50000), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dataset := catalog.Dataset{
		ID:        "ds2",
		Basepath:  root,
		PackSize:  1024,
		Stores:    []string{"store-1"},
		Schedules: []catalog.Schedule{{Interval: time.Hour}},
	}
	if err := cat.PutDataset(dataset); err != nil {
		t.Fatal(err)
	}

	state := NewStore()
	sched := &Scheduler{
		Catalog:      cat,
		Datasets:     cat,
		Performer:    &backup.Performer{Catalog: cat, Store: store, ComputerID: "computer-1", Passphrase: "correct horse battery staple"},
		State:        state,
		TickInterval: 20 * time.Millisecond,
	}
	sched.Start()

	if _, ok := state.WaitForBackup("ds2", RunningBackup, 2*time.Second); !ok {
		t.Fatal("expected the backup to start running")
	}
	sched.StopDataset("ds2")
	sched.Stop()

	status := state.BackupOf("ds2")
	if status.Kind == RunningBackup {
		t.Fatalf("expected the dataset to no longer be running after stop, got %v", status.Kind)
	}
}

func TestSchedulerStartStopLifecycle(t *testing.T) {
	cat := openTestCatalog(t)
	store := newTestMulti(t)
	state := NewStore()
	sched := &Scheduler{
		Catalog:      cat,
		Datasets:     cat,
		Performer:    &backup.Performer{Catalog: cat, Store: store, ComputerID: "computer-1", Passphrase: "x"},
		State:        state,
		TickInterval: 10 * time.Millisecond,
	}
	sched.Start()
	if state.SupervisorLifecycle() != Running {
		t.Fatalf("lifecycle = %v, want Running", state.SupervisorLifecycle())
	}
	sched.Stop()
	if state.SupervisorLifecycle() != Stopped {
		t.Fatalf("lifecycle = %v, want Stopped", state.SupervisorLifecycle())
	}
}
