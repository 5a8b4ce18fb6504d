package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nlfiedler/zorigami-sub002/internal/backup"
	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// DefaultTickInterval is how often the scheduler loop re-evaluates every
// dataset when no other interval is configured.
const DefaultTickInterval = 5 * time.Minute

// ShouldRun reports whether dataset is due for a backup, given its current
// published status and its most recent snapshot (if any is recorded).
//
//   - No schedules configured: never due.
//   - Currently Running in the state store: not due (already in flight).
//   - No latest snapshot recorded at all: due (first-ever backup).
//   - Latest snapshot has no end_time (interrupted mid-backup) and the state
//     store has no Running entry for it (process restarted): due, so the
//     walker resumes diffing against the same in-progress baseline.
//   - Latest snapshot's last attempt ended in Error: due immediately, for a
//     retry on the very next tick.
//   - Otherwise due once now has reached end_time plus the shortest
//     configured schedule interval; not due before then.
func ShouldRun(dataset catalog.Dataset, status BackupStatus, latest *catalog.Snapshot, now time.Time) bool {
	if len(dataset.Schedules) == 0 {
		return false
	}
	if status.Kind == RunningBackup {
		return false
	}
	if latest == nil {
		return true
	}
	if latest.InProgress() && status.Kind != RunningBackup {
		return true
	}
	if status.Kind == ErrorBackup {
		return true
	}

	interval := shortestInterval(dataset.Schedules)
	return !now.Before(latest.EndTime.Add(interval))
}

func shortestInterval(schedules []catalog.Schedule) time.Duration {
	shortest := schedules[0].Interval
	for _, sch := range schedules[1:] {
		if sch.Interval < shortest {
			shortest = sch.Interval
		}
	}
	return shortest
}

// DatasetSource supplies the set of datasets the scheduler evaluates each
// tick; a thin seam so tests can swap in a fixed list without a catalog.
type DatasetSource interface {
	ListDatasets() ([]catalog.Dataset, error)
}

// Scheduler drives one backup.Performer per due dataset, polling on a fixed
// tick interval and publishing progress/lifecycle through a Store.
type Scheduler struct {
	Catalog      *catalog.Catalog
	Datasets     DatasetSource
	Performer    *backup.Performer
	State        *Store
	TickInterval time.Duration

	mu      sync.Mutex
	stopped map[string]chan struct{} // per-dataset stop signal, set while running
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Start launches the scheduler loop. Returns once the loop goroutine has
// been started; it runs until Stop is called.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.stopped = make(map[string]chan struct{})
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.State.SetSupervisorLifecycle(Starting)

	interval := s.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	s.wg.Add(1)
	go s.loop(interval)
	s.State.SetSupervisorLifecycle(Running)
}

// Stop signals every worker and the loop itself, then blocks until all have
// observed the signal at their next checkpoint.
func (s *Scheduler) Stop() {
	s.State.SetSupervisorLifecycle(StoppingLifecycle)
	s.cancel()
	s.wg.Wait()
	s.State.SetSupervisorLifecycle(Stopped)
}

// StopDataset requests that a specific dataset's in-flight backup (if any)
// stop at its next cancellation checkpoint, corresponding to the
// `backup_event(Stop(id))` control surface.
func (s *Scheduler) StopDataset(datasetID string) {
	s.mu.Lock()
	ch, ok := s.stopped[datasetID]
	s.mu.Unlock()
	if ok {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

func (s *Scheduler) loop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	datasets, err := s.Datasets.ListDatasets()
	if err != nil {
		slog.Error("scheduler: list datasets failed", "error", err)
		return
	}

	now := time.Now()
	for _, dataset := range datasets {
		status := s.State.BackupOf(dataset.ID)

		var latest *catalog.Snapshot
		if d, err := s.Catalog.GetLatestSnapshot(dataset.ID); err == nil {
			if snap, err := s.Catalog.GetSnapshot(d); err == nil {
				latest = &snap
			}
		}

		if !ShouldRun(dataset, status, latest, now) {
			continue
		}

		s.launch(dataset)
	}
}

func (s *Scheduler) launch(dataset catalog.Dataset) {
	stopCh := make(chan struct{})
	s.mu.Lock()
	s.stopped[dataset.ID] = stopCh
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(s.ctx)
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.runOne(runCtx, dataset)
		s.mu.Lock()
		delete(s.stopped, dataset.ID)
		s.mu.Unlock()
	}()
}

func (s *Scheduler) runOne(ctx context.Context, dataset catalog.Dataset) {
	onProgress := s.Performer.OnProgress
	performer := *s.Performer
	performer.OnProgress = func(p backup.Progress) {
		s.State.PublishBackup(dataset.ID, BackupStatus{
			Kind:  RunningBackup,
			Packs: p.PacksUploaded,
			Files: p.FilesUploaded,
			Bytes: p.BytesUploaded,
			Path:  p.CurrentPath,
		})
		if onProgress != nil {
			onProgress(p)
		}
	}

	start := time.Now()
	s.State.PublishBackup(dataset.ID, BackupStatus{Kind: RunningBackup, StartTime: start})

	res := performer.Run(ctx, dataset)
	switch res.Outcome {
	case backup.Completed:
		s.State.PublishBackup(dataset.ID, BackupStatus{
			Kind:      Finished,
			StartTime: start,
			EndTime:   time.Now(),
		})
	case backup.Stopped:
		s.State.PublishBackup(dataset.ID, BackupStatus{Kind: None})
	case backup.Failed:
		msg := ""
		if res.Err != nil {
			msg = res.Err.Error()
		}
		s.State.PublishBackup(dataset.ID, BackupStatus{Kind: ErrorBackup, Message: msg})
	}
}
