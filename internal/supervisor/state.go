// Package supervisor orchestrates when each dataset's backup runs, keeps a
// publish/subscribe state store observers can watch or block on, and
// manages the restore worker's lifecycle alongside it.
package supervisor

import (
	"sync"
	"time"
)

// LifecycleKind enumerates the states the supervisor and restorer
// themselves (as opposed to any one dataset) pass through.
type LifecycleKind int

const (
	Stopped LifecycleKind = iota
	Starting
	Running
	StoppingLifecycle
)

func (k LifecycleKind) String() string {
	switch k {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case StoppingLifecycle:
		return "stopping"
	default:
		return "unknown"
	}
}

// BackupStatusKind enumerates the per-dataset backup states the state store
// tracks.
type BackupStatusKind int

const (
	None BackupStatusKind = iota
	RunningBackup
	Finished
	StoppingBackup
	ErrorBackup
)

func (k BackupStatusKind) String() string {
	switch k {
	case None:
		return "none"
	case RunningBackup:
		return "running"
	case Finished:
		return "finished"
	case StoppingBackup:
		return "stopping"
	case ErrorBackup:
		return "error"
	default:
		return "unknown"
	}
}

// BackupStatus is the full per-dataset backup state published to
// subscribers.
type BackupStatus struct {
	Kind      BackupStatusKind
	StartTime time.Time
	EndTime   time.Time
	Packs     int
	Files     int
	Bytes     uint64
	Path      string
	Message   string // populated when Kind == ErrorBackup
}

// Callback is invoked synchronously on every state mutation with the new
// value and, when one existed, the previous value.
type Callback func(datasetID string, new BackupStatus, previous *BackupStatus)

// Store is a process-wide, internally synchronized publish/subscribe
// holder of every dataset's backup status plus the supervisor and
// restorer lifecycle states. Publishes are serialized so subscribers
// always observe transitions in the order they were applied; callbacks
// must not block or call back into a mutating Store method.
type Store struct {
	mu sync.Mutex

	backup     map[string]BackupStatus
	supervisor LifecycleKind
	restorer   LifecycleKind

	subs map[string]Callback
	cond *sync.Cond
}

// NewStore returns an empty Store with both lifecycles Stopped.
func NewStore() *Store {
	s := &Store{
		backup: make(map[string]BackupStatus),
		subs:   make(map[string]Callback),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Subscribe registers callback under name, replacing any previous
// registration with the same name.
func (s *Store) Subscribe(name string, callback Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[name] = callback
}

// Unsubscribe removes a previously registered callback.
func (s *Store) Unsubscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, name)
}

// PublishBackup records a new backup status for datasetID and fires every
// subscriber synchronously; the order in which subscribers are called is
// not defined.
func (s *Store) PublishBackup(datasetID string, status BackupStatus) {
	s.mu.Lock()
	var previous *BackupStatus
	if prev, ok := s.backup[datasetID]; ok {
		p := prev
		previous = &p
	}
	s.backup[datasetID] = status
	callbacks := make([]Callback, 0, len(s.subs))
	for _, cb := range s.subs {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(datasetID, status, previous)
	}

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// BackupOf returns the current backup status for datasetID, or the zero
// value (Kind == None) if nothing has ever been published for it.
func (s *Store) BackupOf(datasetID string) BackupStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backup[datasetID]
}

// SetSupervisorLifecycle updates the supervisor's own lifecycle state.
func (s *Store) SetSupervisorLifecycle(k LifecycleKind) {
	s.mu.Lock()
	s.supervisor = k
	s.mu.Unlock()
	s.cond.Broadcast()
}

// SupervisorLifecycle returns the supervisor's current lifecycle state.
func (s *Store) SupervisorLifecycle() LifecycleKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supervisor
}

// SetRestorerLifecycle updates the restorer's own lifecycle state.
func (s *Store) SetRestorerLifecycle(k LifecycleKind) {
	s.mu.Lock()
	s.restorer = k
	s.mu.Unlock()
	s.cond.Broadcast()
}

// RestorerLifecycle returns the restorer's current lifecycle state.
func (s *Store) RestorerLifecycle() LifecycleKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restorer
}

// WaitForBackup blocks until datasetID's backup status kind equals want, or
// until timeout elapses (zero means wait forever). It is the sole blocking
// coordination primitive between test code and the scheduler/performer.
func (s *Store) WaitForBackup(datasetID string, want BackupStatusKind, timeout time.Duration) (BackupStatus, bool) {
	if timeout <= 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		for {
			if status, ok := s.backup[datasetID]; ok && status.Kind == want {
				return status, true
			}
			s.cond.Wait()
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		status, ok := s.backup[datasetID]
		s.mu.Unlock()
		if ok && status.Kind == want {
			return status, true
		}
		if time.Now().After(deadline) {
			return BackupStatus{}, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
