package restore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// StatusKind enumerates the lifecycle states a queued restore request
// passes through.
type StatusKind int

const (
	Pending StatusKind = iota
	Running
	Completed
	Cancelled
	Failed
)

func (k StatusKind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a request's current lifecycle state, with an error message
// populated only when Kind == Failed.
type Status struct {
	Kind    StatusKind
	Message string
}

// Request names one tree entry to restore into a relative output path.
type Request struct {
	Tree       catalog.Digest
	EntryName  string
	OutRelpath string
	DatasetID  string
	Passphrase string
}

// Entry pairs a submitted Request with its id and current Status, as
// returned by Requests.
type Entry struct {
	ID      string
	Request Request
	Status  Status
}

// Restorer processes a queue of Requests sequentially on one worker
// goroutine, publishing status transitions that callers can poll (Requests,
// StatusOf) or block on (WaitFor).
type Restorer struct {
	cat     *catalog.Catalog
	cache   *PackCache
	outroot string

	mu        sync.Mutex
	cond      *sync.Cond
	order     []string
	requests  map[string]Request
	statuses  map[string]Status
	cancelled map[string]bool

	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRestorer builds a Restorer rooted at outroot (Request.OutRelpath is
// resolved against it) using cat/cache to materialize entries.
func NewRestorer(cat *catalog.Catalog, cache *PackCache, outroot string) *Restorer {
	r := &Restorer{
		cat:       cat,
		cache:     cache,
		outroot:   outroot,
		requests:  make(map[string]Request),
		statuses:  make(map[string]Status),
		cancelled: make(map[string]bool),
		queue:     make(chan string, 1024),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start launches the worker goroutine. It is safe to call at most once per
// Restorer.
func (r *Restorer) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.worker()
}

// Stop cancels the worker's context and waits for the worker to exit. A
// chunked-file restore in progress is aborted by the cancellation, and its
// request is marked Failed.
func (r *Restorer) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Submit enqueues req, returning the id it was assigned.
func (r *Restorer) Submit(req Request) (string, error) {
	id := ulid.Make().String()

	r.mu.Lock()
	r.requests[id] = req
	r.statuses[id] = Status{Kind: Pending}
	r.order = append(r.order, id)
	r.mu.Unlock()
	r.cond.Broadcast()

	select {
	case r.queue <- id:
		return id, nil
	default:
		return "", fmt.Errorf("restore: request queue full")
	}
}

// Cancel marks id for abort. If the worker has not yet started it, it is
// skipped entirely; if already running, the worker observes the flag at its
// next chunk boundary.
func (r *Restorer) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[id]; !ok {
		return ErrRequestNotFound
	}
	r.cancelled[id] = true
	return nil
}

// Requests returns every submitted request and its current status, in
// submission order.
func (r *Restorer) Requests() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Entry{ID: id, Request: r.requests[id], Status: r.statuses[id]})
	}
	return out
}

// StatusOf returns the current status of id.
func (r *Restorer) StatusOf(id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.statuses[id]
	if !ok {
		return Status{}, ErrRequestNotFound
	}
	return s, nil
}

// WaitFor blocks until id's status reaches a terminal state (Completed,
// Cancelled, or Failed) and returns it. It is the synchronous primitive
// tests use to observe the worker without polling.
func (r *Restorer) WaitFor(id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		s, ok := r.statuses[id]
		if !ok {
			return Status{}, ErrRequestNotFound
		}
		if s.Kind == Completed || s.Kind == Cancelled || s.Kind == Failed {
			return s, nil
		}
		r.cond.Wait()
	}
}

func (r *Restorer) setStatus(id string, s Status) {
	r.mu.Lock()
	r.statuses[id] = s
	r.mu.Unlock()
	r.cond.Broadcast()
}

func (r *Restorer) isCancelled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled[id]
}

func (r *Restorer) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case id := <-r.queue:
			r.process(id)
		}
	}
}

func (r *Restorer) process(id string) {
	if r.isCancelled(id) {
		r.setStatus(id, Status{Kind: Cancelled})
		return
	}

	r.mu.Lock()
	req := r.requests[id]
	r.mu.Unlock()
	r.setStatus(id, Status{Kind: Running})

	if err := r.restoreEntry(id, req); err != nil {
		if r.isCancelled(id) {
			r.setStatus(id, Status{Kind: Cancelled})
			return
		}
		r.setStatus(id, Status{Kind: Failed, Message: err.Error()})
		return
	}
	r.setStatus(id, Status{Kind: Completed})
}

func (r *Restorer) restoreEntry(id string, req Request) error {
	tree, err := r.cat.GetTree(req.Tree)
	if err != nil {
		return fmt.Errorf("restore: lookup tree %s: %w", req.Tree, err)
	}

	var found *catalog.TreeEntry
	for i := range tree.Entries {
		if tree.Entries[i].Name == req.EntryName {
			found = &tree.Entries[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("restore: %q in tree %s: %w", req.EntryName, req.Tree, ErrEntryNotFound)
	}

	outpath := r.outroot + "/" + req.OutRelpath

	switch found.Reference.Kind {
	case catalog.KindFile:
		return restoreWithCancellation(r.ctx, id, r, func(ctx context.Context) error {
			return RestoreFile(ctx, r.cat, r.cache, req.Passphrase, found.Reference.FileDigest, outpath)
		})
	case catalog.KindSmall:
		return writeSmall(outpath, found.Reference.SmallBytes)
	default:
		return fmt.Errorf("restore: entry %q: %w", req.EntryName, ErrUnsupportedEntryKind)
	}
}

// restoreWithCancellation runs fn under a context that is cancelled early
// if the Restorer observes id marked cancelled, satisfying the
// "cancel flag checked between chunks" requirement without RestoreFile
// needing to know about the Restorer's bookkeeping. It polls at a short
// fixed interval rather than waiting on the status-change condition, since
// Cancel does not itself broadcast.
func restoreWithCancellation(parent context.Context, id string, r *Restorer, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if r.isCancelled(id) {
					cancel()
					return
				}
			}
		}
	}()

	return fn(ctx)
}
