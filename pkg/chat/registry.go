package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrDuplicateRequest is returned when a request id is already in flight.
	ErrDuplicateRequest = errors.New("chat: request id already in flight")
	// ErrShutdown is returned by Register after Shutdown.
	ErrShutdown = errors.New("chat: registry shut down")
)

// Handle is the cancellation handle of one request. It moves from active to
// aborted at most once and is never reused.
type Handle struct {
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	aborted atomic.Bool
}

func newHandle(parent context.Context) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{parent: parent, ctx: ctx, cancel: cancel}
}

// Context is cancelled when the handle is aborted or released.
func (h *Handle) Context() context.Context { return h.ctx }

// Abort signals cancellation. It reports whether this call did the abort.
func (h *Handle) Abort() bool {
	if !h.aborted.CompareAndSwap(false, true) {
		return false
	}
	h.cancel()
	return true
}

// Aborted reports whether Abort was called.
func (h *Handle) Aborted() bool { return h.aborted.Load() }

// stopped reports whether the request was aborted or its caller's context
// ended. Unlike ctx.Err it stays false after release.
func (h *Handle) stopped() bool {
	return h.aborted.Load() || h.parent.Err() != nil
}

// release frees the handle's context without marking it aborted.
func (h *Handle) release() { h.cancel() }

// Registry maps in-flight request ids to their handles. The zero value is
// not usable; call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register adds h under id.
func (r *Registry) Register(id string, h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrShutdown
	}
	if _, ok := r.handles[id]; ok {
		return ErrDuplicateRequest
	}
	r.handles[id] = h
	return nil
}

// Cancel aborts the request and forgets it. Unknown or finished ids report
// false.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if ok {
		h.Abort()
	}
	return ok
}

// Release removes id if it still maps to h. A newer request that reused the
// id after a cancel is left alone.
func (r *Registry) Release(id string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[id] == h {
		delete(r.handles, id)
	}
}

// Len returns the number of in-flight requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Shutdown aborts every outstanding request, clears the map and rejects
// further registrations. It returns the number of requests aborted.
func (r *Registry) Shutdown() int {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.closed = true
	r.mu.Unlock()

	for _, h := range handles {
		h.Abort()
	}
	return len(handles)
}
