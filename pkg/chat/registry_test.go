package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRegistry_CancelIsIdempotent(t *testing.T) {
	r := NewRegistry()
	h := newHandle(context.Background())
	if err := r.Register("r1", h); err != nil {
		t.Fatal(err)
	}
	if !r.Cancel("r1") {
		t.Fatal("first cancel: found = false")
	}
	if r.Cancel("r1") {
		t.Fatal("second cancel: found = true")
	}
	if r.Cancel("unknown") {
		t.Fatal("unknown id: found = true")
	}
	if !h.Aborted() || h.Context().Err() == nil {
		t.Error("handle not aborted")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	first := newHandle(context.Background())
	r.Register("r1", first)
	if err := r.Register("r1", newHandle(context.Background())); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("err = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestRegistry_ReleaseOnlySameHandle(t *testing.T) {
	r := NewRegistry()
	old := newHandle(context.Background())
	r.Register("r1", old)
	r.Cancel("r1")

	fresh := newHandle(context.Background())
	r.Register("r1", fresh)
	r.Release("r1", old)
	if r.Len() != 1 {
		t.Fatal("stale release removed the newer handle")
	}
	r.Release("r1", fresh)
	if r.Len() != 0 {
		t.Fatal("release of the current handle left an entry")
	}
	if fresh.Aborted() {
		t.Error("release must not mark the handle aborted")
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	r := NewRegistry()
	handles := []*Handle{newHandle(context.Background()), newHandle(context.Background())}
	r.Register("a", handles[0])
	r.Register("b", handles[1])

	if n := r.Shutdown(); n != 2 {
		t.Errorf("Shutdown = %d, want 2", n)
	}
	for i, h := range handles {
		if !h.Aborted() {
			t.Errorf("handle %d not aborted", i)
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d", r.Len())
	}
	if err := r.Register("c", newHandle(context.Background())); !errors.Is(err, ErrShutdown) {
		t.Errorf("register after shutdown: %v", err)
	}
}

func TestHandle_AbortOnce(t *testing.T) {
	h := newHandle(context.Background())
	if !h.Abort() {
		t.Fatal("first abort = false")
	}
	if h.Abort() {
		t.Fatal("second abort = true")
	}
}

func TestHandle_StoppedFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	h := newHandle(parent)
	h.release()
	if h.stopped() {
		t.Fatal("released handle reported stopped")
	}
	cancel()
	if !h.stopped() {
		t.Fatal("parent cancellation not observed")
	}
}

func TestRegistry_ConcurrentCancel(t *testing.T) {
	r := NewRegistry()
	r.Register("r1", newHandle(context.Background()))

	var wg sync.WaitGroup
	var mu sync.Mutex
	found := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Cancel("r1") {
				mu.Lock()
				found++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if found != 1 {
		t.Errorf("found %d times, want 1", found)
	}
}
