// Package registry tracks in-flight scrapes so that at most one runs per URL.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start when the key is in flight.
	ErrAlreadyRunning = errors.New("registry: scrape already running for key")
	// ErrNotRunning is returned by Terminate when the key is not in flight.
	ErrNotRunning = errors.New("registry: no scrape running for key")
	// ErrTerminated is the cancellation cause of a terminated scrape.
	ErrTerminated = errors.New("registry: scrape terminated")
)

// Entry describes one in-flight scrape.
type Entry struct {
	ID        string
	URL       string
	Site      string
	SKU       string
	StartedAt time.Time
}

type slot struct {
	entry  Entry
	cancel context.CancelCauseFunc
	// terminated slots stay reserved until their run calls release.
	terminated bool
}

// Registry maps URL keys to the cancellation handle of their scrape.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

// Start registers e under e.URL if no scrape holds that key.
//
// The returned context is canceled with cause ErrTerminated when Terminate
// is called for the key. release removes the registration and must be
// called on every exit path; calling it more than once is harmless and it
// never removes a newer registration of the same key.
func (r *Registry) Start(parent context.Context, e Entry) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.slots[e.URL]; busy {
		return nil, nil, ErrAlreadyRunning
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	ctx, cancel := context.WithCancelCause(parent)
	s := &slot{entry: e, cancel: cancel}
	r.slots[e.URL] = s

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			if cur, ok := r.slots[e.URL]; ok && cur == s {
				delete(r.slots, e.URL)
			}
			r.mu.Unlock()
			cancel(context.Canceled)
		})
	}
	return ctx, release, nil
}

// Terminate cancels the scrape registered under url. The key stays
// reserved until the canceled run calls release, so Start keeps returning
// ErrAlreadyRunning while it unwinds. Terminating a key twice returns
// ErrNotRunning.
func (r *Registry) Terminate(url string) error {
	r.mu.Lock()
	s, ok := r.slots[url]
	if !ok || s.terminated {
		r.mu.Unlock()
		return ErrNotRunning
	}
	s.terminated = true
	r.mu.Unlock()

	s.cancel(ErrTerminated)
	return nil
}

// Has reports whether url is in flight and not terminated.
func (r *Registry) Has(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[url]
	return ok && !s.terminated
}

// Len returns the number of registered scrapes, including terminated ones
// that have not released yet.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Running returns a snapshot of in-flight scrapes, oldest first.
func (r *Registry) Running() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.slots))
	for _, s := range r.slots {
		if !s.terminated {
			out = append(out, s.entry)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
