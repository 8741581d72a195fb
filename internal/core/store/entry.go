package store

import (
	"context"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Key identifies one cached resource: a collection ("users") when ID is empty,
// or a single item ("users/42").
type Key struct {
	Resource string
	ID       string
}

func (k Key) String() string {
	if k.ID == "" {
		return k.Resource
	}
	return k.Resource + "/" + k.ID
}

// FetchFunc loads the server state for one key.
type FetchFunc func(ctx context.Context) (any, error)

// Listener receives every state transition of the key it subscribed to.
type Listener func(Snapshot)

// Snapshot is an immutable view of a cache entry at one point in time.
//
// Data keeps the last successful value while a refetch is loading and after a
// refetch failed; HasData reports whether any fetch ever succeeded.
type Snapshot struct {
	Key        Key
	Status     Status
	Data       any
	HasData    bool
	Err        error
	UpdatedAt  time.Time
	Generation uint64
	Stale      bool
}

type entry struct {
	key       Key
	status    Status
	data      any
	hasData   bool
	err       error
	updatedAt time.Time

	// gen advances on every fetch start and every invalidation; a fetch may
	// only apply its result while gen still equals the value it started with.
	gen      uint64
	inflight bool
	stale    bool
	cancel   context.CancelFunc
	fetch    FetchFunc

	listeners map[uint64]Listener
}

func newEntry(key Key) *entry {
	return &entry{
		key:       key,
		status:    StatusIdle,
		listeners: make(map[uint64]Listener),
	}
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:        e.key,
		Status:     e.status,
		Data:       e.data,
		HasData:    e.hasData,
		Err:        e.err,
		UpdatedAt:  e.updatedAt,
		Generation: e.gen,
		Stale:      e.stale,
	}
}

// Result is a typed view of a Snapshot.
type Result[T any] struct {
	Data      T
	HasData   bool
	Status    Status
	Err       error
	UpdatedAt time.Time
}

// As converts snap into a Result of T. Data of another type is treated as absent.
func As[T any](snap Snapshot) Result[T] {
	r := Result[T]{
		Status:    snap.Status,
		Err:       snap.Err,
		UpdatedAt: snap.UpdatedAt,
	}
	if v, ok := snap.Data.(T); ok && snap.HasData {
		r.Data = v
		r.HasData = true
	}
	return r
}

// IsLoading reports a first load: a fetch is running and nothing is cached yet.
func (r Result[T]) IsLoading() bool {
	return r.Status == StatusLoading && !r.HasData
}

// IsFetching reports any running fetch, including background refetches.
func (r Result[T]) IsFetching() bool {
	return r.Status == StatusLoading
}

// IsError reports that the latest fetch failed.
func (r Result[T]) IsError() bool {
	return r.Status == StatusError
}
