// Package store is the client-side synchronized cache: a keyed store of server
// state with query/mutation semantics.
//
// Each key has at most one fetch in flight per generation. Invalidation bumps
// the generation, so a fetch that completes after a newer invalidation is
// discarded instead of overwriting fresher state. Cached data survives both
// refetches (stale-while-revalidate) and failed refetches.
//
// Listeners are invoked through a Notifier, never while the store lock is
// held, in the order transitions happened for their key.
package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/99minutos/userdesk/internal/infrastructure/metrics"
)

// Notifier runs listener callbacks. Callbacks enqueued under the same key must
// run in enqueue order, and Enqueue must not block.
type Notifier interface {
	Enqueue(key string, fn func())
}

// Store owns every cache entry of the process.
type Store struct {
	ctx      context.Context
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time

	group singleflight.Group

	mu           sync.Mutex
	entries      map[Key]*entry
	nextListener uint64
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store. Fetches run under contexts derived from ctx, so
// cancelling ctx aborts everything in flight.
func New(ctx context.Context, notifier Notifier, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		ctx:      ctx,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		entries:  make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns the current state of key. When the entry is new, idle or
// stale and no fetch is running, exactly one fetch is started; concurrent
// callers share it. fetch replaces the entry's previous fetch function.
func (s *Store) Query(key Key, fetch FetchFunc) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key, fetch)
	s.ensureFetchLocked(e)
	return e.snapshot()
}

// Subscribe registers fn for every later transition of key, then behaves like
// Query. The returned function removes the listener; calling it twice is safe.
func (s *Store) Subscribe(key Key, fetch FetchFunc, fn Listener) (Snapshot, func()) {
	s.mu.Lock()
	e := s.entryLocked(key, fetch)
	s.nextListener++
	id := s.nextListener
	e.listeners[id] = fn
	s.ensureFetchLocked(e)
	snap := e.snapshot()
	s.mu.Unlock()

	var once sync.Once
	return snap, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(e.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Await is a read-through Query: it waits until the newest generation of key
// has settled and returns that state. A failed fetch is returned as the error
// alongside the snapshot, which may still carry older data.
//
// An entry whose only fetch so far failed holds nothing to read, so Await
// fetches it again once instead of returning the cached error.
func (s *Store) Await(ctx context.Context, key Key, fetch FetchFunc) (Snapshot, error) {
	for first := true; ; first = false {
		s.mu.Lock()
		e := s.entryLocked(key, fetch)
		if first && !e.inflight && e.status == StatusError && !e.hasData {
			s.startFetchLocked(e)
		} else {
			s.ensureFetchLocked(e)
		}
		if !e.inflight {
			snap := e.snapshot()
			s.mu.Unlock()
			if snap.Status == StatusError {
				return snap, snap.Err
			}
			return snap, nil
		}
		gen := e.gen
		call := s.flight(s.ctx, key, gen, e.fetch)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			snap, _ := s.Peek(key)
			return snap, ctx.Err()
		case <-s.group.DoChan(flightKey(key, gen), call):
		}
	}
}

// Peek returns the state of key without starting a fetch.
func (s *Store) Peek(key Key) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Snapshot{Key: key, Status: StatusIdle}, false
	}
	return e.snapshot(), true
}

// Invalidate marks keys stale. A key with listeners, or with a fetch in
// flight, is refetched immediately; others are refetched by their next Query.
// Any fetch already running for these keys is cancelled and its result ignored.
func (s *Store) Invalidate(keys ...Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		e, ok := s.entries[key]
		if !ok {
			continue
		}
		metrics.CacheInvalidationsTotal.WithLabelValues(key.Resource).Inc()

		wasInflight := e.inflight
		e.gen++
		e.stale = true
		e.inflight = false
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}

		s.log.Debug().Str("key", key.String()).Uint64("generation", e.gen).Msg("cache entry invalidated")

		if len(e.listeners) > 0 || wasInflight {
			s.startFetchLocked(e)
		}
	}
}

// Mutate runs a write operation and, only when it succeeds, invalidates keys.
func Mutate[T any](ctx context.Context, s *Store, op func(context.Context) (T, error), keys ...Key) (T, error) {
	res, err := op(ctx)
	if err != nil {
		return res, err
	}
	s.Invalidate(keys...)
	return res, nil
}

func (s *Store) entryLocked(key Key, fetch FetchFunc) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = newEntry(key)
		s.entries[key] = e
	}
	if fetch != nil {
		e.fetch = fetch
	}
	return e
}

func (s *Store) ensureFetchLocked(e *entry) {
	if e.inflight {
		metrics.CacheDedupTotal.WithLabelValues(e.key.Resource).Inc()
		return
	}
	if e.status == StatusIdle || e.stale {
		s.startFetchLocked(e)
	}
}

func (s *Store) startFetchLocked(e *entry) {
	if e.fetch == nil {
		s.log.Warn().Str("key", e.key.String()).Msg("no fetch function registered, entry left as is")
		return
	}

	e.gen++
	ctx, cancel := context.WithCancel(s.ctx)
	e.cancel = cancel
	e.inflight = true
	e.status = StatusLoading
	s.notifyLocked(e)

	s.log.Debug().Str("key", e.key.String()).Uint64("generation", e.gen).Msg("fetch started")

	// DoChan runs the call on its own goroutine; the result channel is buffered.
	s.group.DoChan(flightKey(e.key, e.gen), s.flight(ctx, e.key, e.gen, e.fetch))
}

// flight returns the singleflight body for one generation of key. Only the
// first execution for a running generation performs the fetch; an execution
// that finds the generation settled or superseded just reports current state.
func (s *Store) flight(ctx context.Context, key Key, gen uint64, fetch FetchFunc) func() (any, error) {
	return func() (any, error) {
		s.mu.Lock()
		e := s.entries[key]
		if e.gen != gen || !e.inflight {
			snap := e.snapshot()
			s.mu.Unlock()
			return snap, nil
		}
		s.mu.Unlock()

		data, err := fetch(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()

		if e.gen != gen {
			metrics.CacheDiscardedTotal.WithLabelValues(key.Resource).Inc()
			s.log.Debug().
				Str("key", key.String()).
				Uint64("generation", gen).
				Uint64("current_generation", e.gen).
				Msg("superseded fetch result discarded")
			return e.snapshot(), nil
		}

		e.inflight = false
		e.stale = false
		e.updatedAt = s.now()
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		if err != nil {
			e.status = StatusError
			e.err = err
			s.log.Warn().Err(err).Str("key", key.String()).Msg("fetch failed")
		} else {
			e.status = StatusSuccess
			e.data = data
			e.hasData = true
			e.err = nil
		}
		metrics.CacheFetchesTotal.WithLabelValues(key.Resource, metrics.Result(err)).Inc()
		s.notifyLocked(e)
		return e.snapshot(), nil
	}
}

func (s *Store) notifyLocked(e *entry) {
	if len(e.listeners) == 0 {
		return
	}
	snap := e.snapshot()
	for _, fn := range e.listeners {
		s.notifier.Enqueue(e.key.String(), func() { fn(snap) })
	}
}

func flightKey(key Key, gen uint64) string {
	return key.String() + "#" + strconv.FormatUint(gen, 10)
}
