package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99minutos/userdesk/internal/infrastructure/metrics"
	"github.com/99minutos/userdesk/internal/infrastructure/queue"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d := queue.NewDispatcher(2, zerolog.Nop())
	d.Start(ctx)
	return New(ctx, d, zerolog.Nop())
}

// scripted answers call i with steps[i]; the last step repeats.
type scripted struct {
	calls atomic.Int32
	steps []func(ctx context.Context) (any, error)
}

func (f *scripted) fetch(ctx context.Context) (any, error) {
	n := int(f.calls.Add(1)) - 1
	if n >= len(f.steps) {
		n = len(f.steps) - 1
	}
	return f.steps[n](ctx)
}

func value(v any) func(context.Context) (any, error) {
	return func(context.Context) (any, error) { return v, nil }
}

func failure(err error) func(context.Context) (any, error) {
	return func(context.Context) (any, error) { return nil, err }
}

// gated blocks until gate is closed and ignores cancellation, like a
// transport that cannot abort a request.
func gated(gate <-chan struct{}, v any) func(context.Context) (any, error) {
	return func(context.Context) (any, error) {
		<-gate
		return v, nil
	}
}

var usersKey = Key{Resource: "users"}

func waitClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

// recorder collects listener snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Status)
	}
	return out
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestKey_String(t *testing.T) {
	assert.Equal(t, "users", Key{Resource: "users"}.String())
	assert.Equal(t, "users/42", Key{Resource: "users", ID: "42"}.String())
}

func TestStore_Query_ConcurrentCallersShareOneFetch(t *testing.T) {
	s := newTestStore(t)
	gate := make(chan struct{})
	f := &scripted{steps: []func(context.Context) (any, error){gated(gate, "alice")}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := s.Query(usersKey, f.fetch)
			assert.Equal(t, StatusLoading, snap.Status)
		}()
	}
	wg.Wait()
	close(gate)

	snap, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, "alice", snap.Data)
	assert.Equal(t, int32(1), f.calls.Load(), "concurrent queries must share a single fetch")
}

func TestStore_Query_CachedEntryDoesNotRefetch(t *testing.T) {
	s := newTestStore(t)
	f := &scripted{steps: []func(context.Context) (any, error){value("a")}}

	_, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)

	snap := s.Query(usersKey, f.fetch)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, "a", snap.Data)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestStore_Invalidate_LastInvalidationWins(t *testing.T) {
	s := newTestStore(t)
	gate := make(chan struct{})
	started := make(chan struct{})
	f := &scripted{steps: []func(context.Context) (any, error){
		func(ctx context.Context) (any, error) {
			close(started)
			return gated(gate, "old")(ctx)
		},
		value("new"),
	}}
	discarded := testutil.ToFloat64(metrics.CacheDiscardedTotal.WithLabelValues("users"))

	rec := &recorder{}
	_, unsubscribe := s.Subscribe(usersKey, f.fetch, rec.listen)
	defer unsubscribe()

	waitClosed(t, started, "first fetch never started")
	s.Invalidate(usersKey)

	snap, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, "new", snap.Data)

	// The first fetch completes last; its result must not overwrite "new".
	close(gate)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.CacheDiscardedTotal.WithLabelValues("users")) == discarded+1
	}, 2*time.Second, 5*time.Millisecond)

	snap, _ = s.Peek(usersKey)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, "new", snap.Data)
	assert.Equal(t, int32(2), f.calls.Load())

	require.Eventually(t, func() bool { return rec.last().Data == "new" }, time.Second, 5*time.Millisecond)
	for _, got := range rec.all() {
		assert.NotEqual(t, "old", got.Data, "listeners must never observe the superseded result")
	}
}

func TestStore_Invalidate_CancelsSupersededFetch(t *testing.T) {
	s := newTestStore(t)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	f := &scripted{steps: []func(context.Context) (any, error){
		func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		},
		value("fresh"),
	}}

	s.Query(usersKey, f.fetch)
	waitClosed(t, started, "first fetch never started")
	s.Invalidate(usersKey)

	waitClosed(t, cancelled, "superseded fetch was not cancelled")

	snap, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, "fresh", snap.Data)
}

func TestStore_Invalidate_StaleWhileRevalidate(t *testing.T) {
	s := newTestStore(t)
	gate := make(chan struct{})
	f := &scripted{steps: []func(context.Context) (any, error){
		value("a"),
		gated(gate, "b"),
	}}

	_, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)

	_, unsubscribe := s.Subscribe(usersKey, f.fetch, func(Snapshot) {})
	defer unsubscribe()
	s.Invalidate(usersKey)

	snap, _ := s.Peek(usersKey)
	assert.Equal(t, StatusLoading, snap.Status)
	assert.True(t, snap.HasData)
	assert.Equal(t, "a", snap.Data, "previous data stays visible during refetch")

	close(gate)
	snap, err = s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Data)
}

func TestStore_FetchError_PreservesPreviousData(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")
	f := &scripted{steps: []func(context.Context) (any, error){
		value("a"),
		failure(boom),
	}}

	_, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)

	s.Invalidate(usersKey)
	snap, err := s.Await(context.Background(), usersKey, f.fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusError, snap.Status)
	assert.ErrorIs(t, snap.Err, boom)
	assert.True(t, snap.HasData)
	assert.Equal(t, "a", snap.Data)
}

func TestStore_FetchError_FirstFetchHasNoData(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")
	f := &scripted{steps: []func(context.Context) (any, error){failure(boom)}}

	snap, err := s.Await(context.Background(), usersKey, f.fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusError, snap.Status)
	assert.False(t, snap.HasData)
	assert.Nil(t, snap.Data)

	// No automatic retry.
	s.Query(usersKey, f.fetch)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestStore_Await_RefetchesFailedFirstFetch(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("network down")
	f := &scripted{steps: []func(context.Context) (any, error){
		failure(boom),
		failure(boom),
		value("alice"),
	}}

	_, err := s.Await(context.Background(), usersKey, f.fetch)
	require.ErrorIs(t, err, boom)

	// Still failing: one more fetch, then the error is returned.
	_, err = s.Await(context.Background(), usersKey, f.fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), f.calls.Load())

	snap, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Data)
	assert.Equal(t, int32(3), f.calls.Load())

	// Cached data is served without another fetch.
	_, err = s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestStore_Await_KeepsErrorWhenDataIsCached(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")
	f := &scripted{steps: []func(context.Context) (any, error){value("a"), failure(boom)}}

	_, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	s.Invalidate(usersKey)
	_, err = s.Await(context.Background(), usersKey, f.fetch)
	require.ErrorIs(t, err, boom)

	snap, err := s.Await(context.Background(), usersKey, f.fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "a", snap.Data)
	assert.Equal(t, int32(2), f.calls.Load(), "an entry with data is not refetched until invalidated")
}

func TestStore_Invalidate_UnsubscribedRefetchesOnNextQuery(t *testing.T) {
	s := newTestStore(t)
	f := &scripted{steps: []func(context.Context) (any, error){value("a"), value("b")}}

	_, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)

	s.Invalidate(usersKey)
	snap, _ := s.Peek(usersKey)
	assert.True(t, snap.Stale)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, int32(1), f.calls.Load(), "no refetch without subscribers")

	snap, err = s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Data)
	assert.False(t, snap.Stale)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestStore_Invalidate_UnknownKeyIsNoop(t *testing.T) {
	s := newTestStore(t)
	s.Invalidate(Key{Resource: "users", ID: "nobody"})

	_, ok := s.Peek(Key{Resource: "users", ID: "nobody"})
	assert.False(t, ok)
}

func TestStore_Subscribe_ObservesLoadingThenSuccess(t *testing.T) {
	s := newTestStore(t)
	f := &scripted{steps: []func(context.Context) (any, error){value("a"), value("b")}}

	rec := &recorder{}
	snap, unsubscribe := s.Subscribe(usersKey, f.fetch, rec.listen)
	defer unsubscribe()
	assert.Equal(t, StatusLoading, snap.Status)

	require.Eventually(t, func() bool { return len(rec.statuses()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, rec.statuses())

	s.Invalidate(usersKey)
	require.Eventually(t, func() bool { return len(rec.statuses()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Status{StatusLoading, StatusSuccess, StatusLoading, StatusSuccess}, rec.statuses())
	assert.Equal(t, "b", rec.last().Data)
}

func TestStore_Subscribe_UnsubscribeStopsNotifications(t *testing.T) {
	s := newTestStore(t)
	f := &scripted{steps: []func(context.Context) (any, error){value("a")}}

	rec := &recorder{}
	_, unsubscribe := s.Subscribe(usersKey, f.fetch, rec.listen)
	_, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.statuses()) == 2 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()

	s.Invalidate(usersKey)
	s.Query(usersKey, f.fetch)
	_, err = s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.statuses(), 2)
}

func TestStore_Await_RespectsContext(t *testing.T) {
	s := newTestStore(t)
	gate := make(chan struct{})
	defer close(gate)
	f := &scripted{steps: []func(context.Context) (any, error){gated(gate, "a")}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	snap, err := s.Await(ctx, usersKey, f.fetch)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusLoading, snap.Status)
}

func TestStore_IndependentKeys(t *testing.T) {
	s := newTestStore(t)
	list := &scripted{steps: []func(context.Context) (any, error){value("list")}}
	one := &scripted{steps: []func(context.Context) (any, error){value("one")}}
	oneKey := Key{Resource: "users", ID: "1"}

	_, err := s.Await(context.Background(), usersKey, list.fetch)
	require.NoError(t, err)
	_, err = s.Await(context.Background(), oneKey, one.fetch)
	require.NoError(t, err)

	s.Invalidate(usersKey)
	snap, _ := s.Peek(oneKey)
	assert.False(t, snap.Stale, "invalidating the list key leaves item keys alone")
}

func TestMutate(t *testing.T) {
	s := newTestStore(t)
	f := &scripted{steps: []func(context.Context) (any, error){value("a")}}
	_, err := s.Await(context.Background(), usersKey, f.fetch)
	require.NoError(t, err)

	t.Run("failure invalidates nothing", func(t *testing.T) {
		boom := errors.New("write failed")
		_, err := Mutate(context.Background(), s, func(context.Context) (string, error) {
			return "", boom
		}, usersKey)
		require.ErrorIs(t, err, boom)

		snap, _ := s.Peek(usersKey)
		assert.False(t, snap.Stale)
	})

	t.Run("success invalidates the given keys", func(t *testing.T) {
		got, err := Mutate(context.Background(), s, func(context.Context) (string, error) {
			return "created", nil
		}, usersKey)
		require.NoError(t, err)
		assert.Equal(t, "created", got)

		snap, _ := s.Peek(usersKey)
		assert.True(t, snap.Stale)
	})
}

func TestAs(t *testing.T) {
	r := As[[]string](Snapshot{Status: StatusSuccess, Data: []string{"a"}, HasData: true})
	assert.True(t, r.HasData)
	assert.Equal(t, []string{"a"}, r.Data)
	assert.False(t, r.IsLoading())

	r = As[[]string](Snapshot{Status: StatusLoading})
	assert.True(t, r.IsLoading())
	assert.True(t, r.IsFetching())

	wrong := As[int](Snapshot{Status: StatusSuccess, Data: "a", HasData: true})
	assert.False(t, wrong.HasData)
}
