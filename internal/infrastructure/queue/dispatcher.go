package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/infrastructure/metrics"
)

const defaultWorkers = 4

// Task is a unit of work queued under a key.
type Task struct {
	Key string
	Run func()
}

// Dispatcher routes tasks to a fixed set of workers using consistent hashing on
// the task key, guaranteeing that tasks sharing a key run one at a time and in
// enqueue order.
//
// Enqueue never blocks: every worker owns an unbounded FIFO, so callers may
// enqueue while holding their own locks.
type Dispatcher struct {
	workers []*worker
	log     zerolog.Logger
}

type worker struct {
	label   string
	mu      sync.Mutex
	pending []Task
	wake    chan struct{}
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]*worker, numWorkers),
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = &worker{label: strconv.Itoa(i), wake: make(chan struct{}, 1)}
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled;
// tasks still queued at that point are dropped.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, w := range d.workers {
		go d.runWorker(ctx, i, w)
	}
}

// Enqueue queues fn on the worker responsible for key.
func (d *Dispatcher) Enqueue(key string, fn func()) {
	w := d.workers[d.shardIndex(key)]
	w.mu.Lock()
	w.pending = append(w.pending, Task{Key: key, Run: fn})
	depth := len(w.pending)
	w.mu.Unlock()
	metrics.NotifyQueueDepth.WithLabelValues(w.label).Set(float64(depth))

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, w *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			for {
				w.mu.Lock()
				batch := w.pending
				w.pending = nil
				w.mu.Unlock()
				if len(batch) == 0 {
					metrics.NotifyQueueDepth.WithLabelValues(w.label).Set(0)
					break
				}
				for _, task := range batch {
					if ctx.Err() != nil {
						return
					}
					d.run(id, task)
				}
			}
		}
	}
}

func (d *Dispatcher) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.NotifyPanicsTotal.Inc()
			d.log.Error().
				Interface("panic", r).
				Str("key", task.Key).
				Int("worker_id", id).
				Msg("task panicked")
		}
	}()
	task.Run()
}
