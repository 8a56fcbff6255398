package icon

import (
	"context"
	"errors"
	"sync"

	"github.com/externos/hubd/internal/logger"
	"github.com/sourcegraph/conc"
)

// ErrQueueClosed is returned by Enqueue after Stop
var ErrQueueClosed = errors.New("icon queue closed")

// ErrQueueFull is returned by TryEnqueue when no slot is free
var ErrQueueFull = errors.New("icon queue full")

// ResultFunc receives every finished extraction, successful or not
type ResultFunc func(req Request, icon Icon, err error)

// Queue runs extractions on a fixed number of workers fed by a bounded
// channel. Enqueue blocks while the channel is full.
type Queue struct {
	extractor Extractor
	workers   int
	jobs      chan Request
	onResult  ResultFunc

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     conc.WaitGroup
	start  sync.Once
	stop   sync.Once
}

// NewQueue creates a stopped queue
func NewQueue(extractor Extractor, workers, size int, onResult ResultFunc) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		extractor: extractor,
		workers:   workers,
		jobs:      make(chan Request, size),
		onResult:  onResult,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start launches the workers
func (q *Queue) Start() {
	q.start.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Go(q.work)
		}
		logger.WithComponent("icon").Debug().
			Int("workers", q.workers).
			Int("capacity", cap(q.jobs)).
			Str("extractor", q.extractor.Name()).
			Msg("Icon queue started")
	})
}

// Stop cancels in-flight extractions and waits for the workers. Queued
// requests are dropped.
func (q *Queue) Stop() {
	q.stop.Do(func() {
		close(q.done)
		q.cancel()
	})
	q.wg.Wait()
}

// Enqueue adds req, blocking while the queue is full
func (q *Queue) Enqueue(ctx context.Context, req Request) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// TryEnqueue adds req only if a slot is free
func (q *Queue) TryEnqueue(req Request) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of queued requests
func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) work() {
	log := logger.WithComponent("icon")
	for {
		select {
		case <-q.done:
			return
		case req := <-q.jobs:
			icon, err := q.extractor.Extract(q.ctx, req)
			if err != nil {
				log.Debug().Err(err).Int("pid", req.PID).Str("window", req.WindowID).Msg("Icon extraction failed")
			}
			if q.onResult != nil {
				q.onResult(req, icon, err)
			}
		}
	}
}
