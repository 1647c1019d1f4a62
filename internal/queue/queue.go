package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrQueueFull is returned when the lookahead buffer is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// DefaultSize is the number of paragraphs that may wait for synthesis.
const DefaultSize = 4

// Synthesizer produces audio for text. The remote client implements it and
// stores the result in its cache.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued  int64
	TotalCompleted int64
	TotalFailed    int64
	TotalDropped   int64
	LastCompleted  time.Time
}

// LookaheadQueue synthesizes enqueued text one item at a time on a single
// worker. Duplicate text already waiting is ignored.
type LookaheadQueue struct {
	synth  Synthesizer
	logger *log.Logger

	mu       sync.Mutex
	requests chan string
	pending  map[string]struct{}
	closed   bool
	stats    Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLookaheadQueue starts a queue holding at most size waiting items.
func NewLookaheadQueue(synth Synthesizer, size int) *LookaheadQueue {
	if size <= 0 {
		size = DefaultSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &LookaheadQueue{
		synth:    synth,
		logger:   log.WithPrefix("queue"),
		requests: make(chan string, size),
		pending:  make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	q.wg.Add(1)
	go q.process()
	return q
}

// Enqueue schedules text for background synthesis. Blank and already
// pending text is accepted without queueing it again.
func (q *LookaheadQueue) Enqueue(text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if _, ok := q.pending[text]; ok {
		return nil
	}

	select {
	case q.requests <- text:
		q.pending[text] = struct{}{}
		q.stats.TotalEnqueued++
		return nil
	default:
		q.stats.TotalDropped++
		return ErrQueueFull
	}
}

func (q *LookaheadQueue) process() {
	defer q.wg.Done()

	for text := range q.requests {
		if q.ctx.Err() != nil {
			return
		}

		start := time.Now()
		_, err := q.synth.Synthesize(q.ctx, text)

		q.mu.Lock()
		delete(q.pending, text)
		if err != nil {
			q.stats.TotalFailed++
		} else {
			q.stats.TotalCompleted++
			q.stats.LastCompleted = time.Now()
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Debug("Lookahead synthesis failed", "chars", len(text), "error", err)
		} else {
			q.logger.Debug("Lookahead synthesis done", "chars", len(text), "took", time.Since(start))
		}
	}
}

// Pending returns the number of items waiting or in flight.
func (q *LookaheadQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns a copy of the queue statistics.
func (q *LookaheadQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close cancels in-flight synthesis and waits for the worker to exit.
func (q *LookaheadQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cancel()
	close(q.requests)
	q.mu.Unlock()

	q.wg.Wait()
}
