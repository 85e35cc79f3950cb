package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchInserter is the interface used by Recorder to persist entries.
// It exists to allow testing without a real database.
type BatchInserter interface {
	BatchInsert(ctx context.Context, entries []Entry) error
}

// Recorder buffers activity entries in memory and periodically flushes them
// to the store in batches. Recording never blocks a request and never fails
// it; flush errors are logged. It is safe for concurrent use.
type Recorder struct {
	store         BatchInserter
	buffer        []Entry
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
	onFlushError  func()
}

// NewRecorder creates a Recorder that flushes to the given store when the
// buffer reaches batchSize or every flushInterval, whichever comes first.
func NewRecorder(store BatchInserter, batchSize int, flushInterval time.Duration) *Recorder {
	return &Recorder{
		store:         store,
		buffer:        make([]Entry, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// OnFlushError registers a callback invoked when a flush fails, used to
// increment a metrics counter.
func (r *Recorder) OnFlushError(fn func()) {
	r.onFlushError = fn
}

// Start begins a background goroutine that flushes buffered entries on a
// timer. It blocks until Stop is called or the context is cancelled.
func (r *Recorder) Start(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-ctx.Done():
			r.flush()
			return
		case <-r.done:
			r.flush()
			return
		}
	}
}

// Record adds an entry to the buffer. If the buffer reaches batchSize, a
// flush is triggered immediately.
func (r *Recorder) Record(e Entry) {
	r.mu.Lock()
	r.buffer = append(r.buffer, e)
	shouldFlush := len(r.buffer) >= r.batchSize
	r.mu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// flush drains all buffered entries and writes them to the store. It logs
// errors rather than returning them so request handlers are never blocked.
func (r *Recorder) flush() {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buffer
	r.buffer = make([]Entry, 0, r.batchSize)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.store.BatchInsert(ctx, batch); err != nil {
		slog.Error("failed to flush activity entries", "count", len(batch), "error", err)
		if r.onFlushError != nil {
			r.onFlushError()
		}
	}
}

// Stop signals the background goroutine to exit and performs a final flush.
func (r *Recorder) Stop() {
	close(r.done)
}
