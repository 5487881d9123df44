package preview

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/metrics"
)

// Previewer renders a preview for a path.
type Previewer interface {
	Preview(ctx context.Context, path string, req Request) (*Result, error)
}

// Warmer renders previews in the background so the first listing after an
// upload finds blurHash and dimensions already recorded.
type Warmer struct {
	previewer Previewer
	queue     chan string
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	workers   int

	mu      sync.Mutex
	stopped bool
}

// NewWarmer creates a warmer with the given number of workers and queue size.
func NewWarmer(p Previewer, workers, queueSize int) *Warmer {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Warmer{
		previewer: p,
		queue:     make(chan string, queueSize),
		workers:   workers,
	}
}

// Start launches the worker goroutines.
func (w *Warmer) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx)
	}
	logging.Info("preview warmer started", zap.Int("workers", w.workers))
}

// Stop signals workers to stop and waits for them to finish. Queued jobs that
// have not started are discarded.
func (w *Warmer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logging.Info("preview warmer stopped")
}

// Enqueue schedules path for rendering. Non-raster files are ignored and a
// full queue drops the job. Reports whether the job was queued.
func (w *Warmer) Enqueue(path string) bool {
	if !IsImage(path) || IsVector(path) {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}

	select {
	case w.queue <- path:
		metrics.SetWarmQueueDepth(len(w.queue))
		return true
	default:
		metrics.RecordWarmJob("dropped")
		logging.Warn("preview warmer queue full, dropping", zap.String("path", path))
		return false
	}
}

func (w *Warmer) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-w.queue:
			if !ok {
				return
			}
			metrics.SetWarmQueueDepth(len(w.queue))
			w.warm(ctx, path)
		}
	}
}

func (w *Warmer) warm(ctx context.Context, path string) {
	if _, err := w.previewer.Preview(ctx, path, Request{}); err != nil {
		metrics.RecordWarmJob("failed")
		logging.Warn("preview warm failed", zap.String("path", path), zap.Error(err))
		return
	}
	metrics.RecordWarmJob("done")
	logging.Debug("preview warmed", zap.String("path", path))
}
