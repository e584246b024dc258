package game

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/store"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/metrics"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	defaultBaseBackoff = 200 * time.Millisecond
	maxBackoff         = 5 * time.Second
)

// SnapshotWriter persists snapshots off the interactive path: a bounded
// queue consumed by one worker with capped retry backoff. Failures never
// propagate to the in-memory mutation path; after the final attempt the
// snapshot is dead-lettered to the log.
type SnapshotWriter struct {
	store       *store.GameStore
	queue       chan *models.Game
	maxAttempts int
	baseBackoff time.Duration
	log         *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	stopMu  sync.RWMutex
	stopped bool
}

// WriterOption customises a SnapshotWriter.
type WriterOption func(*SnapshotWriter)

// WithQueueSize bounds the number of pending snapshots.
func WithQueueSize(n int) WriterOption {
	return func(w *SnapshotWriter) {
		if n > 0 {
			w.queue = make(chan *models.Game, n)
		}
	}
}

// WithRetry adjusts attempt count and backoff base, primarily for tests.
func WithRetry(attempts int, base time.Duration) WriterOption {
	return func(w *SnapshotWriter) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
		if base > 0 {
			w.baseBackoff = base
		}
	}
}

// NewSnapshotWriter constructs a writer over the given store.
func NewSnapshotWriter(gameStore *store.GameStore, opts ...WriterOption) *SnapshotWriter {
	w := &SnapshotWriter{
		store:       gameStore,
		queue:       make(chan *models.Game, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		log:         logger.WithModule("snapshot_writer"),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the consumer goroutine.
func (w *SnapshotWriter) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// Stop drains the queue and waits for the worker to exit. Enqueue calls
// arriving after Stop are dropped.
func (w *SnapshotWriter) Stop() {
	w.stopOnce.Do(func() {
		w.stopMu.Lock()
		w.stopped = true
		w.stopMu.Unlock()
		close(w.queue)
	})
	<-w.done
}

// Enqueue schedules a snapshot save without ever blocking the caller. Each
// snapshot fully replaces the previous one for its game, so when the queue
// is full the oldest pending entry is discarded to make room.
func (w *SnapshotWriter) Enqueue(game *models.Game) {
	if game == nil {
		return
	}

	// Holding the read side across the sends keeps Stop from closing the
	// queue underneath an in-flight enqueue.
	w.stopMu.RLock()
	defer w.stopMu.RUnlock()
	if w.stopped {
		w.log.Debug("snapshot writer stopped; dropping snapshot", zap.String("game_id", game.ID))
		return
	}

	for {
		select {
		case w.queue <- game:
			return
		default:
		}
		select {
		case stale, ok := <-w.queue:
			if !ok {
				return
			}
			w.log.Warn("snapshot queue full; dropping older pending snapshot",
				zap.String("game_id", stale.ID))
		default:
		}
	}
}

func (w *SnapshotWriter) run() {
	defer close(w.done)
	for game := range w.queue {
		w.persist(game)
	}
}

func (w *SnapshotWriter) persist(game *models.Game) {
	backoff := w.baseBackoff
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.store.Save(ctx, game)
		cancel()

		if err == nil {
			metrics.SnapshotSaves.WithLabelValues("ok").Inc()
			return
		}

		if attempt == w.maxAttempts {
			metrics.SnapshotSaves.WithLabelValues("dead_letter").Inc()
			w.log.Error("snapshot save dead-lettered",
				zap.String("game_id", game.ID),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return
		}

		metrics.SnapshotSaves.WithLabelValues("retry").Inc()
		w.log.Warn("snapshot save failed; retrying",
			zap.String("game_id", game.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		time.Sleep(backoff)
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
