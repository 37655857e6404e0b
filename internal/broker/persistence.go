package broker

import (
	"context"
	"log/slog"
)

// persistJob is one fire-and-forget write: chat append, reaction
// set-add, or waiting-room update. Failures are logged, never surfaced
// to a client and never retried by the broker itself (spec 5, 7).
type persistJob func(ctx context.Context) error

// PersistQueue is the bounded outbound queue spec 9 calls for: a single
// worker drains it, and a full queue drops the oldest pending job (never
// blocks the caller) rather than applying back-pressure to the hot relay
// path.
type PersistQueue struct {
	jobs   chan persistJob
	logger *slog.Logger
}

func NewPersistQueue(ctx context.Context, capacity int, logger *slog.Logger) *PersistQueue {
	q := &PersistQueue{
		jobs:   make(chan persistJob, capacity),
		logger: logger,
	}
	go q.run(ctx)
	return q
}

func (q *PersistQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			if err := job(ctx); err != nil {
				q.logger.Error("fire-and-forget persistence failed", "error", err)
			}
		}
	}
}

// Enqueue submits job, dropping the oldest queued job (with a log line)
// if the queue is already full.
func (q *PersistQueue) Enqueue(job persistJob) {
	select {
	case q.jobs <- job:
		return
	default:
	}

	select {
	case <-q.jobs:
		q.logger.Warn("persistence queue full, dropped oldest pending write")
	default:
	}

	select {
	case q.jobs <- job:
	default:
		q.logger.Warn("persistence queue still full after eviction, dropping newest write")
	}
}
