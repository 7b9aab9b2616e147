package notification

import (
	"context"

	"go.uber.org/zap"

	"tajong-backend/internal/model"
)

// LogAppender persists one decision.
type LogAppender interface {
	InsertLog(ctx context.Context, entry *model.EventLog) error
}

// Recorder appends decisions to the event log and offers the ones worth an
// alert to the worker pool. A full queue never delays the engine.
type Recorder struct {
	next   LogAppender
	pool   *WorkerPool
	notify map[model.Result]bool
	log    *zap.Logger
}

func NewRecorder(next LogAppender, pool *WorkerPool, results []string, log *zap.Logger) *Recorder {
	notify := make(map[model.Result]bool, len(results))
	for _, r := range results {
		notify[model.Result(r)] = true
	}
	return &Recorder{next: next, pool: pool, notify: notify, log: log}
}

func (r *Recorder) InsertLog(ctx context.Context, entry *model.EventLog) error {
	if err := r.next.InsertLog(ctx, entry); err != nil {
		return err
	}
	if r.pool == nil || !r.notify[entry.Result] {
		return nil
	}
	if !r.pool.Dispatch(*entry) {
		r.log.Warn("notification queue full, dropping alert",
			zap.Int64("log_id", entry.ID), zap.String("result", string(entry.Result)))
	}
	return nil
}
