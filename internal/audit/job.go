package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"

	jobmetrics "github.com/careportal/careportal/internal/jobs"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/jobs"
)

// Writer persists session events. *Store satisfies it.
type Writer interface {
	Insert(ctx context.Context, event shared.SessionEvent) error
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Job processes audit tasks on the worker.
type Job struct {
	store   Writer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   clockwork.Clock
}

// NewJob constructs the audit job handlers.
func NewJob(store Writer, logger *slog.Logger, metrics *jobmetrics.Metrics, clock clockwork.Clock) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Job{store: store, logger: logger, metrics: metrics, clock: clock}
}

// Handlers lists the task handlers to register on the worker. Timing and
// outcome counts come from jobmetrics.Middleware on the worker mux.
func (j *Job) Handlers() []jobs.TaskHandler {
	return []jobs.TaskHandler{
		{Type: jobs.TaskAuditSessionEvent, Handler: j.HandleSessionEvent},
		{Type: jobs.TaskAuditPurge, Handler: j.HandlePurge},
	}
}

// HandleSessionEvent writes one queued event.
func (j *Job) HandleSessionEvent(ctx context.Context, t *asynq.Task) error {
	event, err := jobs.DecodeSessionEvent(t)
	if err != nil {
		j.logger.Warn("audit payload rejected", slog.Any("error", err))
		return err
	}
	if err := j.store.Insert(ctx, event); err != nil {
		return err
	}
	j.metrics.AuditEventStored(event.Action, j.clock.Since(event.At))
	return nil
}

// HandlePurge applies the retention period.
func (j *Job) HandlePurge(ctx context.Context, t *asynq.Task) error {
	payload, err := jobs.DecodePurge(t)
	if err != nil {
		return err
	}
	cutoff := payload.Cutoff(j.clock.Now().UTC())
	removed, err := j.store.Purge(ctx, cutoff)
	if err != nil {
		return err
	}
	j.metrics.AuditRowsPurged(removed)
	j.logger.Info("audit purge", slog.Time("before", cutoff), slog.Int64("removed", removed))
	return nil
}
