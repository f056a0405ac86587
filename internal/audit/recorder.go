package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"

	"github.com/careportal/careportal/internal/shared"
)

// Enqueuer hands session events to the job queue. *jobs.Client satisfies it.
type Enqueuer interface {
	EnqueueSessionEvent(ctx context.Context, event shared.SessionEvent) (*asynq.TaskInfo, error)
}

const enqueueTimeout = 2 * time.Second

// Recorder is the shared.AuditSink of the web process. Events travel through
// the queue and are written by the worker, so a slow database never holds up
// a request.
type Recorder struct {
	queue  Enqueuer
	logger *slog.Logger
	clock  clockwork.Clock
}

var _ shared.AuditSink = (*Recorder)(nil)

// NewRecorder constructs a Recorder.
func NewRecorder(queue Enqueuer, logger *slog.Logger, clock clockwork.Clock) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{queue: queue, logger: logger, clock: clock}
}

// RecordSessionEvent implements shared.AuditSink. Enqueue failures are logged
// with the event so it is never silently lost.
func (r *Recorder) RecordSessionEvent(ctx context.Context, event shared.SessionEvent) {
	if event.At.IsZero() {
		event.At = r.clock.Now().UTC()
	}
	if r.queue == nil {
		r.log(event, nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if _, err := r.queue.EnqueueSessionEvent(ctx, event); err != nil {
		r.log(event, err)
	}
}

func (r *Recorder) log(event shared.SessionEvent, err error) {
	attrs := []any{
		slog.String("action", event.Action),
		slog.String("user", event.UserID),
		slog.String("role", event.Role),
		slog.String("session", event.SessionID),
		slog.String("path", event.Path),
		slog.Time("at", event.At),
	}
	if err != nil {
		r.logger.Warn("audit enqueue failed", append(attrs, slog.Any("error", err))...)
		return
	}
	r.logger.Info("audit event", attrs...)
}
