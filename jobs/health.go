package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/careportal/careportal/internal/platform/httpx"
)

// QueueInspector is the part of *asynq.Inspector the health endpoint reads.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints. A nil inspector
// reports empty queues.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

// QueueHealth summarises one queue.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
}

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Queues []QueueHealth `json:"queues"`
}

// Queues lists the queues the worker serves, highest priority first.
func Queues() []string {
	return []string{QueueAudit, QueueDefault}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{Queues: make([]QueueHealth, 0, len(Queues()))}
	for _, queue := range Queues() {
		health, err := h.queueHealth(queue)
		if err != nil {
			h.logger.Warn("jobs health", slog.String("queue", queue), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		report.Queues = append(report.Queues, health)
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) queueHealth(queue string) (QueueHealth, error) {
	if h.inspector == nil {
		return QueueHealth{Queue: queue}, nil
	}
	info, err := h.inspector.GetQueueInfo(queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return QueueHealth{Queue: queue}, nil
		}
		return QueueHealth{}, err
	}
	return QueueHealth{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Processed: info.Processed,
		Failed:    info.Failed,
	}, nil
}
