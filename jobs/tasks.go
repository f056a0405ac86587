package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/careportal/careportal/internal/shared"
)

const (
	// QueueAudit carries session audit writes. It is polled ahead of
	// QueueDefault so a long purge never delays the trail.
	QueueAudit = "audit"
	// QueueDefault is the queue for maintenance jobs.
	QueueDefault = "default"
	// TaskAuditSessionEvent persists one session audit event.
	TaskAuditSessionEvent = "audit:session_event"
	// TaskAuditPurge deletes audit rows older than the retention period.
	TaskAuditPurge = "audit:purge"
)

// PurgePayload describes an audit retention run.
type PurgePayload struct {
	RetentionDays int `json:"retention_days"`
}

// Cutoff returns the oldest timestamp kept by a run at now.
func (p PurgePayload) Cutoff(now time.Time) time.Time {
	days := p.RetentionDays
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return now.AddDate(0, 0, -days)
}

// DefaultRetentionDays keeps session audit rows for six years.
const DefaultRetentionDays = 6 * 365

// NewSessionEventTask constructs an Asynq task carrying event.
func NewSessionEventTask(event shared.SessionEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditSessionEvent, data, asynq.Queue(QueueAudit), asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// DecodeSessionEvent reads the payload of a TaskAuditSessionEvent task. A
// malformed payload is never retried.
func DecodeSessionEvent(t *asynq.Task) (shared.SessionEvent, error) {
	var event shared.SessionEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return shared.SessionEvent{}, asynq.SkipRetry
	}
	if event.Action == "" {
		return shared.SessionEvent{}, asynq.SkipRetry
	}
	return event, nil
}

// NewPurgeTask constructs the retention task.
func NewPurgeTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(PurgePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data, asynq.Queue(QueueDefault), asynq.Timeout(10*time.Minute)), nil
}

// DecodePurge reads the payload of a TaskAuditPurge task.
func DecodePurge(t *asynq.Task) (PurgePayload, error) {
	var payload PurgePayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return PurgePayload{}, asynq.SkipRetry
	}
	return payload, nil
}
