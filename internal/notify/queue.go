package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/pkg/logging"
)

// AlertQueue carries high-risk alerts from the API to the alert worker.
type AlertQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received queue entry.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type alertJob struct {
	ID      string          `json:"id"`
	Attempt int             `json:"attempt"`
	Request handoff.Request `json:"request"`
}

func encodeJob(job alertJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("notify: failed to encode alert job: %w", err)
	}
	return string(body), nil
}

// QueuedAlerter hands high-risk alerts to an AlertQueue instead of sending
// them inline.
type QueuedAlerter struct {
	queue  AlertQueue
	logger *logging.Logger
}

func NewQueuedAlerter(queue AlertQueue, logger *logging.Logger) *QueuedAlerter {
	if queue == nil {
		panic("notify: alert queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QueuedAlerter{queue: queue, logger: logger}
}

func (q *QueuedAlerter) NotifyHighRisk(ctx context.Context, req handoff.Request) error {
	body, err := encodeJob(alertJob{Request: req})
	if err != nil {
		return err
	}
	if err := q.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("notify: enqueue alert: %w", err)
	}
	q.logger.Debug("operator alert queued", "request_id", req.ID)
	return nil
}

var _ handoff.Alerter = (*QueuedAlerter)(nil)
