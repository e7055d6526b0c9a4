package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/pkg/logging"
)

const (
	defaultWorkerCount   = 1
	defaultWaitSeconds   = 10
	defaultBatchSize     = 5
	defaultMaxAttempts   = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
}

// WorkerOption customizes an AlertWorker.
type WorkerOption func(*workerConfig)

func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxAttempts bounds how often a failing alert is re-queued.
func WithMaxAttempts(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxAttempts = n
		}
	}
}

// AlertWorker drains an AlertQueue and sends each alert. A failed send is
// re-queued with a higher attempt count until maxAttempts.
type AlertWorker struct {
	queue   AlertQueue
	alerter handoff.Alerter
	logger  *logging.Logger
	cfg     workerConfig
	wg      sync.WaitGroup
}

func NewAlertWorker(queue AlertQueue, alerter handoff.Alerter, logger *logging.Logger, opts ...WorkerOption) *AlertWorker {
	if queue == nil || alerter == nil {
		panic("notify: alert worker requires queue and alerter")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &AlertWorker{queue: queue, alerter: alerter, logger: logger, cfg: cfg}
}

// Start launches the worker goroutines; they exit when ctx is canceled.
func (w *AlertWorker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *AlertWorker) Wait() {
	w.wg.Wait()
}

func (w *AlertWorker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("alert worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("alert worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive alert jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *AlertWorker) handleMessage(ctx context.Context, msg QueueMessage) {
	var job alertJob
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode alert job", "error", err, "message_id", msg.ID)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	err := w.alerter.NotifyHighRisk(ctx, job.Request)
	if err == nil {
		w.logger.Info("operator alert delivered", "request_id", job.Request.ID, "attempt", job.Attempt+1)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	job.Attempt++
	if job.Attempt >= w.cfg.maxAttempts {
		w.logger.Error("operator alert dropped", "request_id", job.Request.ID, "attempts", job.Attempt, "error", err)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	w.logger.Warn("operator alert failed; retrying", "request_id", job.Request.ID, "attempt", job.Attempt, "error", err)
	body, encErr := encodeJob(job)
	if encErr == nil {
		encErr = w.queue.Send(context.WithoutCancel(ctx), body)
	}
	if encErr != nil {
		// Leave the message in place so the queue redelivers it.
		w.logger.Error("failed to requeue alert job", "request_id", job.Request.ID, "error", encErr)
		return
	}
	w.deleteMessage(ctx, msg.ReceiptHandle)
}

func (w *AlertWorker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete alert job", "error", err)
	}
}
