package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/pkg/queue"
)

// dequeueTimeout bounds each blocking pop so the loop notices cancellation.
const dequeueTimeout = 5 * time.Second

// SeatRecounter recomputes the billed seats of an organization.
type SeatRecounter interface {
	RecountSeats(ctx context.Context, orgID string) error
}

// JobQueue is the queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// SeatProcessor processes seat recount jobs.
type SeatProcessor struct {
	seats   SeatRecounter
	queue   JobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewSeatProcessor creates a seat recount processor.
func NewSeatProcessor(seats SeatRecounter, q JobQueue, logger *zap.Logger) *SeatProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeatProcessor{seats: seats, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one seat recount job.
func (p *SeatProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSeatRecount {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SeatRecountPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.OrganizationID == "" {
		return fmt.Errorf("job %s: missing organization id", job.ID)
	}
	return p.seats.RecountSeats(ctx, payload.OrganizationID)
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *SeatProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("seat worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *SeatProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
