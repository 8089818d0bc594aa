package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hypeedev/gest/internal/adapters/mq/queue"
	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/pkg/logger"
	"github.com/hypeedev/gest/pkg/metrics"
)

// Enqueuer accepts dispatch jobs without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) error
}

// Dispatcher turns completions into queued command jobs. It never blocks the
// engine goroutine: a full queue drops the job.
type Dispatcher struct {
	queue  Enqueuer
	logger logger.Logger

	completed atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher creates a Dispatcher enqueueing onto q.
func NewDispatcher(q Enqueuer, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{queue: q, logger: log}
}

// Complete implements matcher.Sink.
func (d *Dispatcher) Complete(ctx context.Context, c model.Completion) {
	d.completed.Add(1)

	job := model.Dispatch{
		ID:      uuid.NewString(),
		Gesture: c.Gesture.Name,
		Command: c.Gesture.Command,
		Repeat:  c.Repeat,
		TS:      c.Time,
	}
	d.logger.Info(ctx, "gesture completed",
		logger.String("gesture", job.Gesture),
		logger.Bool("repeat", job.Repeat),
		logger.String("id", job.ID),
	)

	err := d.queue.Enqueue(ctx, job)
	switch {
	case err == nil:
		metrics.RecordDispatchEnqueued()
	case errors.Is(err, queue.ErrQueueFull):
		d.dropped.Add(1)
		metrics.RecordDispatchDropped()
		d.logger.Warn(ctx, "dispatch queue full, command dropped",
			logger.String("gesture", job.Gesture),
			logger.String("id", job.ID),
		)
	default:
		d.dropped.Add(1)
		metrics.RecordDispatchDropped()
		d.logger.Error(ctx, "failed to enqueue command",
			logger.String("gesture", job.Gesture),
			logger.String("id", job.ID),
			logger.Error(err),
		)
	}
}

// Completed returns the number of completions received.
func (d *Dispatcher) Completed() uint64 { return d.completed.Load() }

// Dropped returns the number of jobs that could not be enqueued.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }
