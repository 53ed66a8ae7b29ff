package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLow carries housekeeping work.
	QueueLow = "low"
)

// Recorder counts processed tasks.
type Recorder interface {
	ObserveJob(task string, err error)
}

// Instrument reports the outcome of every run of h to rec.
func Instrument(task string, rec Recorder, h asynq.HandlerFunc) asynq.HandlerFunc {
	if rec == nil {
		return h
	}
	return func(ctx context.Context, t *asynq.Task) error {
		err := h(ctx, t)
		rec.ObserveJob(task, err)
		return err
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}
