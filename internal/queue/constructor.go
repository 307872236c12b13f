package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// attemptTaskID is unique per entry and retry so a tick cannot enqueue the
// same attempt twice while it waits in Redis.
func attemptTaskID(payload AttemptPayload) string {
	return fmt.Sprintf("attempt:%s:%d", payload.QueueID, payload.RetryCount)
}

func NewAttemptTask(payload AttemptPayload) (*asynq.Task, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// retries are scheduled by the pipeline, never by asynq
	return asynq.NewTask(TaskTypeAttempt, taskPayload,
		asynq.TaskID(attemptTaskID(payload)),
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
	), nil
}

// EnqueueAttempt schedules an attempt after delay. An attempt that is already
// waiting is not an error.
func EnqueueAttempt(ctx context.Context, client *asynq.Client, payload AttemptPayload, delay time.Duration) error {
	task, err := NewAttemptTask(payload)
	if err != nil {
		return err
	}

	_, err = client.EnqueueContext(ctx, task, asynq.ProcessIn(delay))
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}
