package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postqueue/internal/models"
)

func (q *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeAttempt, q.HandleAttemptTask)
}

func (q *Queue) HandleAttemptTask(ctx context.Context, task *asynq.Task) error {
	var payload AttemptPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}

	outcome, err := q.posting.HandleAutomatedAttempt(ctx, payload.QueueID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrCancelled) {
			q.log.Warn().Err(err).Str("queue_id", payload.QueueID).Msg("attempt dropped")
			return nil
		}
		q.log.Error().Err(err).Str("queue_id", payload.QueueID).Msg("attempt failed")
		return err
	}

	q.log.Info().Str("queue_id", payload.QueueID).Str("outcome", string(outcome.Kind)).
		Str("status", string(outcome.Status)).Int("retry_count", outcome.RetryCount).Msg("attempt handled")
	return nil
}
