package queue

import (
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/rs/zerolog"
)

// Queue runs automated posting attempts handed to it by asynq.
type Queue struct {
	posting service.PostingService
	log     zerolog.Logger
}

func NewQueue(posting service.PostingService, log zerolog.Logger) *Queue {
	return &Queue{
		posting: posting,
		log:     log.With().Str("comp", "worker").Logger(),
	}
}

const TaskTypeAttempt = "queue:attempt"

type AttemptPayload struct {
	QueueID    string `json:"queue_id"`
	RetryCount int    `json:"retry_count"`
}
