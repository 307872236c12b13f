package queue

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// AsynqDispatcher hands due entries to asynq workers through Redis.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, entry *models.QueueEntry) error {
	return EnqueueAttempt(ctx, d.client, AttemptPayload{QueueID: entry.ID, RetryCount: entry.RetryCount}, 0)
}

// InlineDispatcher runs attempts in this process, at most limit at a time.
// Used when no Redis is configured.
type InlineDispatcher struct {
	ctx     context.Context
	posting service.PostingService
	sem     *semaphore.Weighted
	log     zerolog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewInlineDispatcher runs attempts under ctx, so cancelling it aborts every
// attempt still in flight.
func NewInlineDispatcher(ctx context.Context, posting service.PostingService, limit int, log zerolog.Logger) *InlineDispatcher {
	if limit <= 0 {
		limit = 1
	}
	return &InlineDispatcher{
		ctx:      ctx,
		posting:  posting,
		sem:      semaphore.NewWeighted(int64(limit)),
		log:      log.With().Str("comp", "dispatcher").Logger(),
		inflight: make(map[string]struct{}),
	}
}

// Dispatch starts the attempt in the background. It blocks only while all
// slots are busy.
func (d *InlineDispatcher) Dispatch(ctx context.Context, entry *models.QueueEntry) error {
	if !d.begin(entry.ID) {
		return nil
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.end(entry.ID)
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer d.end(entry.ID)

		outcome, err := d.posting.HandleAutomatedAttempt(d.ctx, entry.ID)
		if err != nil {
			d.log.Error().Err(err).Str("queue_id", entry.ID).Msg("attempt failed")
			return
		}
		d.log.Debug().Str("queue_id", entry.ID).Str("outcome", string(outcome.Kind)).Msg("attempt handled")
	}()
	return nil
}

// Wait blocks until every started attempt has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

func (d *InlineDispatcher) begin(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[id]; ok {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *InlineDispatcher) end(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}
