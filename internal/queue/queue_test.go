package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/service"
)

type fakePosting struct {
	mu       sync.Mutex
	attempts []string
	running  atomic.Int32
	peak     atomic.Int32
	release  chan struct{}
	err      error
}

func (f *fakePosting) HandleAutomatedAttempt(ctx context.Context, queueID string) (*service.Outcome, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.attempts = append(f.attempts, queueID)
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &service.Outcome{Kind: service.OutcomePosted, QueueID: queueID, Status: models.QueueStatusPosted}, nil
}

func (f *fakePosting) HandleHumanAction(context.Context, string, string, service.HumanAction) (*service.Outcome, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePosting) RequestAttempt(context.Context, string, string) (*service.Outcome, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePosting) Abort(string) bool { return false }

func TestNewAttemptTask(t *testing.T) {
	task, err := NewAttemptTask(AttemptPayload{QueueID: "q1", RetryCount: 2})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeAttempt, task.Type())

	var payload AttemptPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "q1", payload.QueueID)
	assert.Equal(t, 2, payload.RetryCount)

	assert.Equal(t, "attempt:q1:2", attemptTaskID(payload))
	assert.NotEqual(t, attemptTaskID(payload), attemptTaskID(AttemptPayload{QueueID: "q1", RetryCount: 3}))
}

func TestHandleAttemptTask(t *testing.T) {
	posting := &fakePosting{}
	q := NewQueue(posting, zerolog.Nop())

	task, err := NewAttemptTask(AttemptPayload{QueueID: "q1"})
	require.NoError(t, err)
	require.NoError(t, q.HandleAttemptTask(context.Background(), task))
	assert.Equal(t, []string{"q1"}, posting.attempts)
}

func TestHandleAttemptTask_Errors(t *testing.T) {
	bad := asynq.NewTask(TaskTypeAttempt, []byte("{not json"))
	q := NewQueue(&fakePosting{}, zerolog.Nop())
	assert.ErrorIs(t, q.HandleAttemptTask(context.Background(), bad), asynq.SkipRetry)

	task, err := NewAttemptTask(AttemptPayload{QueueID: "gone"})
	require.NoError(t, err)
	q = NewQueue(&fakePosting{err: models.NewNotFoundError("queue entry", "gone")}, zerolog.Nop())
	assert.NoError(t, q.HandleAttemptTask(context.Background(), task), "missing entries are dropped")

	dbErr := errors.New("database is locked")
	q = NewQueue(&fakePosting{err: dbErr}, zerolog.Nop())
	assert.ErrorIs(t, q.HandleAttemptTask(context.Background(), task), dbErr)
}

func TestInlineDispatcher_LimitsConcurrency(t *testing.T) {
	posting := &fakePosting{release: make(chan struct{})}
	d := NewInlineDispatcher(context.Background(), posting, 2, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4; i++ {
			assert.NoError(t, d.Dispatch(context.Background(), &models.QueueEntry{ID: fmt.Sprintf("q%d", i)}))
		}
	}()

	require.Eventually(t, func() bool { return posting.running.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(posting.release)
	<-done
	d.Wait()

	assert.Len(t, posting.attempts, 4)
	assert.Equal(t, int32(2), posting.peak.Load())
}

func TestInlineDispatcher_SkipsInflight(t *testing.T) {
	posting := &fakePosting{release: make(chan struct{})}
	d := NewInlineDispatcher(context.Background(), posting, 4, zerolog.Nop())
	entry := &models.QueueEntry{ID: "q1"}

	require.NoError(t, d.Dispatch(context.Background(), entry))
	require.Eventually(t, func() bool { return posting.running.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Dispatch(context.Background(), entry))

	close(posting.release)
	d.Wait()
	assert.Len(t, posting.attempts, 1)
}
