package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postqueue/internal/models"
)

func TestHistoryService_QueriesAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.addMedia(t, "a", "")
	b := h.addMedia(t, "b", "")
	c := h.addMedia(t, "c", "")

	resolve := func(mediaID, actor string, action HumanAction) {
		entry := h.enqueue(t, mediaID)
		_, err := h.posting.HandleHumanAction(ctx, entry.ID, actor, action)
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
	}
	resolve(a.ID, "alice", ActionPosted)
	resolve(b.ID, "bob", ActionSkip)
	resolve(c.ID, "alice", ActionReject)
	resolve(b.ID, "alice", ActionPosted)

	byMedia, err := h.history.ListByMedia(ctx, b.ID, 0)
	require.NoError(t, err)
	assert.Len(t, byMedia, 2)

	byActor, err := h.history.ListByActor(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, byActor, 3)

	between, err := h.history.ListBetween(ctx, t0, t0.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, between, 2)

	stats, err := h.history.Stats(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ByOutcome[models.HistoryOutcomePosted])
	assert.Equal(t, 1, stats.ByOutcome[models.HistoryOutcomeSkipped])
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)

	_, err = h.history.Stats(ctx, t0, t0)
	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestHistoryService_AppendOncePerEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := h.enqueue(t, h.addMedia(t, "a", "").ID)
	_, err := h.posting.HandleHumanAction(ctx, entry.ID, "alice", ActionSkip)
	require.NoError(t, err)

	err = h.history.Append(ctx, nil, &models.PostingHistory{
		QueueID: entry.ID,
		MediaID: entry.MediaID,
		Outcome: models.HistoryOutcomePosted,
		Actor:   "bob",
	})
	assert.Error(t, err)
	assert.Equal(t, 1, h.historyCount(t, entry.ID))

	_, err = h.history.GetByQueueID(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
