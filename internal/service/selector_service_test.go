package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorService_PrefersNeverPosted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	posted := h.addMedia(t, "posted", "")
	fresh := h.addMedia(t, "fresh", "")

	entry := h.enqueue(t, posted.ID)
	_, err := h.posting.HandleHumanAction(ctx, entry.ID, "alice", ActionPosted)
	require.NoError(t, err)
	h.clock.Advance(h.cfg.RepostTTL + time.Minute)

	for i := 0; i < 5; i++ {
		next, err := h.selector.SelectNext(ctx, "")
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, fresh.ID, next.ID)
	}

	n, err := h.selector.CountEligible(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSelectorService_PrefersFewerPosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.addMedia(t, "a", "")
	b := h.addMedia(t, "b", "")

	post := func(id string) {
		entry := h.enqueue(t, id)
		_, err := h.posting.HandleHumanAction(ctx, entry.ID, "alice", ActionPosted)
		require.NoError(t, err)
		h.clock.Advance(h.cfg.RepostTTL + time.Minute)
	}
	post(a.ID)
	post(a.ID)
	post(b.ID)

	next, err := h.selector.SelectNext(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, b.ID, next.ID)
}

func TestSelectorService_Exclusions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	locked := h.addMedia(t, "locked", "cats")
	inactive := h.addMedia(t, "inactive", "cats")
	queued := h.addMedia(t, "queued", "cats")
	dog := h.addMedia(t, "dog", "Dogs")

	_, err := h.locks.CreateLock(ctx, nil, locked.ID, LockSpec{Permanent: true})
	require.NoError(t, err)
	require.NoError(t, h.media.SetActive(ctx, inactive.ID, false))
	h.enqueue(t, queued.ID)

	next, err := h.selector.SelectNext(ctx, "cats")
	require.NoError(t, err)
	assert.Nil(t, next, "nothing eligible is not an error")

	next, err = h.selector.SelectNext(ctx, "dogs")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, dog.ID, next.ID)

	next, err = h.selector.SelectNext(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, dog.ID, next.ID)
}

func TestSelectorService_ExpiredLockNoLongerExcludes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addMedia(t, "a", "")

	_, err := h.locks.CreateLock(ctx, nil, item.ID, LockSpec{TTL: time.Hour})
	require.NoError(t, err)

	next, err := h.selector.SelectNext(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, next)

	h.clock.Advance(time.Hour)
	next, err = h.selector.SelectNext(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, item.ID, next.ID)
}
