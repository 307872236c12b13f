package service

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postqueue/internal/models"
)

func seeded(h *harness) {
	h.scheduler.(*schedulerService).rng = rand.New(rand.NewPCG(1, 2))
}

func TestSchedulerService_GenerateSlots(t *testing.T) {
	h := newHarness(t)
	seeded(h)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(12 * time.Hour)

	for _, count := range []int{1, 3, 7, 24} {
		slots, err := h.scheduler.GenerateSlots(start, end, count)
		require.NoError(t, err)
		require.Len(t, slots, count)

		interval := end.Sub(start) / time.Duration(count)
		for i, slot := range slots {
			assert.False(t, slot.Before(start), "slot %d before window", i)
			assert.True(t, slot.Before(end), "slot %d after window", i)
			assert.Equal(t, slot, slot.Truncate(time.Second))

			centre := start.Add(interval*time.Duration(i) + interval/2)
			assert.LessOrEqual(t, absDuration(slot.Sub(centre)), h.cfg.MaxJitter+time.Second)
			if i > 0 {
				assert.True(t, slot.After(slots[i-1]), "slots are strictly ordered")
			}
		}
	}
}

func TestSchedulerService_GenerateSlotsJitterBoundedByInterval(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.MaxJitter = 2 * time.Hour
	h := newHarnessWithConfig(t, cfg)
	seeded(h)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	slots, err := h.scheduler.GenerateSlots(start, start.Add(4*time.Hour), 4)
	require.NoError(t, err)
	for i, slot := range slots {
		centre := start.Add(time.Duration(i)*time.Hour + 30*time.Minute)
		assert.LessOrEqual(t, absDuration(slot.Sub(centre)), 15*time.Minute+time.Second)
	}
}

func TestSchedulerService_GenerateSlotsShortWindowStaysOrdered(t *testing.T) {
	h := newHarness(t)
	seeded(h)
	start := time.Date(2026, 3, 2, 20, 59, 59, 400_000_000, time.UTC)
	end := start.Add(500 * time.Millisecond)

	slots, err := h.scheduler.GenerateSlots(start, end, 5)
	require.NoError(t, err)
	require.Len(t, slots, 5)
	for i, slot := range slots {
		assert.False(t, slot.Before(start), "slot %d before window", i)
		assert.True(t, slot.Before(end), "slot %d after window", i)
		if i > 0 {
			assert.True(t, slot.After(slots[i-1]), "slots are strictly ordered")
		}
	}
}

func TestSchedulerService_GenerateSlotsValidation(t *testing.T) {
	h := newHarness(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var valErr *models.ValidationError

	_, err := h.scheduler.GenerateSlots(start, start.Add(time.Hour), 0)
	assert.ErrorAs(t, err, &valErr)

	_, err = h.scheduler.GenerateSlots(start, start, 3)
	assert.ErrorAs(t, err, &valErr)

	_, err = h.scheduler.GenerateSlots(start, start.Add(-time.Hour), 3)
	assert.ErrorAs(t, err, &valErr)
}

func TestSchedulerService_Window(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Location = time.FixedZone("CET", 3600)
	h := newHarnessWithConfig(t, cfg)
	settings := &models.Settings{WindowStartHour: 9, WindowEndHour: 21}

	// 07:00 UTC is 08:00 local
	start, end := h.scheduler.Window(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC), settings)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC), end)

	start, end = h.scheduler.Window(time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC), settings)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), start, "closed window rolls to tomorrow")
	assert.Equal(t, time.Date(2026, 3, 3, 20, 0, 0, 0, time.UTC), end)
}

func TestSchedulerService_TickFillsWindowThenAnnouncesOnce(t *testing.T) {
	h := newHarness(t)
	seeded(h)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d"} {
		h.addMedia(t, name, "")
	}

	report, err := h.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.cfg.PostsPerDay, report.Enqueued)
	assert.False(t, report.Exhausted)
	assert.Zero(t, report.Announced, "nothing is due before the window")
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), report.WindowStart)

	entries, err := h.queue.List(ctx, models.QueueStatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, h.cfg.PostsPerDay)
	for _, e := range entries {
		assert.False(t, e.ScheduledFor.Before(report.WindowStart))
		assert.True(t, e.ScheduledFor.Before(report.WindowEnd))
	}

	report, err = h.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Enqueued, "window already full")

	h.clock.Set(time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC))
	report, err = h.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Announced)
	assert.Equal(t, []models.EventKind{models.EventDue}, h.notifier.kinds())

	report, err = h.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Announced, "announced at most once")
	assert.Len(t, h.notifier.kinds(), 1)

	due, err := h.queue.DueForProcessing(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NotNil(t, due[0].NotifyHandle)
	assert.Equal(t, "msg-1", *due[0].NotifyHandle)
}

func TestSchedulerService_AnnouncedEntriesDoNotBlockNewerOnes(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.DrainBatch = 2
	h := newHarnessWithConfig(t, cfg)
	seeded(h)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		ids = append(ids, h.enqueue(t, h.addMedia(t, name, "").ID).ID)
		h.clock.Advance(time.Second)
	}

	var announced []int
	for i := 0; i < 4; i++ {
		report, err := h.scheduler.Tick(ctx)
		require.NoError(t, err)
		announced = append(announced, report.Announced)
	}
	assert.Equal(t, []int{2, 1, 0, 0}, announced)

	for _, id := range ids {
		entry, err := h.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusPending, entry.Status)
		assert.NotNil(t, entry.AnnouncedAt, "entry %s announced", id)
	}
}

func TestSchedulerService_TickDispatchesWhenAutomated(t *testing.T) {
	h := newHarness(t)
	seeded(h)
	ctx := context.Background()
	h.enableAutoPost(t)
	h.addMedia(t, "a", "")
	h.addMedia(t, "b", "")
	h.addMedia(t, "c", "")

	_, err := h.scheduler.Tick(ctx)
	require.NoError(t, err)

	h.clock.Set(time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC).Add(-time.Minute))
	report, err := h.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Dispatched)
	assert.Zero(t, report.Announced)
	assert.Len(t, h.dispatcher.entries, 3)
	assert.Empty(t, h.notifier.kinds())
}

func TestSchedulerService_TickExhausted(t *testing.T) {
	h := newHarness(t)
	seeded(h)
	h.addMedia(t, "only", "")

	report, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enqueued)
	assert.True(t, report.Exhausted)
}

func TestSchedulerService_TickCategoryFallback(t *testing.T) {
	h := newHarness(t)
	seeded(h)
	ctx := context.Background()
	cats := "cats"
	_, err := h.settings.UpdateSettings(ctx, h.cfg.ChatID, SettingsPatch{Category: &cats})
	require.NoError(t, err)

	cat := h.addMedia(t, "cat", "cats")
	h.addMedia(t, "dog1", "dogs")
	h.addMedia(t, "dog2", "dogs")

	report, err := h.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Enqueued)

	entries, err := h.queue.List(ctx, models.QueueStatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, cat.ID, entries[2].MediaID, "matching category fills the earliest slot")
}

func TestSchedulerService_TickPaused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addMedia(t, "a", "")
	due := h.enqueue(t, h.addMedia(t, "b", "").ID)
	_, err := h.settings.SetPaused(ctx, h.cfg.ChatID, true)
	require.NoError(t, err)

	report, err := h.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, report.Paused)
	assert.Zero(t, report.Enqueued)
	assert.Zero(t, report.Announced)
	assert.Empty(t, h.notifier.kinds())

	stored, err := h.queue.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AnnouncedAt)
}

func TestSchedulerService_TickAfterWindowPlansTomorrow(t *testing.T) {
	h := newHarness(t)
	seeded(h)
	h.addMedia(t, "a", "")
	h.clock.Set(time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC))

	report, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), report.WindowStart)
	assert.Equal(t, 1, report.Enqueued)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
