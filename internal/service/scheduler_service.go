package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/rs/zerolog"
)

// Slots are rounded down to whole seconds only when neighbouring slots stay at
// least a second apart after jitter.
const minRoundedInterval = 2 * time.Second

// Dispatcher hands a due entry to whatever runs automated attempts.
type Dispatcher interface {
	Dispatch(ctx context.Context, entry *models.QueueEntry) error
}

type TickReport struct {
	Paused      bool      `json:"paused"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Enqueued    int       `json:"enqueued"`
	Exhausted   bool      `json:"exhausted"`
	Dispatched  int       `json:"dispatched"`
	Announced   int       `json:"announced"`
	Errors      int       `json:"errors"`
}

type SchedulerService interface {
	GenerateSlots(start, end time.Time, count int) ([]time.Time, error)
	Window(now time.Time, settings *models.Settings) (time.Time, time.Time)
	Tick(ctx context.Context) (*TickReport, error)
}

type schedulerService struct {
	queue      QueueService
	selector   SelectorService
	settings   SettingsService
	mr         repository.MediaRepository
	dispatcher Dispatcher
	notifier   Notifier
	cfg        PipelineConfig
	clock      Clock
	log        zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSchedulerService(
	queue QueueService,
	selector SelectorService,
	settings SettingsService,
	mr repository.MediaRepository,
	dispatcher Dispatcher,
	notifier Notifier,
	cfg PipelineConfig,
	clock Clock,
	log zerolog.Logger) SchedulerService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &schedulerService{
		queue:      queue,
		selector:   selector,
		settings:   settings,
		mr:         mr,
		dispatcher: dispatcher,
		notifier:   notifier,
		cfg:        cfg,
		clock:      clock,
		log:        log.With().Str("comp", "scheduler").Logger(),
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// GenerateSlots spreads count timestamps evenly over [start, end). Each slot
// sits at the centre of its interval, moved by a random jitter of at most
// min(MaxJitter, interval/4), so slots stay ordered and inside the window.
func (s *schedulerService) GenerateSlots(start, end time.Time, count int) ([]time.Time, error) {
	if count <= 0 {
		return nil, models.NewValidationError("count", "must be positive")
	}
	if !end.After(start) {
		return nil, models.NewValidationError("end", "must be after start")
	}

	interval := end.Sub(start) / time.Duration(count)
	if interval <= 0 {
		return nil, models.NewValidationError("count", "too many slots for the window")
	}
	maxJitter := s.cfg.MaxJitter
	if limit := interval / 4; maxJitter > limit {
		maxJitter = limit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slots := make([]time.Time, count)
	for i := range slots {
		slot := start.Add(interval*time.Duration(i) + interval/2)
		if maxJitter > 0 {
			slot = slot.Add(time.Duration(s.rng.Int64N(int64(2*maxJitter)+1)) - maxJitter)
		}
		if interval >= minRoundedInterval {
			slot = slot.Truncate(time.Second)
		}
		if slot.Before(start) {
			slot = start
		}
		slots[i] = slot
	}
	return slots, nil
}

// Window returns the posting window that contains now or, once today's has
// closed, tomorrow's, in the configured timezone.
func (s *schedulerService) Window(now time.Time, settings *models.Settings) (time.Time, time.Time) {
	local := now.In(s.cfg.Location)
	y, m, d := local.Date()
	start := time.Date(y, m, d, settings.WindowStartHour, 0, 0, 0, s.cfg.Location)
	end := time.Date(y, m, d, settings.WindowEndHour, 0, 0, 0, s.cfg.Location)
	if !now.Before(end) {
		start = start.AddDate(0, 0, 1)
		end = end.AddDate(0, 0, 1)
	}
	return start.UTC(), end.UTC()
}

// Tick tops the current window up to the configured posts per day, then
// dispatches or announces every due entry.
func (s *schedulerService) Tick(ctx context.Context) (*TickReport, error) {
	settings, err := s.settings.GetSettingsInfo(ctx, s.cfg.ChatID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	report := &TickReport{Paused: settings.IsPaused}
	report.WindowStart, report.WindowEnd = s.Window(now, settings)

	if settings.IsPaused {
		s.log.Debug().Msg("paused, tick skipped")
		return report, nil
	}

	if err := s.enqueue(ctx, now, settings, report); err != nil {
		return report, err
	}
	if err := s.drain(ctx, settings, report); err != nil {
		return report, err
	}

	if report.Enqueued > 0 || report.Dispatched > 0 || report.Announced > 0 || report.Errors > 0 {
		s.log.Info().Int("enqueued", report.Enqueued).Int("dispatched", report.Dispatched).
			Int("announced", report.Announced).Int("errors", report.Errors).Bool("exhausted", report.Exhausted).
			Msg("tick")
	}
	return report, nil
}

func (s *schedulerService) enqueue(ctx context.Context, now time.Time, settings *models.Settings, report *TickReport) error {
	start, end := report.WindowStart, report.WindowEnd

	already, err := s.queue.CountScheduledBetween(ctx, start, end)
	if err != nil {
		return err
	}
	missing := settings.PostsPerDay - already
	if missing <= 0 {
		return nil
	}

	from := start
	if now.After(from) {
		from = now
	}
	if !end.After(from) {
		return nil
	}

	slots, err := s.GenerateSlots(from, end, missing)
	if err != nil {
		return err
	}

	for _, slot := range slots {
		item, err := s.pick(ctx, settings.Category)
		if err != nil {
			return err
		}
		if item == nil {
			report.Exhausted = true
			s.log.Warn().Str("category", settings.Category).Msg("no eligible media left")
			return nil
		}

		if _, err := s.queue.Enqueue(ctx, item.ID, slot); err != nil {
			if errors.Is(err, models.ErrConflict) {
				// lost to a concurrent tick
				continue
			}
			return err
		}
		report.Enqueued++
	}
	return nil
}

// pick prefers the configured category and falls back to any eligible item.
func (s *schedulerService) pick(ctx context.Context, category string) (*models.MediaItem, error) {
	item, err := s.selector.SelectNext(ctx, category)
	if err != nil || item != nil || category == "" {
		return item, err
	}
	return s.selector.SelectNext(ctx, "")
}

func (s *schedulerService) drain(ctx context.Context, settings *models.Settings, report *TickReport) error {
	dispatch := settings.AutoPostEnabled && s.dispatcher != nil

	var (
		due []*models.QueueEntry
		err error
	)
	if dispatch {
		due, err = s.queue.DueForProcessing(ctx, s.cfg.DrainBatch)
	} else {
		// announced entries wait for a human and must not hold up newer ones
		due, err = s.queue.DueForAnnouncement(ctx, s.cfg.DrainBatch)
	}
	if err != nil {
		return err
	}

	for _, entry := range due {
		if dispatch {
			if err := s.dispatcher.Dispatch(ctx, entry); err != nil {
				report.Errors++
				s.log.Error().Err(err).Str("queue_id", entry.ID).Msg("dispatch failed")
				continue
			}
			report.Dispatched++
			continue
		}

		announced, err := s.announce(ctx, entry)
		if err != nil {
			report.Errors++
			s.log.Error().Err(err).Str("queue_id", entry.ID).Msg("announce failed")
			continue
		}
		if announced {
			report.Announced++
		}
	}
	return nil
}

// announce tells humans an entry is due, at most once per entry.
func (s *schedulerService) announce(ctx context.Context, entry *models.QueueEntry) (bool, error) {
	first, err := s.queue.MarkAnnounced(ctx, entry.ID)
	if err != nil || !first {
		return false, err
	}

	event := models.Event{
		Kind:       models.EventDue,
		QueueID:    entry.ID,
		Status:     entry.Status,
		RetryCount: entry.RetryCount,
		MaxRetries: entry.MaxRetries,
		RetryAt:    entry.NextRetryAt,
		OccurredAt: s.clock.Now(),
		Media:      models.MediaSnapshot{ID: entry.MediaID},
	}
	media, err := s.mr.GetByID(ctx, nil, entry.MediaID)
	if err != nil {
		return false, err
	}
	if media != nil {
		event.Media = media.Snapshot()
	}

	handle, err := s.notifier.Notify(ctx, event)
	if err != nil {
		return true, err
	}
	if handle != "" {
		if err := s.queue.SetNotifyHandle(ctx, entry.ID, handle); err != nil {
			return true, err
		}
	}
	return true, nil
}
