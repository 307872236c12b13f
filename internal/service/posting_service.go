package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/rs/zerolog"
)

type HumanAction string

const (
	recordAttempts   = 3
	recordRetryDelay = 500 * time.Millisecond
)

const (
	ActionPosted HumanAction = "posted"
	ActionSkip   HumanAction = "skip"
	ActionReject HumanAction = "reject"
)

type OutcomeKind string

const (
	OutcomePosted         OutcomeKind = "posted"
	OutcomeSkipped        OutcomeKind = "skipped"
	OutcomeRejected       OutcomeKind = "rejected"
	OutcomeRetryScheduled OutcomeKind = "retry_scheduled"
	OutcomeFailed         OutcomeKind = "failed"
	OutcomeBlocked        OutcomeKind = "blocked"
	OutcomeAlreadyHandled OutcomeKind = "already_handled"
)

// Outcome is the result of one orchestrated attempt. A lost claim is
// OutcomeAlreadyHandled, never an error.
type Outcome struct {
	Kind        OutcomeKind        `json:"kind"`
	QueueID     string             `json:"queue_id"`
	Status      models.QueueStatus `json:"status"`
	Actor       string             `json:"actor,omitempty"`
	RetryCount  int                `json:"retry_count"`
	NextRetryAt *time.Time         `json:"next_retry_at,omitempty"`
	ExternalID  string             `json:"external_id,omitempty"`
	Permalink   string             `json:"permalink,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

type PostingService interface {
	HandleHumanAction(ctx context.Context, queueID, actor string, action HumanAction) (*Outcome, error)
	HandleAutomatedAttempt(ctx context.Context, queueID string) (*Outcome, error)
	RequestAttempt(ctx context.Context, queueID, actor string) (*Outcome, error)
	Abort(queueID string) bool
}

type humanActionSpec struct {
	outcome models.HistoryOutcome
	kind    OutcomeKind
	event   models.EventKind
	apply   func(ctx context.Context, tx *sql.Tx, entry *models.QueueEntry, actor string) error
}

type postingService struct {
	db       *sql.DB
	queue    QueueService
	mr       repository.MediaRepository
	locks    LockService
	settings SettingsService
	accounts AccountService
	client   PostingClient
	notifier Notifier
	cfg      PipelineConfig
	clock    Clock
	metrics  Metrics
	log      zerolog.Logger

	actions map[HumanAction]humanActionSpec

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

func NewPostingService(
	db *sql.DB,
	queue QueueService,
	mr repository.MediaRepository,
	locks LockService,
	settings SettingsService,
	accounts AccountService,
	client PostingClient,
	notifier Notifier,
	cfg PipelineConfig,
	clock Clock,
	metrics Metrics,
	log zerolog.Logger) PostingService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &postingService{
		db:       db,
		queue:    queue,
		mr:       mr,
		locks:    locks,
		settings: settings,
		accounts: accounts,
		client:   client,
		notifier: notifier,
		cfg:      cfg,
		clock:    clock,
		metrics:  orNop(metrics),
		log:      log.With().Str("comp", "posting").Logger(),
		inflight: make(map[string]context.CancelFunc),
	}
	s.actions = map[HumanAction]humanActionSpec{
		ActionPosted: {outcome: models.HistoryOutcomePosted, kind: OutcomePosted, event: models.EventPosted, apply: s.markPosted},
		ActionSkip:   {outcome: models.HistoryOutcomeSkipped, kind: OutcomeSkipped, event: models.EventSkipped},
		ActionReject: {outcome: models.HistoryOutcomeRejected, kind: OutcomeRejected, event: models.EventRejected, apply: s.lockRejected},
	}
	return s
}

// HandleHumanAction claims and resolves the entry in one transaction. The
// loser of a concurrent action gets OutcomeAlreadyHandled.
func (s *postingService) HandleHumanAction(ctx context.Context, queueID, actor string, action HumanAction) (*Outcome, error) {
	spec, ok := s.actions[action]
	if !ok {
		return nil, models.NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}
	if actor == "" {
		return nil, models.NewValidationError("actor", "is required")
	}

	var (
		outcome *Outcome
		entry   *models.QueueEntry
		media   *models.MediaItem
	)
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var won bool
		var err error
		entry, won, err = s.queue.ClaimForOperator(ctx, tx, queueID, actor)
		if err != nil {
			return err
		}
		if !won {
			outcome = alreadyHandled(entry)
			return nil
		}

		if media, err = s.mr.GetByID(ctx, tx, entry.MediaID); err != nil {
			return err
		}
		if _, err := s.queue.Resolve(ctx, tx, queueID, spec.outcome, ResolveDetails{Actor: actor}); err != nil {
			return err
		}
		if spec.apply != nil {
			if err := spec.apply(ctx, tx, entry, actor); err != nil {
				return err
			}
		}

		outcome = &Outcome{
			Kind:       spec.kind,
			QueueID:    queueID,
			Status:     spec.outcome.Status(),
			Actor:      actor,
			RetryCount: entry.RetryCount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Kind == OutcomeAlreadyHandled {
		s.log.Info().Str("queue_id", queueID).Str("actor", actor).Str("status", string(outcome.Status)).Msg("action lost claim race")
		return outcome, nil
	}

	s.metrics.RecordOutcome(string(outcome.Status))
	s.log.Info().Str("queue_id", queueID).Str("actor", actor).Str("action", string(action)).Msg("human action resolved")
	s.notify(ctx, entry, media, models.Event{Kind: spec.event, Status: outcome.Status, Actor: actor})
	return outcome, nil
}

// HandleAutomatedAttempt runs one automated posting attempt. Cancelling ctx
// aborts the attempt between publish sub-steps; the cancellation is routed
// through Fail as a transient error.
func (s *postingService) HandleAutomatedAttempt(ctx context.Context, queueID string) (*Outcome, error) {
	return s.attempt(ctx, queueID, SystemActor, true)
}

// RequestAttempt is an operator asking for an automated post of one entry.
// It skips the auto-post switch but keeps every other pre-flight check.
func (s *postingService) RequestAttempt(ctx context.Context, queueID, actor string) (*Outcome, error) {
	if actor == "" {
		return nil, models.NewValidationError("actor", "is required")
	}
	return s.attempt(ctx, queueID, actor, false)
}

// Abort cancels an in-flight automated attempt started by this process.
func (s *postingService) Abort(queueID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.inflight[queueID]
	if ok {
		cancel()
		s.log.Warn().Str("queue_id", queueID).Msg("attempt aborted")
	}
	return ok
}

func (s *postingService) attempt(ctx context.Context, queueID, actor string, automated bool) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("attempt %s: %w: %w", queueID, models.ErrCancelled, err)
	}
	// bookkeeping must land even when the attempt itself is cancelled
	store := context.WithoutCancel(ctx)

	claim := s.queue.Claim
	if !automated {
		claim = s.queue.ClaimForOperator
	}
	entry, won, err := claim(store, nil, queueID, actor)
	if err != nil {
		return nil, err
	}
	if !won {
		return alreadyHandled(entry), nil
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	s.track(queueID, cancel)
	defer s.untrack(queueID)

	media, err := s.mr.GetByID(store, nil, entry.MediaID)
	if err == nil && media == nil {
		err = models.NewNotFoundError("media", entry.MediaID)
	}
	if err != nil {
		return s.fail(store, entry, nil, err)
	}

	reason, dest, err := s.preflight(store, media, automated)
	if err != nil {
		return s.fail(store, entry, media, err)
	}
	if reason != "" {
		return s.block(store, entry, media, reason)
	}

	s.notify(store, entry, media, models.Event{Kind: models.EventClaimed, Status: models.QueueStatusProcessing, Actor: actor})

	start := time.Now()
	result, err := s.client.Publish(attemptCtx, PublishRequest{
		QueueID:     entry.ID,
		Media:       media,
		Destination: dest,
		Caption:     media.Caption,
	})
	s.metrics.RecordPublishLatency(time.Since(start))
	if err != nil {
		if attemptCtx.Err() != nil && !errors.Is(err, models.ErrCancelled) {
			err = fmt.Errorf("attempt aborted: %w (%v)", models.ErrCancelled, err)
		}
		return s.fail(store, entry, media, err)
	}
	return s.complete(store, entry, media, actor, result)
}

// preflight returns a non-empty reason when the attempt must not reach the
// platform.
func (s *postingService) preflight(ctx context.Context, media *models.MediaItem, automated bool) (string, *models.Destination, error) {
	if !media.IsActive {
		return "media item is inactive", nil, nil
	}

	settings, err := s.settings.GetSettingsInfo(ctx, s.cfg.ChatID)
	if err != nil {
		return "", nil, err
	}
	switch {
	case settings.IsPaused:
		return "posting is paused", nil, nil
	case automated && !settings.AutoPostEnabled:
		return "automated posting is disabled", nil, nil
	case settings.DryRun:
		return "dry-run mode is active", nil, nil
	case settings.AccountID == nil:
		return "no destination account configured", nil, nil
	}

	dest, err := s.accounts.Destination(ctx, *settings.AccountID)
	if err != nil {
		var valErr *models.ValidationError
		if errors.Is(err, models.ErrNotFound) || errors.As(err, &valErr) {
			return "destination account unavailable: " + err.Error(), nil, nil
		}
		return "", nil, err
	}
	return "", dest, nil
}

func (s *postingService) block(ctx context.Context, entry *models.QueueEntry, media *models.MediaItem, reason string) (*Outcome, error) {
	if _, err := s.queue.Resolve(ctx, nil, entry.ID, models.HistoryOutcomeSkipped, ResolveDetails{
		Actor: derefStr(entry.ClaimedBy),
		Error: "blocked: " + reason,
	}); err != nil {
		return nil, err
	}

	s.metrics.RecordOutcome(string(models.QueueStatusSkipped))
	s.log.Warn().Str("queue_id", entry.ID).Str("reason", reason).Msg("attempt blocked")
	s.notify(ctx, entry, media, models.Event{Kind: models.EventBlocked, Status: models.QueueStatusSkipped, Error: reason})
	return &Outcome{
		Kind:       OutcomeBlocked,
		QueueID:    entry.ID,
		Status:     models.QueueStatusSkipped,
		Actor:      derefStr(entry.ClaimedBy),
		RetryCount: entry.RetryCount,
		Reason:     reason,
	}, nil
}

func (s *postingService) fail(ctx context.Context, entry *models.QueueEntry, media *models.MediaItem, cause error) (*Outcome, error) {
	ro, err := s.queue.Fail(ctx, entry.ID, cause)
	if err != nil {
		return nil, fmt.Errorf("record failure of %s (%v): %w", entry.ID, cause, err)
	}

	outcome := &Outcome{
		QueueID:     entry.ID,
		Status:      ro.Status,
		Actor:       derefStr(entry.ClaimedBy),
		RetryCount:  ro.RetryCount,
		NextRetryAt: ro.NextRetryAt,
		Reason:      cause.Error(),
	}
	event := models.Event{Status: ro.Status, Error: cause.Error(), RetryAt: ro.NextRetryAt}
	if ro.Status == models.QueueStatusRetryScheduled {
		outcome.Kind = OutcomeRetryScheduled
		event.Kind = models.EventRetryScheduled
	} else {
		outcome.Kind = OutcomeFailed
		event.Kind = models.EventFailed
	}

	if ro.Entry != nil {
		entry = ro.Entry
	}
	s.notify(ctx, entry, media, event)
	return outcome, nil
}

// complete records a successful publish. The post already exists remotely,
// so a failed write is retried a few times before giving up.
func (s *postingService) complete(ctx context.Context, entry *models.QueueEntry, media *models.MediaItem, actor string, result *PublishResult) (*Outcome, error) {
	var err error
record:
	for attempt := 0; attempt < recordAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				break record
			case <-time.After(time.Duration(attempt) * recordRetryDelay):
			}
		}
		err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			if _, err := s.queue.Resolve(ctx, tx, entry.ID, models.HistoryOutcomePosted, ResolveDetails{
				Actor:      actor,
				ExternalID: result.ExternalID,
				Permalink:  result.Permalink,
			}); err != nil {
				return err
			}
			return s.markPosted(ctx, tx, entry, actor)
		})
		if err == nil || errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrConflict) {
			break
		}
	}
	if err != nil {
		s.log.Error().Err(err).Str("queue_id", entry.ID).Str("external_id", result.ExternalID).
			Msg("published but could not record the post")
		return nil, err
	}

	s.metrics.RecordOutcome(string(models.QueueStatusPosted))
	s.log.Info().Str("queue_id", entry.ID).Str("external_id", result.ExternalID).Msg("posted")
	s.notify(ctx, entry, media, models.Event{
		Kind:      models.EventPosted,
		Status:    models.QueueStatusPosted,
		Actor:     actor,
		Permalink: result.Permalink,
	})
	return &Outcome{
		Kind:       OutcomePosted,
		QueueID:    entry.ID,
		Status:     models.QueueStatusPosted,
		Actor:      actor,
		RetryCount: entry.RetryCount,
		ExternalID: result.ExternalID,
		Permalink:  result.Permalink,
	}, nil
}

// markPosted updates posting stats and locks the item for the repost TTL.
func (s *postingService) markPosted(ctx context.Context, tx *sql.Tx, entry *models.QueueEntry, actor string) error {
	if err := s.mr.RecordPosted(ctx, tx, entry.MediaID, s.clock.Now()); err != nil {
		return err
	}
	_, err := s.locks.CreateLock(ctx, tx, entry.MediaID, LockSpec{
		TTL:    s.cfg.RepostTTL,
		Reason: models.LockReasonPosted,
		Actor:  actor,
	})
	return err
}

func (s *postingService) lockRejected(ctx context.Context, tx *sql.Tx, entry *models.QueueEntry, actor string) error {
	_, err := s.locks.CreateLock(ctx, tx, entry.MediaID, LockSpec{
		Permanent: true,
		Reason:    models.LockReasonRejected,
		Actor:     actor,
	})
	return err
}

func (s *postingService) notify(ctx context.Context, entry *models.QueueEntry, media *models.MediaItem, event models.Event) {
	event.QueueID = entry.ID
	event.RetryCount = entry.RetryCount
	event.MaxRetries = entry.MaxRetries
	event.OccurredAt = s.clock.Now()
	if media != nil {
		event.Media = media.Snapshot()
	} else {
		event.Media = models.MediaSnapshot{ID: entry.MediaID}
	}

	if entry.NotifyHandle != nil {
		if err := s.notifier.Update(ctx, *entry.NotifyHandle, event); err != nil {
			s.log.Warn().Err(err).Str("queue_id", entry.ID).Str("event", string(event.Kind)).Msg("notification update failed")
		}
		return
	}

	handle, err := s.notifier.Notify(ctx, event)
	if err != nil {
		s.log.Warn().Err(err).Str("queue_id", entry.ID).Str("event", string(event.Kind)).Msg("notification failed")
		return
	}
	if handle == "" {
		return
	}
	entry.NotifyHandle = &handle
	if err := s.queue.SetNotifyHandle(ctx, entry.ID, handle); err != nil {
		s.log.Warn().Err(err).Str("queue_id", entry.ID).Msg("store notify handle failed")
	}
}

func (s *postingService) track(queueID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.inflight[queueID] = cancel
	s.mu.Unlock()
}

func (s *postingService) untrack(queueID string) {
	s.mu.Lock()
	if cancel, ok := s.inflight[queueID]; ok {
		cancel()
		delete(s.inflight, queueID)
	}
	s.mu.Unlock()
}

func alreadyHandled(entry *models.QueueEntry) *Outcome {
	return &Outcome{
		Kind:       OutcomeAlreadyHandled,
		QueueID:    entry.ID,
		Status:     entry.Status,
		Actor:      derefStr(entry.ClaimedBy),
		RetryCount: entry.RetryCount,
		Reason:     fmt.Sprintf("entry is already %s", entry.Status),
	}
}
