package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/rs/zerolog"
)

// ResolveDetails carries what the ledger records about a terminal transition.
type ResolveDetails struct {
	Actor      string
	ExternalID string
	Permalink  string
	Error      string
}

// RetryOutcome is the result of Fail: either a scheduled retry or a
// terminal failure with its ledger entry.
type RetryOutcome struct {
	Entry       *models.QueueEntry
	Status      models.QueueStatus
	RetryCount  int
	NextRetryAt *time.Time
	Class       ErrorClass
	History     *models.PostingHistory
}

type QueueService interface {
	Enqueue(ctx context.Context, mediaID string, scheduledFor time.Time) (*models.QueueEntry, error)
	Get(ctx context.Context, id string) (*models.QueueEntry, error)
	List(ctx context.Context, status models.QueueStatus, limit, offset int) ([]*models.QueueEntry, error)
	Claim(ctx context.Context, tx *sql.Tx, id, actor string) (*models.QueueEntry, bool, error)
	ClaimForOperator(ctx context.Context, tx *sql.Tx, id, actor string) (*models.QueueEntry, bool, error)
	Resolve(ctx context.Context, tx *sql.Tx, id string, outcome models.HistoryOutcome, details ResolveDetails) (*models.PostingHistory, error)
	Fail(ctx context.Context, id string, cause error) (*RetryOutcome, error)
	DueForProcessing(ctx context.Context, limit int) ([]*models.QueueEntry, error)
	DueForAnnouncement(ctx context.Context, limit int) ([]*models.QueueEntry, error)
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*models.QueueEntry, error)
	CountScheduledBetween(ctx context.Context, from, to time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error)
	MarkAnnounced(ctx context.Context, id string) (bool, error)
	SetNotifyHandle(ctx context.Context, id, handle string) error
}

type queueService struct {
	db      *sql.DB
	qr      repository.QueueRepository
	mr      repository.MediaRepository
	lr      repository.LockRepository
	history HistoryService
	policy  RetryPolicy
	cfg     PipelineConfig
	clock   Clock
	metrics Metrics
	log     zerolog.Logger
}

func NewQueueService(
	db *sql.DB,
	qr repository.QueueRepository,
	mr repository.MediaRepository,
	lr repository.LockRepository,
	history HistoryService,
	cfg PipelineConfig,
	clock Clock,
	metrics Metrics,
	log zerolog.Logger) QueueService {
	return &queueService{
		db:      db,
		qr:      qr,
		mr:      mr,
		lr:      lr,
		history: history,
		policy:  NewRetryPolicy(cfg),
		cfg:     cfg,
		clock:   clock,
		metrics: orNop(metrics),
		log:     log.With().Str("comp", "queue").Logger(),
	}
}

// Enqueue creates a pending entry for an active, unlocked item that has no
// other open entry.
func (s *queueService) Enqueue(ctx context.Context, mediaID string, scheduledFor time.Time) (*models.QueueEntry, error) {
	if mediaID == "" {
		return nil, models.NewValidationError("media_id", "is required")
	}
	if scheduledFor.IsZero() {
		return nil, models.NewValidationError("scheduled_for", "is required")
	}

	now := s.clock.Now()
	locked, err := s.lr.IsLocked(ctx, mediaID, now)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, models.NewConflictError("media", mediaID, "is locked")
	}

	entry := &models.QueueEntry{
		ID:           newID(),
		MediaID:      mediaID,
		ScheduledFor: scheduledFor.UTC(),
		Status:       models.QueueStatusPending,
		MaxRetries:   s.cfg.MaxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		media, err := s.mr.GetByID(ctx, tx, mediaID)
		if err != nil {
			return err
		}
		if media == nil {
			return models.NewNotFoundError("media", mediaID)
		}
		if !media.IsActive {
			return models.NewConflictError("media", mediaID, "is not active")
		}

		open, err := s.qr.GetOpenByMedia(ctx, tx, mediaID)
		if err != nil {
			return err
		}
		if open != nil {
			return models.NewConflictError("media", mediaID, fmt.Sprintf("already queued as %s (%s)", open.ID, open.Status))
		}

		return s.qr.Create(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordEnqueued()
	s.log.Info().Str("queue_id", entry.ID).Str("media_id", mediaID).Time("scheduled_for", entry.ScheduledFor).Msg("enqueued")
	return entry, nil
}

func (s *queueService) Get(ctx context.Context, id string) (*models.QueueEntry, error) {
	entry, err := s.qr.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, models.NewNotFoundError("queue entry", id)
	}
	return entry, nil
}

func (s *queueService) List(ctx context.Context, status models.QueueStatus, limit, offset int) ([]*models.QueueEntry, error) {
	if status != "" && !status.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	if offset < 0 {
		offset = 0
	}
	return s.qr.ListByStatus(ctx, status, clampLimit(limit), offset)
}

// Claim moves a pending or retry-ready entry to processing. A lost race is
// reported as false together with the entry's current state; only a missing
// entry is an error.
func (s *queueService) Claim(ctx context.Context, tx *sql.Tx, id, actor string) (*models.QueueEntry, bool, error) {
	return s.claim(ctx, tx, id, actor, s.qr.Claim)
}

// ClaimForOperator also accepts retry_scheduled entries whose next attempt
// is not due yet.
func (s *queueService) ClaimForOperator(ctx context.Context, tx *sql.Tx, id, actor string) (*models.QueueEntry, bool, error) {
	return s.claim(ctx, tx, id, actor, s.qr.ClaimForOperator)
}

type claimFunc func(ctx context.Context, tx *sql.Tx, id, actor string, now time.Time) (bool, error)

func (s *queueService) claim(ctx context.Context, tx *sql.Tx, id, actor string, cas claimFunc) (*models.QueueEntry, bool, error) {
	if actor == "" {
		return nil, false, models.NewValidationError("actor", "is required")
	}

	won, err := cas(ctx, tx, id, actor, s.clock.Now())
	if err != nil {
		return nil, false, err
	}

	entry, err := s.qr.GetByID(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, models.NewNotFoundError("queue entry", id)
	}

	s.metrics.RecordClaim(won)
	return entry, won, nil
}

// Resolve moves a processing entry to the terminal status of outcome and
// appends its ledger entry in the same transaction. A nil tx runs in a new
// one.
func (s *queueService) Resolve(ctx context.Context, tx *sql.Tx, id string, outcome models.HistoryOutcome, details ResolveDetails) (*models.PostingHistory, error) {
	if tx == nil {
		var h *models.PostingHistory
		err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			var err error
			h, err = s.Resolve(ctx, tx, id, outcome, details)
			return err
		})
		return h, err
	}

	entry, err := s.qr.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, models.NewNotFoundError("queue entry", id)
	}

	now := s.clock.Now()
	ok, err := s.qr.Transition(ctx, tx, id, models.QueueStatusProcessing, outcome.Status(), strPtr(details.Error), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewConflictError("queue entry", id, fmt.Sprintf("is %s, not processing", entry.Status))
	}

	media, err := s.mr.GetByID(ctx, tx, entry.MediaID)
	if err != nil {
		return nil, err
	}
	var snapshot models.MediaSnapshot
	if media != nil {
		snapshot = media.Snapshot()
	} else {
		snapshot = models.MediaSnapshot{ID: entry.MediaID}
	}

	actor := details.Actor
	if actor == "" {
		actor = derefStr(entry.ClaimedBy)
	}

	h := &models.PostingHistory{
		QueueID:      entry.ID,
		MediaID:      entry.MediaID,
		Media:        snapshot,
		Outcome:      outcome,
		Actor:        actor,
		ExternalID:   strPtr(details.ExternalID),
		Permalink:    strPtr(details.Permalink),
		ErrorMessage: strPtr(details.Error),
		RetryCount:   entry.RetryCount,
		ScheduledFor: entry.ScheduledFor,
		ClaimedAt:    entry.ClaimedAt,
		CompletedAt:  now,
	}
	if err := s.history.Append(ctx, tx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Fail applies the retry policy to a processing entry: retry_scheduled with
// an incremented count, or failed with a ledger entry.
func (s *queueService) Fail(ctx context.Context, id string, cause error) (*RetryOutcome, error) {
	if cause == nil {
		return nil, models.NewValidationError("cause", "is required")
	}

	var out *RetryOutcome
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		entry, err := s.qr.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return models.NewNotFoundError("queue entry", id)
		}
		if entry.Status != models.QueueStatusProcessing {
			return models.NewConflictError("queue entry", id, fmt.Sprintf("is %s, not processing", entry.Status))
		}

		decision := s.policy.Decide(cause, entry.RetryCount, entry.MaxRetries)
		out = &RetryOutcome{Class: decision.Class}

		if decision.Retry {
			now := s.clock.Now()
			next := now.Add(decision.Delay)
			ok, err := s.qr.ScheduleRetry(ctx, tx, id, entry.RetryCount+1, next, cause.Error(), now)
			if err != nil {
				return err
			}
			if !ok {
				return models.NewConflictError("queue entry", id, "changed while scheduling retry")
			}
			out.Status = models.QueueStatusRetryScheduled
			out.RetryCount = entry.RetryCount + 1
			out.NextRetryAt = &next
		} else {
			h, err := s.Resolve(ctx, tx, id, models.HistoryOutcomeFailed, ResolveDetails{
				Actor: derefStr(entry.ClaimedBy),
				Error: cause.Error(),
			})
			if err != nil {
				return err
			}
			out.Status = models.QueueStatusFailed
			out.RetryCount = entry.RetryCount
			out.History = h
		}

		out.Entry, err = s.qr.GetByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if out.Status == models.QueueStatusRetryScheduled {
		s.metrics.RecordRetry()
		s.log.Warn().Err(cause).Str("queue_id", id).Int("retry_count", out.RetryCount).
			Time("next_retry_at", *out.NextRetryAt).Str("class", out.Class.String()).Msg("attempt failed, retry scheduled")
	} else {
		s.metrics.RecordOutcome(string(models.QueueStatusFailed))
		s.log.Error().Err(cause).Str("queue_id", id).Int("retry_count", out.RetryCount).
			Str("class", out.Class.String()).Msg("attempt abandoned")
	}
	return out, nil
}

func (s *queueService) DueForProcessing(ctx context.Context, limit int) ([]*models.QueueEntry, error) {
	if limit <= 0 {
		limit = s.cfg.DrainBatch
	}
	return s.qr.ListDue(ctx, s.clock.Now(), limit)
}

func (s *queueService) DueForAnnouncement(ctx context.Context, limit int) ([]*models.QueueEntry, error) {
	if limit <= 0 {
		limit = s.cfg.DrainBatch
	}
	return s.qr.ListUnannounced(ctx, s.clock.Now(), limit)
}

func (s *queueService) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*models.QueueEntry, error) {
	return s.qr.ListStaleProcessing(ctx, s.clock.Now().Add(-olderThan), limit)
}

func (s *queueService) CountScheduledBetween(ctx context.Context, from, to time.Time) (int, error) {
	return s.qr.CountScheduledBetween(ctx, from, to)
}

func (s *queueService) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	return s.qr.CountByStatus(ctx)
}

func (s *queueService) MarkAnnounced(ctx context.Context, id string) (bool, error) {
	return s.qr.MarkAnnounced(ctx, id, s.clock.Now())
}

func (s *queueService) SetNotifyHandle(ctx context.Context, id, handle string) error {
	return s.qr.SetNotifyHandle(ctx, id, handle)
}
