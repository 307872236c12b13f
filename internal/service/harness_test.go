package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postqueue/internal/database/dbtest"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeClient struct {
	calls   atomic.Int32
	publish func(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

func (c *fakeClient) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	n := c.calls.Add(1)
	if c.publish == nil {
		return &PublishResult{ExternalID: fmt.Sprintf("ig-%d", n), Permalink: "https://instagram.com/p/abc"}, nil
	}
	return c.publish(ctx, req)
}

type recordingNotifier struct {
	mu      sync.Mutex
	events  []models.Event
	updates map[string][]models.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event models.Event) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return fmt.Sprintf("msg-%d", len(n.events)), nil
}

func (n *recordingNotifier) Update(_ context.Context, handle string, event models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updates == nil {
		n.updates = make(map[string][]models.Event)
	}
	n.updates[handle] = append(n.updates[handle], event)
	return nil
}

func (n *recordingNotifier) kinds() []models.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []models.EventKind
	for _, e := range n.events {
		kinds = append(kinds, e.Kind)
	}
	for _, evs := range n.updates {
		for _, e := range evs {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

type fakeInstagramAPI struct {
	refreshed atomic.Int32
}

func (f *fakeInstagramAPI) UserInfo(_ context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	if accessToken == "bad" {
		return nil, models.NewPermanentError(400, "invalid token", nil)
	}
	return &transfer.InstagramUserInfo{ID: "1", UserID: "ig-" + accessToken, Username: "user_" + accessToken}, nil
}

func (f *fakeInstagramAPI) RefreshToken(_ context.Context, accessToken string) (*transfer.InstagramTokenRefresh, error) {
	f.refreshed.Add(1)
	return &transfer.InstagramTokenRefresh{AccessToken: accessToken + "-refreshed", ExpiresIn: 5184000}, nil
}

type recordingDispatcher struct {
	mu      sync.Mutex
	entries []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, entry *models.QueueEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry.ID)
	return nil
}

type harness struct {
	db    *sql.DB
	clock *fakeClock
	cfg   PipelineConfig

	mediaRepo   repository.MediaRepository
	queueRepo   repository.QueueRepository
	lockRepo    repository.LockRepository
	historyRepo repository.PostingHistoryRepository

	media      MediaService
	locks      LockService
	selector   SelectorService
	history    HistoryService
	queue      QueueService
	settings   SettingsService
	accounts   AccountService
	posting    PostingService
	scheduler  SchedulerService
	client     *fakeClient
	notifier   *recordingNotifier
	dispatcher *recordingDispatcher
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ChatID:           1,
		MaxRetries:       3,
		RepostTTL:        24 * time.Hour,
		BackoffBase:      5 * time.Minute,
		BackoffMax:       time.Hour,
		PostsPerDay:      3,
		WindowStartHour:  9,
		WindowEndHour:    21,
		MaxJitter:        10 * time.Minute,
		Location:         time.UTC,
		DrainBatch:       20,
		DrainConcurrency: 2,
		StaleClaimAfter:  30 * time.Minute,
		LockGracePeriod:  time.Hour,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testPipelineConfig())
}

func newHarnessWithConfig(t *testing.T, cfg PipelineConfig) *harness {
	t.Helper()

	db := dbtest.New(t)
	log := zerolog.Nop()
	h := &harness{
		db:          db,
		clock:       &fakeClock{now: t0},
		cfg:         cfg,
		mediaRepo:   repository.NewMediaRepository(db),
		queueRepo:   repository.NewQueueRepository(db),
		lockRepo:    repository.NewLockRepository(db),
		historyRepo: repository.NewPostingHistoryRepository(db),
		client:      &fakeClient{},
		notifier:    &recordingNotifier{},
		dispatcher:  &recordingDispatcher{},
	}

	h.media = NewMediaService(h.mediaRepo, h.clock)
	h.locks = NewLockService(h.lockRepo, h.clock)
	h.selector = NewSelectorService(h.mediaRepo, h.clock)
	h.history = NewHistoryService(h.historyRepo, h.clock)
	h.queue = NewQueueService(db, h.queueRepo, h.mediaRepo, h.lockRepo, h.history, cfg, h.clock, nil, log)
	h.settings = NewSettingsService(repository.NewSettingsRepository(db), cfg, h.clock)
	h.accounts = NewAccountService(repository.NewAccountRepository(db), &fakeInstagramAPI{}, testSecretKey, h.clock, log)
	h.posting = NewPostingService(db, h.queue, h.mediaRepo, h.locks, h.settings, h.accounts, h.client, h.notifier, cfg, h.clock, nil, log)
	h.scheduler = NewSchedulerService(h.queue, h.selector, h.settings, h.mediaRepo, h.dispatcher, h.notifier, cfg, h.clock, log)
	return h
}

func (h *harness) addMedia(t *testing.T, name, category string) *models.MediaItem {
	t.Helper()
	m, err := h.media.Register(context.Background(), RegisterMedia{
		SourceURI: "https://cdn.example.com/" + name + ".jpg",
		Category:  category,
		Caption:   "caption " + name,
	})
	require.NoError(t, err)
	return m
}

func (h *harness) enqueue(t *testing.T, mediaID string) *models.QueueEntry {
	t.Helper()
	e, err := h.queue.Enqueue(context.Background(), mediaID, h.clock.Now())
	require.NoError(t, err)
	return e
}

// enableAutoPost registers a destination account and turns automated
// posting on.
func (h *harness) enableAutoPost(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	account, err := h.accounts.Register(ctx, "tok", 0)
	require.NoError(t, err)
	_, err = h.settings.UpdateSettings(ctx, h.cfg.ChatID, SettingsPatch{
		AutoPostEnabled: boolPtr(true),
		AccountID:       &account.ID,
	})
	require.NoError(t, err)
}

func (h *harness) historyCount(t *testing.T, queueID string) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM posting_history WHERE queue_id = $1`, queueID).Scan(&n))
	return n
}

func boolPtr(b bool) *bool { return &b }
