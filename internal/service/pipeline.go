package service

import (
	"fmt"
	"time"

	config "github.com/maheshrc27/postqueue/configs"
)

// PipelineConfig is the resolved pipeline configuration handed to every
// service constructor.
type PipelineConfig struct {
	ChatID           int64
	MaxRetries       int
	RepostTTL        time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	PostsPerDay      int
	WindowStartHour  int
	WindowEndHour    int
	MaxJitter        time.Duration
	Location         *time.Location
	DefaultCategory  string
	AutoPostEnabled  bool
	DryRun           bool
	DrainBatch       int
	DrainConcurrency int
	StaleClaimAfter  time.Duration
	LockGracePeriod  time.Duration
}

func NewPipelineConfig(cfg *config.Config) (PipelineConfig, error) {
	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("load timezone %q: %w", cfg.Pipeline.Timezone, err)
	}
	p := cfg.Pipeline
	return PipelineConfig{
		ChatID:           cfg.Telegram.ChatID,
		MaxRetries:       p.MaxRetries,
		RepostTTL:        p.RepostTTL,
		BackoffBase:      p.BackoffBase,
		BackoffMax:       p.BackoffMax,
		PostsPerDay:      p.PostsPerDay,
		WindowStartHour:  p.WindowStartHour,
		WindowEndHour:    p.WindowEndHour,
		MaxJitter:        p.MaxJitter,
		Location:         loc,
		DefaultCategory:  p.DefaultCategory,
		AutoPostEnabled:  p.AutoPostEnabled,
		DryRun:           p.DryRun,
		DrainBatch:       p.DrainBatch,
		DrainConcurrency: p.DrainConcurrency,
		StaleClaimAfter:  p.StaleClaimAfter,
		LockGracePeriod:  p.LockGracePeriod,
	}, nil
}

// Metrics is the subset of the Prometheus collector the services report to.
type Metrics interface {
	RecordClaim(won bool)
	RecordOutcome(status string)
	RecordRetry()
	RecordEnqueued()
	RecordPublishLatency(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordClaim(bool)                   {}
func (nopMetrics) RecordOutcome(string)               {}
func (nopMetrics) RecordRetry()                       {}
func (nopMetrics) RecordEnqueued()                    {}
func (nopMetrics) RecordPublishLatency(time.Duration) {}

func orNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
