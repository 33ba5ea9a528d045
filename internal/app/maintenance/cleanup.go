package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/quillsign/federate/internal/auth"
	"github.com/quillsign/federate/pkg/logger"
)

const (
	defaultSweepSpec   = "@every 1m"
	defaultSessionSpec = "@hourly"
)

// TokenSweeper removes stale entries from a token store and reports the count.
// The in-memory token store satisfies this; the cache-backed store relies on
// backend TTLs instead and passes nil.
type TokenSweeper interface {
	Sweep() int
}

// Cleaner coordinates background maintenance: sweeping expired federation
// tokens and purging expired sessions.
type Cleaner struct {
	sweeper  TokenSweeper
	sessions *iauth.SessionService
	cron     *cron.Cron
	log      *zap.Logger

	sweepSchedule   string
	sessionSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSweepSchedule overrides the cron specification for the token sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency
// results in the corresponding job being skipped.
func NewCleaner(sweeper TokenSweeper, sessions *iauth.SessionService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sweeper:         sweeper,
		sessions:        sessions,
		sweepSchedule:   defaultSweepSpec,
		sessionSchedule: defaultSessionSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers maintenance jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.sweeper == nil && c.sessions == nil {
		return nil
	}

	if c.sweeper != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			if removed := c.sweeper.Sweep(); removed > 0 {
				c.log.Debug("swept expired federation tokens", zap.Int("removed", removed))
			}
		}); err != nil {
			return err
		}
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.sessions.CleanupExpired(context.Background()); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially.
// Primarily used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sweeper != nil {
		c.sweeper.Sweep()
	}

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
