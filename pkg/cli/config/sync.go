package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/hubsync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

type Sync struct {
	maxEventAttempts int64
	maxJobAttempts   int64
	backoffBase      time.Duration
	backoffCap       time.Duration
	pageCap          int64
	stuckThreshold   time.Duration

	fastPoll   time.Duration
	slowPoll   time.Duration
	reapPoll   time.Duration
	batchLimit int64
}

func (x *Sync) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "sync-max-event-attempts",
			Usage:       "Attempts before an event is dead-lettered",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_MAX_EVENT_ATTEMPTS"),
			Value:       5,
			Destination: &x.maxEventAttempts,
		},
		&cli.Int64Flag{
			Name:        "sync-max-job-attempts",
			Usage:       "Attempts before a sync job fails",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_MAX_JOB_ATTEMPTS"),
			Value:       5,
			Destination: &x.maxJobAttempts,
		},
		&cli.DurationFlag{
			Name:        "sync-backoff-base",
			Usage:       "Base retry backoff delay",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_BACKOFF_BASE"),
			Value:       30 * time.Second,
			Destination: &x.backoffBase,
		},
		&cli.DurationFlag{
			Name:        "sync-backoff-cap",
			Usage:       "Maximum retry backoff delay",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_BACKOFF_CAP"),
			Value:       15 * time.Minute,
			Destination: &x.backoffCap,
		},
		&cli.Int64Flag{
			Name:        "sync-page-cap",
			Usage:       "Max API pages per bootstrap chunk",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_PAGE_CAP"),
			Value:       10,
			Destination: &x.pageCap,
		},
		&cli.DurationFlag{
			Name:        "sync-stuck-threshold",
			Usage:       "Idle duration before a running job is reaped",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_STUCK_THRESHOLD"),
			Value:       30 * time.Minute,
			Destination: &x.stuckThreshold,
		},
		&cli.DurationFlag{
			Name:        "sync-fast-poll",
			Usage:       "Interval of the pending event poller",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_FAST_POLL"),
			Value:       time.Second,
			Destination: &x.fastPoll,
		},
		&cli.DurationFlag{
			Name:        "sync-slow-poll",
			Usage:       "Interval of the retry promotion poller",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_SLOW_POLL"),
			Value:       30 * time.Second,
			Destination: &x.slowPoll,
		},
		&cli.DurationFlag{
			Name:        "sync-reap-poll",
			Usage:       "Interval of the stuck job reaper",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_REAP_POLL"),
			Value:       5 * time.Minute,
			Destination: &x.reapPoll,
		},
		&cli.Int64Flag{
			Name:        "sync-batch-limit",
			Usage:       "Max events claimed per poll",
			Category:    "Sync",
			Sources:     cli.EnvVars("HUBSYNC_BATCH_LIMIT"),
			Value:       32,
			Destination: &x.batchLimit,
		},
	}
}

func (x *Sync) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("maxEventAttempts", x.maxEventAttempts),
		slog.Int64("maxJobAttempts", x.maxJobAttempts),
		slog.Duration("backoffBase", x.backoffBase),
		slog.Duration("backoffCap", x.backoffCap),
		slog.Int64("pageCap", x.pageCap),
		slog.Duration("stuckThreshold", x.stuckThreshold),
		slog.Duration("fastPoll", x.fastPoll),
		slog.Duration("slowPoll", x.slowPoll),
		slog.Duration("reapPoll", x.reapPoll),
		slog.Int64("batchLimit", x.batchLimit),
	)
}

func (x *Sync) Options() []usecase.Option {
	return []usecase.Option{
		usecase.WithMaxEventAttempts(int(x.maxEventAttempts)),
		usecase.WithMaxJobAttempts(int(x.maxJobAttempts)),
		usecase.WithBackoff(x.backoffBase, x.backoffCap),
		usecase.WithPageCap(int(x.pageCap)),
		usecase.WithStuckThreshold(x.stuckThreshold),
	}
}

func (x *Sync) FastPoll() time.Duration { return x.fastPoll }
func (x *Sync) SlowPoll() time.Duration { return x.slowPoll }
func (x *Sync) ReapPoll() time.Duration { return x.reapPoll }
func (x *Sync) BatchLimit() int { return int(x.batchLimit) }
