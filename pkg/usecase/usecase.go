package usecase

import (
	"time"

	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/infra"
)

const (
	defaultMaxEventAttempts = 5
	defaultMaxJobAttempts   = 5
	defaultBackoffBase      = 30 * time.Second
	defaultBackoffCap       = 15 * time.Minute
	defaultPageCap          = 10
	defaultStuckThreshold   = 30 * time.Minute

	// errorLimit bounds diagnostic messages persisted on events and jobs.
	errorLimit = 500
)

type UseCase struct {
	clients *infra.Clients

	maxEventAttempts int
	maxJobAttempts   int
	backoffBase      time.Duration
	backoffCap       time.Duration
	pageCap          int
	stuckThreshold   time.Duration

	now func() time.Time
}

var _ interfaces.UseCase = (*UseCase)(nil)

type Option func(*UseCase)

func New(clients *infra.Clients, options ...Option) *UseCase {
	uc := &UseCase{
		clients:          clients,
		maxEventAttempts: defaultMaxEventAttempts,
		maxJobAttempts:   defaultMaxJobAttempts,
		backoffBase:      defaultBackoffBase,
		backoffCap:       defaultBackoffCap,
		pageCap:          defaultPageCap,
		stuckThreshold:   defaultStuckThreshold,
		now:              time.Now,
	}

	for _, opt := range options {
		opt(uc)
	}

	return uc
}

func WithMaxEventAttempts(n int) Option {
	return func(x *UseCase) {
		x.maxEventAttempts = n
	}
}

func WithMaxJobAttempts(n int) Option {
	return func(x *UseCase) {
		x.maxJobAttempts = n
	}
}

func WithBackoff(base, ceil time.Duration) Option {
	return func(x *UseCase) {
		x.backoffBase = base
		x.backoffCap = ceil
	}
}

func WithPageCap(n int) Option {
	return func(x *UseCase) {
		x.pageCap = n
	}
}

func WithStuckThreshold(d time.Duration) Option {
	return func(x *UseCase) {
		x.stuckThreshold = d
	}
}

// WithNowFunc replaces the clock for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(x *UseCase) {
		x.now = now
	}
}

// backoff returns the delay before attempt n+1 after n failed attempts.
// Exponential from the base, capped.
func (x *UseCase) backoff(attempt int) time.Duration {
	d := x.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= x.backoffCap {
			return x.backoffCap
		}
	}
	if d > x.backoffCap {
		return x.backoffCap
	}
	return d
}
