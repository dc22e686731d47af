package vexdb

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit breaker wrapped around acquisition.
// Zero values take gobreaker's defaults, except ReadyToTrip which trips
// after 3+ attempts with a 60% failure ratio.
type BreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// BreakerPool decorates a ConnectionPool so that acquisition failures
// (dead server, exhaustion) trip a circuit breaker. Once open, callers
// fail immediately with gobreaker.ErrOpenState instead of each burning a
// full acquire timeout against a server that is known to be down.
//
// Release, Stats and Close pass through to the wrapped pool.
type BreakerPool struct {
	inner ConnectionPool
	cb    *gobreaker.CircuitBreaker[*Connection]
}

var _ ConnectionPool = (*BreakerPool)(nil)

// NewBreakerPool wraps pool with a circuit breaker named after the pool.
func NewBreakerPool(pool ConnectionPool, cfg BreakerConfig) *BreakerPool {
	settings := gobreaker.Settings{
		Name:        "vexdb-pool",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
	return &BreakerPool{
		inner: pool,
		cb:    gobreaker.NewCircuitBreaker[*Connection](settings),
	}
}

func (p *BreakerPool) Acquire(ctx context.Context) (*Connection, error) {
	return p.cb.Execute(func() (*Connection, error) {
		return p.inner.Acquire(ctx)
	})
}

func (p *BreakerPool) Release(conn *Connection) error {
	return p.inner.Release(conn)
}

func (p *BreakerPool) With(ctx context.Context, fn func(*Connection) error) error {
	return runWith(p, ctx, fn)
}

// WithClient runs fn with a Client bound to an acquired connection.
func (p *BreakerPool) WithClient(ctx context.Context, fn func(*Client) error) error {
	return runWithClient(p, ctx, fn)
}

func (p *BreakerPool) Stats() PoolStats {
	return p.inner.Stats()
}

// BreakerState returns the current circuit breaker state.
func (p *BreakerPool) BreakerState() gobreaker.State {
	return p.cb.State()
}

func (p *BreakerPool) Close() {
	p.inner.Close()
}
