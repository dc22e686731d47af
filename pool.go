package vexdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultAcquireTimeout = 5 * time.Second
	defaultMinSize        = 1
	defaultMaxSize        = 10
	defaultIdleStaleness  = 30 * time.Second
	defaultProbeTimeout   = time.Second
)

// ConnectionPool manages a bounded set of pre-authenticated connections.
// Two implementations exist: NewPool (the default) and NewPuddlePool.
type ConnectionPool interface {
	// Acquire returns an authenticated connection, blocking up to the
	// acquire timeout when the pool is at capacity.
	Acquire(ctx context.Context) (*Connection, error)

	// Release returns a connection obtained from Acquire. Unhealthy
	// connections are destroyed and replaced instead of pooled.
	// Releasing a connection not on loan is an InvariantViolation.
	Release(conn *Connection) error

	// With runs fn with an acquired connection and guarantees release on
	// every exit path, including panics.
	With(ctx context.Context, fn func(*Connection) error) error

	// Stats returns a consistent snapshot of the pool state.
	Stats() PoolStats

	// Close rejects new acquisitions and closes all idle connections.
	// Connections still on loan are closed as they are released.
	Close()
}

// PoolConfig configures a connection pool. It is immutable after the pool
// is constructed.
type PoolConfig struct {
	// Addr is the host:port of the server.
	Addr string

	// Username and Password are the fixed credentials every pooled
	// connection authenticates with before entering the idle set.
	Username string
	Password string

	// ConnectTimeout bounds dialing a new connection. Default 5s.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for each command response. Default 5s.
	ReadTimeout time.Duration

	// AcquireTimeout bounds how long Acquire blocks when the pool is at
	// capacity before failing with PoolExhaustedError. Default 5s.
	AcquireTimeout time.Duration

	// MinSize is the number of connections created at initialization and
	// maintained by replenishment. Default 1; 0 is valid.
	MinSize int

	// MaxSize caps idle + on-loan connections. Default 10.
	MaxSize int

	// IdleStaleness is how long a connection may sit idle before it is
	// probed prior to being handed out. Default 30s.
	IdleStaleness time.Duration

	// ProbeTimeout bounds a single health-check probe. Default 1s.
	ProbeTimeout time.Duration

	// HealthCheckInterval enables a periodic background sweep of the idle
	// set. Zero leaves probing lazy-only (the default).
	HealthCheckInterval time.Duration

	// Logger receives pool lifecycle events. Nil discards them.
	Logger *slog.Logger
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.MinSize < 0 {
		c.MinSize = defaultMinSize
	}
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxSize
	}
	if c.IdleStaleness <= 0 {
		c.IdleStaleness = defaultIdleStaleness
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.Logger == nil {
		c.Logger = discardLogger()
	}
	return c
}

func (c PoolConfig) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("vexdb: pool config: Addr is required")
	}
	if c.MaxSize < c.MinSize {
		return fmt.Errorf("vexdb: pool config: MaxSize (%d) must be >= MinSize (%d)", c.MaxSize, c.MinSize)
	}
	return nil
}

// PoolStats is a snapshot of pool state, taken under the same
// synchronization as pool mutation so it is never torn.
type PoolStats struct {
	// PoolSize counts connections owned by the pool: idle + on loan +
	// currently provisioning.
	PoolSize int

	IdleConns   int
	ActiveConns int // on loan

	MinSize int
	MaxSize int

	// WaitingAcquirers is the number of callers blocked in Acquire.
	WaitingAcquirers int

	CreatedConns   uint64
	DestroyedConns uint64
}

// runWith is the shared scope-guaranteed acquire-use-release helper behind
// every pool's With method. The deferred release runs even if fn panics.
func runWith(p ConnectionPool, ctx context.Context, fn func(*Connection) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Release(conn)
	}()
	return fn(conn)
}

// runWithClient adapts runWith to the typed Client surface.
func runWithClient(p ConnectionPool, ctx context.Context, fn func(*Client) error) error {
	return runWith(p, ctx, func(conn *Connection) error {
		return fn(NewClient(conn))
	})
}
