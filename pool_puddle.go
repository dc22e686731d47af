package vexdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/vexdb/vexdb-go/internal/coarsetime"
)

// PuddlePool is a ConnectionPool backed by jackc/puddle. It trades the
// default pool's explicit waiter queue for puddle's resource management;
// acquisition order under contention follows puddle's semantics.
type PuddlePool struct {
	cfg    PoolConfig
	logger *slog.Logger
	pool   *puddle.Pool[*Connection]

	mu    sync.Mutex
	loans map[*Connection]*puddle.Resource[*Connection]

	created   atomic.Uint64
	destroyed atomic.Uint64

	stopSweep chan struct{}
	closeOnce sync.Once
}

var _ ConnectionPool = (*PuddlePool)(nil)

// NewPuddlePool creates a puddle-backed pool and synchronously warms it up
// to MinSize authenticated connections. Any warm-up failure closes the
// pool and returns the error.
func NewPuddlePool(ctx context.Context, cfg PoolConfig) (*PuddlePool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &PuddlePool{
		cfg:    cfg,
		logger: cfg.Logger,
		loans:  make(map[*Connection]*puddle.Resource[*Connection]),
	}

	pool, err := puddle.NewPool(&puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			conn, err := p.connect(ctx)
			if err == nil {
				p.created.Add(1)
			}
			return conn, err
		},
		Destructor: func(conn *Connection) {
			p.destroyed.Add(1)
			conn.Close()
		},
		MaxSize: int32(cfg.MaxSize),
	})
	if err != nil {
		return nil, err
	}
	p.pool = pool

	for i := 0; i < cfg.MinSize; i++ {
		if err := pool.CreateResource(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	if cfg.HealthCheckInterval > 0 {
		p.stopSweep = make(chan struct{})
		go p.sweep()
	}
	return p, nil
}

func (p *PuddlePool) connect(ctx context.Context) (*Connection, error) {
	conn, err := Dial(p.cfg.Addr,
		WithConnectTimeout(p.cfg.ConnectTimeout),
		WithReadTimeout(p.cfg.ReadTimeout),
		WithLogger(p.logger),
	)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Authenticate(ctx, p.cfg.Username, p.cfg.Password); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Acquire obtains a connection, bounding the wait with the configured
// acquire timeout when the caller context carries no earlier deadline.
func (p *PuddlePool) Acquire(ctx context.Context) (*Connection, error) {
	acquireCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	res, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			return nil, ErrPoolClosed
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return nil, &PoolExhaustedError{Timeout: p.cfg.AcquireTimeout}
		default:
			return nil, err
		}
	}

	conn := res.Value()

	// Stale idle connections are probed before hand-out, mirroring the
	// default pool's lazy health check.
	if coarsetime.Since(conn.LastUsed()) > p.cfg.IdleStaleness {
		if perr := p.probe(conn); perr != nil {
			p.logger.Debug("discarding stale connection", "addr", p.cfg.Addr, "error", perr)
			res.Destroy()
			return p.Acquire(ctx)
		}
	}

	p.mu.Lock()
	p.loans[conn] = res
	p.mu.Unlock()
	return conn, nil
}

// Release returns a connection to puddle, destroying it when broken.
func (p *PuddlePool) Release(conn *Connection) error {
	p.mu.Lock()
	res, ok := p.loans[conn]
	if !ok {
		p.mu.Unlock()
		return &InvariantViolation{Message: "released a connection not on loan from this pool"}
	}
	delete(p.loans, conn)
	p.mu.Unlock()

	if !conn.Healthy() {
		res.Destroy()
		return nil
	}
	res.Release()
	return nil
}

func (p *PuddlePool) probe(conn *Connection) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProbeTimeout)
	defer cancel()
	return conn.Ping(ctx)
}

// sweep periodically drains the idle set, destroys stale unresponsive
// connections and returns the rest unused.
func (p *PuddlePool) sweep() {
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.checkIdle()
		}
	}
}

func (p *PuddlePool) checkIdle() {
	for _, res := range p.pool.AcquireAllIdle() {
		if coarsetime.Since(res.Value().LastUsed()) <= p.cfg.IdleStaleness {
			res.ReleaseUnused()
			continue
		}
		if err := p.probe(res.Value()); err != nil {
			p.logger.Debug("sweep discarded connection", "addr", p.cfg.Addr, "error", err)
			res.Destroy()
			continue
		}
		res.ReleaseUnused()
	}
}

// With runs fn with an acquired connection, releasing on every exit path.
func (p *PuddlePool) With(ctx context.Context, fn func(*Connection) error) error {
	return runWith(p, ctx, fn)
}

// WithClient runs fn with a Client bound to an acquired connection.
func (p *PuddlePool) WithClient(ctx context.Context, fn func(*Client) error) error {
	return runWithClient(p, ctx, fn)
}

// Stats converts puddle's counters into a PoolStats snapshot. Puddle does
// not expose its waiter count, so WaitingAcquirers is always zero here.
func (p *PuddlePool) Stats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		PoolSize:       int(s.TotalResources()),
		IdleConns:      int(s.IdleResources()),
		ActiveConns:    int(s.AcquiredResources()),
		MinSize:        p.cfg.MinSize,
		MaxSize:        p.cfg.MaxSize,
		CreatedConns:   p.created.Load(),
		DestroyedConns: p.destroyed.Load(),
	}
}

// Close shuts the pool down. Safe to call multiple times.
func (p *PuddlePool) Close() {
	p.closeOnce.Do(func() {
		if p.stopSweep != nil {
			close(p.stopSweep)
		}
		p.pool.Close()
	})
}
