package vexdb

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vexdb/vexdb-go/internal/coarsetime"
)

// Pool is the default ConnectionPool implementation: a mutex-guarded idle
// set with an explicit FIFO waiter queue.
//
// All mutation of the idle set, the on-loan set, the size counter and the
// waiter queue happens under one mutex, so idle+onLoan never exceeds
// MaxSize and Stats never observes a torn state. A connection is removed
// from the idle set under the mutex before it is health-probed, so a probe
// can never race with the same connection being handed to a waiter.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger

	mu        sync.Mutex
	idle      []*Connection
	loaned    map[*Connection]struct{}
	waiters   *list.List // of *waiter, FIFO
	size      int        // idle + on loan + provisioning reservations
	created   uint64
	destroyed uint64
	closed    bool
	stopSweep chan struct{}
}

var _ ConnectionPool = (*Pool)(nil)

// waiter is one caller blocked in Acquire. The channel is buffered so the
// releaser can hand a connection off without blocking while holding the
// pool mutex; a closed channel means the pool shut down.
type waiter struct {
	ch chan *Connection
}

// NewPool synchronously creates and authenticates MinSize connections. If
// any fails, every already-created connection is closed and the error is
// returned: no partial pool is left alive.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:     cfg,
		logger:  cfg.Logger,
		loaned:  make(map[*Connection]struct{}),
		waiters: list.New(),
	}

	conns := make([]*Connection, cfg.MinSize)
	g, gctx := errgroup.WithContext(ctx)
	for i := range conns {
		i := i
		g.Go(func() error {
			conn, err := p.connect(gctx)
			if err != nil {
				return err
			}
			conns[i] = conn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, conn := range conns {
			if conn != nil {
				conn.Close()
			}
		}
		return nil, err
	}

	p.idle = conns
	p.size = cfg.MinSize
	p.created = uint64(cfg.MinSize)

	if cfg.HealthCheckInterval > 0 {
		p.stopSweep = make(chan struct{})
		go p.sweep()
	}
	return p, nil
}

// connect dials and authenticates one connection with the pool's fixed
// credentials. Authentication failures close the socket before returning.
func (p *Pool) connect(ctx context.Context) (*Connection, error) {
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

// Acquire returns an idle connection, provisions a new one below MaxSize,
// or blocks FIFO behind earlier acquirers until a release or the acquire
// timeout, whichever comes first.
func (p *Pool) Acquire(ctx context.Context) (*Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		// Idle connection available.
		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.loaned[conn] = struct{}{}
			stale := coarsetime.Since(conn.LastUsed()) > p.cfg.IdleStaleness
			p.mu.Unlock()

			if stale {
				if err := p.probe(conn); err != nil {
					p.logger.Debug("discarding stale connection", "addr", p.cfg.Addr, "error", err)
					p.destroyLoaned(conn)
					continue
				}
			}
			return conn, nil
		}

		// Room to grow: provision on demand. The size reservation is taken
		// before unlocking so concurrent acquirers cannot overshoot MaxSize.
		if p.size < p.cfg.MaxSize {
			p.size++
			p.mu.Unlock()

			conn, err := p.connect(ctx)
			if err != nil {
				p.mu.Lock()
				p.size--
				p.mu.Unlock()
				// Authentication and dial failures surface to this
				// acquirer; they are never silently retried.
				return nil, err
			}

			p.mu.Lock()
			if p.closed {
				p.size--
				p.mu.Unlock()
				conn.Close()
				return nil, ErrPoolClosed
			}
			p.created++
			p.loaned[conn] = struct{}{}
			p.mu.Unlock()
			return conn, nil
		}

		// At capacity: queue behind earlier waiters.
		w := &waiter{ch: make(chan *Connection, 1)}
		elem := p.waiters.PushBack(w)
		p.mu.Unlock()

		select {
		case conn, ok := <-w.ch:
			if !ok {
				return nil, ErrPoolClosed
			}
			return conn, nil

		case <-timer.C:
			p.mu.Lock()
			p.waiters.Remove(elem)
			p.mu.Unlock()
			// A release may have handed us a connection in the window
			// before the queue entry was removed.
			select {
			case conn, ok := <-w.ch:
				if ok {
					return conn, nil
				}
				return nil, ErrPoolClosed
			default:
			}
			return nil, &PoolExhaustedError{Timeout: p.cfg.AcquireTimeout}

		case <-ctx.Done():
			p.mu.Lock()
			p.waiters.Remove(elem)
			p.mu.Unlock()
			select {
			case conn, ok := <-w.ch:
				if ok {
					// Handed off after cancellation: give it back.
					_ = p.Release(conn)
				}
			default:
			}
			return nil, ctx.Err()
		}
	}
}

// Release returns a connection to the pool. Healthy connections go to the
// oldest waiter (staying on loan, ownership transferred) or back to the
// idle set; broken ones are destroyed and replaced toward MinSize.
func (p *Pool) Release(conn *Connection) error {
	p.mu.Lock()

	if _, ok := p.loaned[conn]; !ok {
		p.mu.Unlock()
		return &InvariantViolation{Message: "released a connection not on loan from this pool"}
	}
	delete(p.loaned, conn)

	if p.closed {
		p.size--
		p.destroyed++
		p.mu.Unlock()
		conn.Close()
		return nil
	}

	if !conn.Healthy() {
		p.size--
		p.destroyed++
		replenish := p.size < p.cfg.MinSize
		p.mu.Unlock()
		conn.Close()
		p.logger.Debug("discarded broken connection on release", "addr", p.cfg.Addr)
		if replenish {
			go p.replenish()
		}
		return nil
	}

	p.parkLocked(conn)
	p.mu.Unlock()
	return nil
}

// parkLocked hands a healthy, unowned connection to the oldest waiter or
// appends it to the idle set. Caller holds p.mu.
func (p *Pool) parkLocked(conn *Connection) {
	if elem := p.waiters.Front(); elem != nil {
		p.waiters.Remove(elem)
		w := elem.Value.(*waiter)
		p.loaned[conn] = struct{}{}
		w.ch <- conn
		return
	}
	p.idle = append(p.idle, conn)
}

// destroyLoaned removes a connection that is currently on loan (to a
// caller or to the pool itself during a probe) and replaces it if the pool
// fell below MinSize.
func (p *Pool) destroyLoaned(conn *Connection) {
	p.mu.Lock()
	delete(p.loaned, conn)
	p.size--
	p.destroyed++
	replenish := !p.closed && p.size < p.cfg.MinSize
	p.mu.Unlock()

	conn.Close()
	if replenish {
		go p.replenish()
	}
}

// replenish provisions connections in the background until the pool is
// back at MinSize. One dial failure aborts the run; the next discard or
// sweep will try again.
func (p *Pool) replenish() {
	for {
		p.mu.Lock()
		if p.closed || p.size >= p.cfg.MinSize {
			p.mu.Unlock()
			return
		}
		p.size++
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout+p.cfg.ReadTimeout)
		conn, err := p.connect(ctx)
		cancel()
		if err != nil {
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			p.logger.Warn("replenish failed", "addr", p.cfg.Addr, "error", err)
			return
		}

		p.mu.Lock()
		if p.closed {
			p.size--
			p.mu.Unlock()
			conn.Close()
			return
		}
		p.created++
		p.parkLocked(conn)
		p.mu.Unlock()
	}
}

// probe checks liveness with the no-op command under the probe timeout.
func (p *Pool) probe(conn *Connection) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProbeTimeout)
	defer cancel()
	return conn.Ping(ctx)
}

// sweep periodically health-checks the idle set.
func (p *Pool) sweep() {
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

// checkIdle takes the whole idle set, probes the stale entries off-lock,
// and parks the survivors. Discarded connections are replaced toward
// MinSize. The taken connections stay counted in size, so acquirers cannot
// overshoot MaxSize while the sweep runs.
func (p *Pool) checkIdle() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	discarded := 0
	for _, conn := range idle {
		healthy := true
		if coarsetime.Since(conn.LastUsed()) > p.cfg.IdleStaleness {
			if err := p.probe(conn); err != nil {
				healthy = false
				p.logger.Debug("sweep discarded connection", "addr", p.cfg.Addr, "error", err)
			}
		}

		p.mu.Lock()
		if p.closed {
			p.size--
			p.destroyed++
			p.mu.Unlock()
			conn.Close()
			continue
		}
		if !healthy {
			p.size--
			p.destroyed++
			p.mu.Unlock()
			conn.Close()
			discarded++
			continue
		}
		p.parkLocked(conn)
		p.mu.Unlock()
	}

	if discarded > 0 {
		p.replenish()
	}
}

// With runs fn with an acquired connection, releasing on every exit path.
func (p *Pool) With(ctx context.Context, fn func(*Connection) error) error {
	return runWith(p, ctx, fn)
}

// WithClient runs fn with a Client bound to an acquired connection.
func (p *Pool) WithClient(ctx context.Context, fn func(*Client) error) error {
	return runWithClient(p, ctx, fn)
}

// Stats returns a snapshot taken under the pool mutex.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		PoolSize:         p.size,
		IdleConns:        len(p.idle),
		ActiveConns:      len(p.loaned),
		MinSize:          p.cfg.MinSize,
		MaxSize:          p.cfg.MaxSize,
		WaitingAcquirers: p.waiters.Len(),
		CreatedConns:     p.created,
		DestroyedConns:   p.destroyed,
	}
}

// Close stops new acquisitions, closes all idle connections and wakes
// every blocked acquirer with ErrPoolClosed. Connections on loan are
// closed as their holders release them.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	idle := p.idle
	p.idle = nil
	p.size -= len(idle)
	p.destroyed += uint64(len(idle))

	for elem := p.waiters.Front(); elem != nil; elem = elem.Next() {
		close(elem.Value.(*waiter).ch)
	}
	p.waiters.Init()

	stop := p.stopSweep
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	for _, conn := range idle {
		conn.Close()
	}
}
