package vexdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vexdb/vexdb-go/internal/testutils"
)

func TestPuddlePoolWarmUp(t *testing.T) {
	srv := testutils.Start(t)

	cfg := testPoolConfig(srv)
	cfg.MinSize = 2
	cfg.MaxSize = 4

	pool, err := NewPuddlePool(context.Background(), cfg)
	require.NoError(t, err)
	defer pool.Close()

	stats := pool.Stats()
	require.Equal(t, 2, stats.PoolSize)
	require.Equal(t, 2, stats.IdleConns)
	require.Equal(t, uint64(2), stats.CreatedConns)
	require.Equal(t, 2, srv.TotalConns())
}

func TestPuddlePoolWarmUpAuthFailure(t *testing.T) {
	srv := testutils.Start(t)

	cfg := testPoolConfig(srv)
	cfg.Password = "wrong"
	cfg.MinSize = 1

	pool, err := NewPuddlePool(context.Background(), cfg)
	require.Nil(t, pool)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	waitFor(t, time.Second, func() bool { return srv.ActiveConns() == 0 }, "no sockets should survive failed warm-up")
}

func TestPuddlePoolAcquireRelease(t *testing.T) {
	srv := testutils.Start(t)
	ctx := context.Background()

	cfg := testPoolConfig(srv)
	cfg.MinSize = 1
	cfg.MaxSize = 2

	pool, err := NewPuddlePool(ctx, cfg)
	require.NoError(t, err)
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, conn.Authenticated())
	require.NoError(t, conn.Ping(ctx))

	require.Equal(t, 1, pool.Stats().ActiveConns)
	require.NoError(t, pool.Release(conn))
	require.Zero(t, pool.Stats().ActiveConns)
}

func TestPuddlePoolExhaustion(t *testing.T) {
	srv := testutils.Start(t)
	ctx := context.Background()

	cfg := testPoolConfig(srv)
	cfg.MinSize = 1
	cfg.MaxSize = 1
	cfg.AcquireTimeout = 200 * time.Millisecond

	pool, err := NewPuddlePool(ctx, cfg)
	require.NoError(t, err)
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = pool.Acquire(ctx)
	elapsed := time.Since(start)

	var exhausted *PoolExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second)

	require.NoError(t, pool.Release(conn))
}

func TestPuddlePoolCallerDeadlineWins(t *testing.T) {
	srv := testutils.Start(t)

	cfg := testPoolConfig(srv)
	cfg.MinSize = 1
	cfg.MaxSize = 1
	cfg.AcquireTimeout = 5 * time.Second

	pool, err := NewPuddlePool(context.Background(), cfg)
	require.NoError(t, err)
	defer pool.Close()

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(conn)

	// A caller deadline shorter than the acquire timeout surfaces as the
	// caller's own context error, not as exhaustion.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPuddlePoolDiscardsBrokenConnectionOnRelease(t *testing.T) {
	srv := testutils.Start(t)
	ctx := context.Background()

	cfg := testPoolConfig(srv)
	cfg.MinSize = 1
	cfg.MaxSize = 2

	pool, err := NewPuddlePool(ctx, cfg)
	require.NoError(t, err)
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	conn.Close()
	require.NoError(t, pool.Release(conn))

	require.Equal(t, uint64(1), pool.Stats().DestroyedConns)

	fresh, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.NotSame(t, conn, fresh)
	require.NoError(t, fresh.Ping(ctx))
	require.NoError(t, pool.Release(fresh))
}

func TestPuddlePoolForeignReleaseRejected(t *testing.T) {
	srv := testutils.Start(t)

	pool, err := NewPuddlePool(context.Background(), testPoolConfig(srv))
	require.NoError(t, err)
	defer pool.Close()

	foreign := dialTestConn(t, srv)
	err = pool.Release(foreign)

	var violation *InvariantViolation
	require.ErrorAs(t, err, &violation)
}

func TestPuddlePoolWith(t *testing.T) {
	srv := testutils.Start(t)
	ctx := context.Background()

	pool, err := NewPuddlePool(ctx, testPoolConfig(srv))
	require.NoError(t, err)
	defer pool.Close()

	err = pool.With(ctx, func(conn *Connection) error {
		return conn.Ping(ctx)
	})
	require.NoError(t, err)
	require.Zero(t, pool.Stats().ActiveConns)
}

func TestPuddlePoolClose(t *testing.T) {
	srv := testutils.Start(t)
	ctx := context.Background()

	pool, err := NewPuddlePool(ctx, testPoolConfig(srv))
	require.NoError(t, err)

	pool.Close()
	pool.Close() // idempotent

	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, ErrPoolClosed)

	waitFor(t, time.Second, func() bool { return srv.ActiveConns() == 0 }, "all sockets should be closed")
}
