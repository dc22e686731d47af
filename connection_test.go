package vexdb

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vexdb/vexdb-go/internal/testutils"
	"github.com/vexdb/vexdb-go/protocol"
)

func TestDialFailure(t *testing.T) {
	// A listener that is immediately closed leaves a port nothing accepts on.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	conn, err := Dial(addr, WithConnectTimeout(time.Second))
	require.Nil(t, conn)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "dial", connErr.Op)
	require.Equal(t, addr, connErr.Addr)
	require.True(t, ShouldCloseConnection(err))
}

func TestAuthenticate(t *testing.T) {
	srv := testutils.Start(t)

	conn, err := Dial(srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	require.False(t, conn.Authenticated())

	role, err := conn.Authenticate(context.Background(), testutils.DefaultUser, testutils.DefaultPassword)
	require.NoError(t, err)
	require.Equal(t, "admin", role)
	require.True(t, conn.Authenticated())
	require.Equal(t, "admin", conn.Role())
}

func TestAuthenticateRejected(t *testing.T) {
	srv := testutils.Start(t)

	conn, err := Dial(srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Authenticate(context.Background(), testutils.DefaultUser, "wrong")

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, srv.Addr(), authErr.Addr)
	require.False(t, conn.Authenticated())

	// Rejection is a clean protocol exchange, not a transport failure.
	require.True(t, conn.Healthy())
	require.False(t, ShouldCloseConnection(err))
	require.NoError(t, conn.Ping(context.Background()))
}

func TestSendBeforeAuthenticate(t *testing.T) {
	srv := testutils.Start(t)

	conn, err := Dial(srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Send(context.Background(), protocol.NewCommand("list_spaces"))

	// Rejected locally; the fake server would answer with a tagged failure,
	// which would surface as a QueryError instead.
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestPingWithoutAuthentication(t *testing.T) {
	srv := testutils.Start(t)

	conn, err := Dial(srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Ping(context.Background()))
}

func TestUseSpaceCachesActiveSpace(t *testing.T) {
	srv := testutils.Start(t)
	conn := dialTestConn(t, srv)
	client := NewClient(conn)
	ctx := context.Background()

	require.NoError(t, client.CreateSpace(ctx, "docs", CreateSpaceOptions{Dimension: 2}))

	require.Empty(t, conn.ActiveSpace())
	require.NoError(t, conn.UseSpace(ctx, "docs"))
	require.Equal(t, "docs", conn.ActiveSpace())

	// A rejected use_space must not clobber the cached space.
	err := conn.UseSpace(ctx, "missing")
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	require.Equal(t, "docs", conn.ActiveSpace())
}

func TestNoSpaceSelectedFailsFast(t *testing.T) {
	srv := testutils.Start(t)
	client := NewClient(dialTestConn(t, srv))

	_, _, err := client.Get(context.Background(), "key")

	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	require.Contains(t, queryErr.Message, "no space selected")
	require.False(t, ShouldCloseConnection(err))
}

func TestServerFailureKeepsConnectionUsable(t *testing.T) {
	srv := testutils.Start(t)
	conn := dialTestConn(t, srv)
	ctx := context.Background()

	_, err := conn.Send(ctx, protocol.NewCommand("drop_space").AddString("name", "missing"))

	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	require.Equal(t, "drop_space", queryErr.Command)
	require.True(t, conn.Healthy())
	require.NoError(t, conn.Ping(ctx))
}

func TestGarbageResponseBreaksConnection(t *testing.T) {
	addr := createListener(t, func(conn net.Conn) {
		if err := readLine(conn); err != nil {
			return
		}
		conn.Write([]byte("!!not json!!\n"))
	})

	conn, err := Dial(addr)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Ping(context.Background())

	var protoErr *protocol.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, ShouldCloseConnection(err))
	require.False(t, conn.Healthy())

	// Once broken, the connection refuses further use.
	err = conn.Ping(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestTruncatedResponseBreaksConnection(t *testing.T) {
	addr := createListener(t, func(conn net.Conn) {
		if err := readLine(conn); err != nil {
			return
		}
		conn.Write([]byte(`{"status":"ok"`)) // no newline, then EOF
	})

	conn, err := Dial(addr)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Ping(context.Background())

	var protoErr *protocol.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.False(t, conn.Healthy())
}

func TestReadTimeout(t *testing.T) {
	addr := createListener(t, func(conn net.Conn) {
		readLine(conn)
		time.Sleep(5 * time.Second) // never respond
	})

	conn, err := Dial(addr, WithReadTimeout(100*time.Millisecond))
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	err = conn.Ping(context.Background())
	elapsed := time.Since(start)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "read", connErr.Op)
	require.False(t, conn.Healthy())
	require.Less(t, elapsed, time.Second)
}

func TestContextDeadlineBoundsExchange(t *testing.T) {
	addr := createListener(t, func(conn net.Conn) {
		readLine(conn)
		time.Sleep(5 * time.Second)
	})

	conn, err := Dial(addr, WithReadTimeout(time.Minute))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = conn.Ping(ctx)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := testutils.Start(t)

	conn, err := Dial(srv.Addr())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.False(t, conn.Healthy())

	err = conn.Ping(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)

	waitFor(t, time.Second, func() bool { return srv.ActiveConns() == 0 }, "server should see the socket close")
}
