package vexdb

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vexdb/vexdb-go/internal/testutils"
)

// createListener starts a raw TCP listener that runs handler for every
// accepted connection. It is used for misbehaving-server cases the fake
// server cannot express: garbage bytes, silence, half-written responses.
func createListener(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handler(conn)
			}()
		}
	}()

	return listener.Addr().String()
}

// readLine consumes one request line so a scripted handler can reply to it.
func readLine(conn net.Conn) error {
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			return err
		}
		if buf[0] == '\n' {
			return nil
		}
	}
}

// dialTestConn dials the fake server and authenticates with its default
// credentials.
func dialTestConn(t *testing.T, srv *testutils.Server) *Connection {
	t.Helper()

	conn, err := Dial(srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Authenticate(context.Background(), testutils.DefaultUser, testutils.DefaultPassword)
	require.NoError(t, err)
	return conn
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

func testPoolConfig(srv *testutils.Server) PoolConfig {
	return PoolConfig{
		Addr:     srv.Addr(),
		Username: testutils.DefaultUser,
		Password: testutils.DefaultPassword,
	}
}
