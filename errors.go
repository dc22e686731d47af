package vexdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/vexdb/vexdb-go/protocol"
)

var (
	// ErrConnectionClosed is returned when an operation is attempted on a
	// connection that was already closed.
	ErrConnectionClosed = errors.New("vexdb: connection closed")

	// ErrPoolClosed is returned by Acquire after the pool was closed.
	ErrPoolClosed = errors.New("vexdb: pool closed")
)

// ConnectionError wraps socket-level failures: refused connections, DNS
// failures, resets, and read/write timeouts. The connection is broken and
// must be closed.
type ConnectionError struct {
	Op   string // dial, write, read, handshake
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("vexdb: connection error during %s to %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) ShouldCloseConnection() bool { return true }

// AuthenticationError indicates the server rejected the supplied
// credentials. The socket itself is still healthy.
type AuthenticationError struct {
	Addr    string
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("vexdb: authentication rejected by %s: %s", e.Addr, e.Message)
}

func (e *AuthenticationError) ShouldCloseConnection() bool { return false }

// QueryError indicates the server returned a tagged failure for a command,
// or that a command required a space and none was selected. The connection
// remains usable.
type QueryError struct {
	Command string
	Message string
}

func (e *QueryError) Error() string {
	if e.Command == "" {
		return "vexdb: query error: " + e.Message
	}
	return fmt.Sprintf("vexdb: query error on %s: %s", e.Command, e.Message)
}

func (e *QueryError) ShouldCloseConnection() bool { return false }

// PoolExhaustedError is returned when no connection became available
// within the acquire timeout.
type PoolExhaustedError struct {
	Timeout time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("vexdb: pool exhausted: no connection available within %s", e.Timeout)
}

// InvariantViolation reports programmer misuse of the API, such as
// releasing a connection that is not on loan from the pool. It is never
// returned for runtime conditions.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return "vexdb: invariant violation: " + e.Message
}

// connectionStater is implemented by errors that know whether the
// connection that produced them is still usable.
type connectionStater interface {
	error
	ShouldCloseConnection() bool
}

var _ connectionStater = (*protocol.ProtocolError)(nil)

// ShouldCloseConnection reports whether err means the connection that
// produced it is corrupted or broken and must be discarded. Unknown error
// types are treated as fatal to the connection.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}
	var cs connectionStater
	if errors.As(err, &cs) {
		return cs.ShouldCloseConnection()
	}
	return true
}
