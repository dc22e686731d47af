package vexdb

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vexdb/vexdb-go/internal/coarsetime"
	"github.com/vexdb/vexdb-go/protocol"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 5 * time.Second
)

// Connection owns one TCP socket to a VexDB server. The protocol is
// strictly request/response: a connection carries at most one in-flight
// request, serialized by an internal mutex.
//
// A Connection is created unauthenticated; Authenticate must succeed
// before any other command except Ping.
type Connection struct {
	addr        string
	readTimeout time.Duration
	logger      *slog.Logger

	mu            sync.Mutex
	conn          net.Conn
	reader        *bufio.Reader
	authenticated bool
	role          string
	activeSpace   string
	lastUsed      time.Time
	closed        bool
	broken        bool
}

type dialOptions struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
	logger         *slog.Logger
}

// DialOption customizes Dial.
type DialOption func(*dialOptions)

// WithConnectTimeout bounds the TCP connect (including DNS resolution).
func WithConnectTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.connectTimeout = d }
}

// WithReadTimeout bounds the wait for a full response to each command.
func WithReadTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.readTimeout = d }
}

// WithLogger sets a structured logger for connection lifecycle events.
func WithLogger(l *slog.Logger) DialOption {
	return func(o *dialOptions) { o.logger = l }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
}

// Dial opens a socket to addr with the configured connect timeout. The
// returned connection is not yet authenticated.
func Dial(addr string, opts ...DialOption) (*Connection, error) {
	o := dialOptions{
		connectTimeout: defaultConnectTimeout,
		readTimeout:    defaultReadTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = discardLogger()
	}

	conn, err := net.DialTimeout("tcp", addr, o.connectTimeout)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}

	return &Connection{
		addr:        addr,
		readTimeout: o.readTimeout,
		logger:      o.logger,
		conn:        conn,
		reader:      bufio.NewReader(conn),
		lastUsed:    coarsetime.Now(),
	}, nil
}

// Addr returns the server address this connection was dialed to.
func (c *Connection) Addr() string { return c.addr }

// Authenticated reports whether the session has been authenticated.
func (c *Connection) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Role returns the role granted by the server at authentication time.
func (c *Connection) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// ActiveSpace returns the space selected by UseSpace, if any.
func (c *Connection) ActiveSpace() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSpace
}

// LastUsed returns when the connection last completed a request.
func (c *Connection) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// Healthy reports whether the connection is still usable: open and not
// marked broken by a transport failure.
func (c *Connection) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.broken
}

// Authenticate sends the authentication command. On success the session is
// marked authenticated and the granted role is stored for the lifetime of
// the socket; no reauthentication happens on later commands.
func (c *Connection) Authenticate(ctx context.Context, username, password string) (string, error) {
	resp, err := c.exchange(ctx, newAuthCommand(username, password))
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", &AuthenticationError{Addr: c.addr, Message: resp.Message}
	}

	role, _ := resp.StringField("role")

	c.mu.Lock()
	c.authenticated = true
	c.role = role
	c.mu.Unlock()

	c.logger.Debug("authenticated", "addr", c.addr, "user", username, "role", role)
	return role, nil
}

// Send writes one encoded command and blocks until one full response is
// read or the read timeout elapses. A server failure response is returned
// as a *QueryError; transport failures mark the connection broken.
func (c *Connection) Send(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	resp, err := c.exchange(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &QueryError{Command: cmd.Name, Message: resp.Message}
	}
	return resp, nil
}

// exchange performs one request/response cycle without interpreting the
// failure tag, so Authenticate can map rejections to its own error kind.
func (c *Connection) exchange(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	wire, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.broken {
		return nil, &ConnectionError{Op: "send", Addr: c.addr, Err: ErrConnectionClosed}
	}
	if !c.authenticated && requiresAuth(cmd.Name) {
		return nil, &AuthenticationError{Addr: c.addr, Message: "connection is not authenticated"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.broken = true
		return nil, &ConnectionError{Op: "send", Addr: c.addr, Err: err}
	}

	if _, err := c.conn.Write(wire); err != nil {
		c.broken = true
		return nil, &ConnectionError{Op: "write", Addr: c.addr, Err: err}
	}

	resp, err := protocol.ReadResponse(c.reader)
	if err != nil {
		c.broken = true
		if perr, ok := err.(*protocol.ProtocolError); ok {
			return nil, perr
		}
		return nil, &ConnectionError{Op: "read", Addr: c.addr, Err: err}
	}

	c.lastUsed = coarsetime.Now()
	return resp, nil
}

// UseSpace selects the active space for this connection. On success the
// name is cached so later operations can omit the space argument.
func (c *Connection) UseSpace(ctx context.Context, name string) error {
	if _, err := c.Send(ctx, newUseSpaceCommand(name)); err != nil {
		return err
	}

	c.mu.Lock()
	c.activeSpace = name
	c.mu.Unlock()
	return nil
}

// resolveSpace picks the space for an operation: the explicit argument if
// given, else the cached active space. With neither, it fails fast before
// any network I/O — the server would reject the command anyway.
func (c *Connection) resolveSpace(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	c.mu.Lock()
	cached := c.activeSpace
	c.mu.Unlock()

	if cached == "" {
		return "", &QueryError{Message: "no space selected: call UseSpace or pass an explicit space"}
	}
	return cached, nil
}

// Ping sends the liveness probe command. It does not require
// authentication and is what pool health checks use.
func (c *Connection) Ping(ctx context.Context) error {
	resp, err := c.exchange(ctx, newPingCommand())
	if err != nil {
		return err
	}
	if !resp.OK {
		return &QueryError{Command: cmdPing, Message: resp.Message}
	}
	return nil
}

// Close shuts the socket down and marks the connection unusable. It is
// idempotent and safe to call from any cleanup path.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.authenticated = false
	return c.conn.Close()
}
