package vexdb

import (
	"context"
	"sort"

	"github.com/vexdb/vexdb-go/protocol"
)

// Index and metric defaults applied by the client when the caller does not
// specify them. The server treats both as opaque strings.
const (
	DefaultIndexType = "Flat"
	DefaultMetric    = "L2"
	DefaultSearchK   = 1
)

// Client binds one Connection to the typed operation surface. Each method
// maps to exactly one command; the client only shapes arguments and passes
// the connection's error taxonomy through unchanged.
//
// No method retries: operations are not guaranteed idempotent, so retry
// policy belongs to the caller.
type Client struct {
	conn *Connection
}

// NewClient wraps an existing connection. The client does not take over
// the connection's lifecycle; closing remains the owner's job (the caller
// for standalone connections, the pool for pooled ones).
func NewClient(conn *Connection) *Client {
	return &Client{conn: conn}
}

// Connect dials addr and authenticates in one step, returning a ready
// client. The caller owns the connection and must Close it.
func Connect(ctx context.Context, addr, username, password string, opts ...DialOption) (*Client, error) {
	conn, err := Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Authenticate(ctx, username, password); err != nil {
		conn.Close()
		return nil, err
	}
	return NewClient(conn), nil
}

// Conn exposes the underlying connection, mainly for pool release.
func (c *Client) Conn() *Connection { return c.conn }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Authenticate authenticates the underlying connection and returns the
// granted role.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	return c.conn.Authenticate(ctx, username, password)
}

// Ping checks server liveness.
func (c *Client) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// UseSpace selects the active space for subsequent operations.
func (c *Client) UseSpace(ctx context.Context, name string) error {
	return c.conn.UseSpace(ctx, name)
}

// OpOption customizes a single operation.
type OpOption func(*opOptions)

type opOptions struct {
	space string
}

// InSpace overrides the active space for one operation.
func InSpace(name string) OpOption {
	return func(o *opOptions) { o.space = name }
}

func applyOpOptions(opts []OpOption) opOptions {
	var o opOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// --- Space operations ---

// CreateSpaceOptions configures a new space. Zero values take the client
// defaults: IndexType "Flat", Metric "L2". The index type and metric are
// opaque to the client; any string the server understands is valid.
type CreateSpaceOptions struct {
	Dimension int
	IndexType string
	Metric    string
}

func (c *Client) CreateSpace(ctx context.Context, name string, opts CreateSpaceOptions) error {
	if opts.IndexType == "" {
		opts.IndexType = DefaultIndexType
	}
	if opts.Metric == "" {
		opts.Metric = DefaultMetric
	}

	cmd := protocol.NewCommand(cmdCreateSpace).
		AddString("name", name).
		AddInt("dimension", int64(opts.Dimension)).
		AddString("index_type", opts.IndexType).
		AddString("metric", opts.Metric)

	_, err := c.conn.Send(ctx, cmd)
	return err
}

func (c *Client) DropSpace(ctx context.Context, name string) error {
	_, err := c.conn.Send(ctx, protocol.NewCommand(cmdDropSpace).AddString("name", name))
	return err
}

// ListSpaces returns the names of all spaces, sorted.
func (c *Client) ListSpaces(ctx context.Context) ([]string, error) {
	resp, err := c.conn.Send(ctx, protocol.NewCommand(cmdListSpaces))
	if err != nil {
		return nil, err
	}

	spaces, ok := resp.MapField("spaces")
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(spaces))
	for name := range spaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DescribeSpace returns the server's description of a space as an opaque
// field mapping (dimension, index type, metric, counts — whatever the
// server reports).
func (c *Client) DescribeSpace(ctx context.Context, name string) (map[string]protocol.Value, error) {
	resp, err := c.conn.Send(ctx, protocol.NewCommand(cmdDescribeSpace).AddString("name", name))
	if err != nil {
		return nil, err
	}
	if m, ok := resp.MapField("space"); ok {
		return m, nil
	}
	return resp.Payload, nil
}

// --- Key-value operations ---

func (c *Client) Put(ctx context.Context, key string, value protocol.Value, opts ...OpOption) error {
	o := applyOpOptions(opts)
	space, err := c.conn.resolveSpace(o.space)
	if err != nil {
		return err
	}

	cmd := protocol.NewCommand(cmdPut).
		AddString("space", space).
		AddString("key", key).
		Add("value", value)

	_, err = c.conn.Send(ctx, cmd)
	return err
}

// Get retrieves a value by key. found is false when the key does not
// exist; that is not an error.
func (c *Client) Get(ctx context.Context, key string, opts ...OpOption) (protocol.Value, bool, error) {
	o := applyOpOptions(opts)
	space, err := c.conn.resolveSpace(o.space)
	if err != nil {
		return protocol.Value{}, false, err
	}

	cmd := protocol.NewCommand(cmdGet).
		AddString("space", space).
		AddString("key", key)

	resp, err := c.conn.Send(ctx, cmd)
	if err != nil {
		return protocol.Value{}, false, err
	}

	value, ok := resp.Field("value")
	if !ok {
		return protocol.Value{}, false, nil
	}
	return value, true, nil
}

func (c *Client) Delete(ctx context.Context, key string, opts ...OpOption) error {
	o := applyOpOptions(opts)
	space, err := c.conn.resolveSpace(o.space)
	if err != nil {
		return err
	}

	cmd := protocol.NewCommand(cmdDelete).
		AddString("space", space).
		AddString("key", key)

	_, err = c.conn.Send(ctx, cmd)
	return err
}

// --- Vector operations ---

// SearchResult is one hit from SearchTopK or RangeSearch.
type SearchResult struct {
	ID       uint64
	Distance float64
}

func (c *Client) InsertVector(ctx context.Context, id uint64, vector []float64, opts ...OpOption) error {
	o := applyOpOptions(opts)
	space, err := c.conn.resolveSpace(o.space)
	if err != nil {
		return err
	}

	cmd := protocol.NewCommand(cmdInsertVector).
		AddString("space", space).
		AddInt("id", int64(id)).
		AddVector("vector", vector)

	_, err = c.conn.Send(ctx, cmd)
	return err
}

// SearchOptions configures SearchTopK. K defaults to 1.
type SearchOptions struct {
	K     int
	Space string
}

func (c *Client) SearchTopK(ctx context.Context, vector []float64, opts SearchOptions) ([]SearchResult, error) {
	if opts.K <= 0 {
		opts.K = DefaultSearchK
	}
	space, err := c.conn.resolveSpace(opts.Space)
	if err != nil {
		return nil, err
	}

	cmd := protocol.NewCommand(cmdSearchTopK).
		AddString("space", space).
		AddVector("vector", vector).
		AddInt("k", int64(opts.K))

	resp, err := c.conn.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(resp)
}

func (c *Client) RangeSearch(ctx context.Context, vector []float64, radius float64, opts ...OpOption) ([]SearchResult, error) {
	o := applyOpOptions(opts)
	space, err := c.conn.resolveSpace(o.space)
	if err != nil {
		return nil, err
	}

	cmd := protocol.NewCommand(cmdRangeSearch).
		AddString("space", space).
		AddVector("vector", vector).
		AddFloat("radius", radius)

	resp, err := c.conn.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(resp)
}

// parseSearchResults reads the parallel "ids" and "distances" arrays the
// server returns for search commands.
func parseSearchResults(resp *protocol.Response) ([]SearchResult, error) {
	ids, ok := resp.VectorField("ids")
	if !ok {
		return nil, nil
	}
	distances, _ := resp.VectorField("distances")
	if len(distances) != len(ids) {
		return nil, &protocol.ProtocolError{Message: "search response ids/distances length mismatch"}
	}

	results := make([]SearchResult, len(ids))
	for i := range ids {
		results[i] = SearchResult{ID: uint64(ids[i]), Distance: distances[i]}
	}
	return results, nil
}

// GetVector fetches one stored vector by id. found is false when the id
// does not exist.
func (c *Client) GetVector(ctx context.Context, id uint64, opts ...OpOption) ([]float64, bool, error) {
	o := applyOpOptions(opts)
	space, err := c.conn.resolveSpace(o.space)
	if err != nil {
		return nil, false, err
	}

	cmd := protocol.NewCommand(cmdGetVector).
		AddString("space", space).
		AddInt("id", int64(id))

	resp, err := c.conn.Send(ctx, cmd)
	if err != nil {
		return nil, false, err
	}

	vector, ok := resp.VectorField("vector")
	if !ok {
		return nil, false, nil
	}
	return vector, true, nil
}

// --- User administration ---

func (c *Client) CreateUser(ctx context.Context, username, password, role string) error {
	cmd := protocol.NewCommand(cmdCreateUser).
		AddString("user", username).
		AddString("password", password).
		AddString("role", role)

	_, err := c.conn.Send(ctx, cmd)
	return err
}

func (c *Client) DropUser(ctx context.Context, username string) error {
	_, err := c.conn.Send(ctx, protocol.NewCommand(cmdDropUser).AddString("user", username))
	return err
}

func (c *Client) ChangePassword(ctx context.Context, username, password string) error {
	cmd := protocol.NewCommand(cmdChangePassword).
		AddString("user", username).
		AddString("password", password)

	_, err := c.conn.Send(ctx, cmd)
	return err
}

// ListUsers returns a username → role mapping.
func (c *Client) ListUsers(ctx context.Context) (map[string]string, error) {
	resp, err := c.conn.Send(ctx, protocol.NewCommand(cmdListUsers))
	if err != nil {
		return nil, err
	}

	raw, ok := resp.MapField("users")
	if !ok {
		return map[string]string{}, nil
	}
	users := make(map[string]string, len(raw))
	for name, v := range raw {
		role, _ := v.AsString()
		users[name] = role
	}
	return users, nil
}
