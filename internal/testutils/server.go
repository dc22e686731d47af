// Package testutils provides an in-process fake VexDB server speaking the
// real wire protocol, for exercising the client, connection and pool
// layers without a running database.
package testutils

import (
	"bufio"
	"math"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
)

const (
	// DefaultUser and DefaultPassword are the credentials the server
	// accepts out of the box.
	DefaultUser     = "admin"
	DefaultPassword = "secret"
	defaultRole     = "admin"
)

type space struct {
	dimension int
	indexType string
	metric    string
	kv        map[string]json.RawMessage
	vectors   map[int64][]float64
}

// Server is a fake VexDB node listening on a loopback port. It implements
// authentication, space management, key-value storage and brute-force
// vector search over the newline-delimited JSON protocol.
type Server struct {
	listener net.Listener

	mu     sync.Mutex
	spaces map[string]*space
	users  map[string]string // user -> password
	roles  map[string]string // user -> role

	activeConns atomic.Int64
	totalConns  atomic.Int64
}

// Start runs a fake server on a random loopback port and registers
// cleanup with t.
func Start(t testing.TB) *Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start fake server: %v", err)
	}

	s := &Server{
		listener: listener,
		spaces:   make(map[string]*space),
		users:    map[string]string{DefaultUser: DefaultPassword},
		roles:    map[string]string{DefaultUser: defaultRole},
	}
	t.Cleanup(s.Close)

	go s.acceptLoop()
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// ActiveConns returns the number of currently open client connections.
func (s *Server) ActiveConns() int {
	return int(s.activeConns.Load())
}

// TotalConns returns the number of connections accepted so far.
func (s *Server) TotalConns() int {
	return int(s.totalConns.Load())
}

// Close stops the listener. Open connections terminate as their next read
// fails.
func (s *Server) Close() {
	s.listener.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.totalConns.Add(1)
		s.activeConns.Add(1)
		go s.serve(conn)
	}
}

type request struct {
	Cmd  string                     `json:"cmd"`
	Args map[string]json.RawMessage `json:"args"`
}

func (s *Server) serve(conn net.Conn) {
	defer func() {
		conn.Close()
		s.activeConns.Add(-1)
	}()

	authenticated := false
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeError(conn, "malformed request")
			return
		}

		if !authenticated && req.Cmd != "auth" && req.Cmd != "ping" {
			writeError(conn, "not authenticated")
			continue
		}

		switch req.Cmd {
		case "auth":
			user := argString(req, "user")
			password := argString(req, "password")
			s.mu.Lock()
			stored, ok := s.users[user]
			role := s.roles[user]
			s.mu.Unlock()
			if !ok || stored != password {
				writeError(conn, "invalid credentials")
				continue
			}
			authenticated = true
			writeOK(conn, map[string]any{"role": role})

		case "ping":
			writeOK(conn, nil)

		default:
			s.handleCommand(conn, &req)
		}
	}
}

func (s *Server) handleCommand(conn net.Conn, req *request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Cmd {
	case "create_space":
		name := argString(*req, "name")
		if _, exists := s.spaces[name]; exists {
			writeError(conn, "space already exists: "+name)
			return
		}
		s.spaces[name] = &space{
			dimension: int(argInt(*req, "dimension")),
			indexType: argString(*req, "index_type"),
			metric:    argString(*req, "metric"),
			kv:        make(map[string]json.RawMessage),
			vectors:   make(map[int64][]float64),
		}
		writeOK(conn, nil)

	case "drop_space":
		name := argString(*req, "name")
		if _, exists := s.spaces[name]; !exists {
			writeError(conn, "unknown space: "+name)
			return
		}
		delete(s.spaces, name)
		writeOK(conn, nil)

	case "list_spaces":
		spaces := make(map[string]any, len(s.spaces))
		for name, sp := range s.spaces {
			spaces[name] = map[string]any{"dimension": sp.dimension}
		}
		writeOK(conn, map[string]any{"spaces": spaces})

	case "describe_space":
		sp, ok := s.spaces[argString(*req, "name")]
		if !ok {
			writeError(conn, "unknown space: "+argString(*req, "name"))
			return
		}
		writeOK(conn, map[string]any{"space": map[string]any{
			"dimension":  sp.dimension,
			"index_type": sp.indexType,
			"metric":     sp.metric,
			"keys":       len(sp.kv),
			"vectors":    len(sp.vectors),
		}})

	case "use_space":
		name := argString(*req, "name")
		if _, ok := s.spaces[name]; !ok {
			writeError(conn, "unknown space: "+name)
			return
		}
		writeOK(conn, nil)

	case "put":
		sp, ok := s.requireSpace(conn, *req)
		if !ok {
			return
		}
		sp.kv[argString(*req, "key")] = req.Args["value"]
		writeOK(conn, nil)

	case "get":
		sp, ok := s.requireSpace(conn, *req)
		if !ok {
			return
		}
		value, found := sp.kv[argString(*req, "key")]
		if !found {
			writeOK(conn, nil)
			return
		}
		writeOK(conn, map[string]any{"value": value})

	case "delete":
		sp, ok := s.requireSpace(conn, *req)
		if !ok {
			return
		}
		key := argString(*req, "key")
		_, found := sp.kv[key]
		delete(sp.kv, key)
		writeOK(conn, map[string]any{"deleted": found})

	case "insert_vector":
		sp, ok := s.requireSpace(conn, *req)
		if !ok {
			return
		}
		vec := argVector(*req, "vector")
		if sp.dimension > 0 && len(vec) != sp.dimension {
			writeError(conn, "dimension mismatch")
			return
		}
		sp.vectors[argInt(*req, "id")] = vec
		writeOK(conn, nil)

	case "get_vector":
		sp, ok := s.requireSpace(conn, *req)
		if !ok {
			return
		}
		vec, found := sp.vectors[argInt(*req, "id")]
		if !found {
			writeOK(conn, nil)
			return
		}
		writeOK(conn, map[string]any{"vector": vec})

	case "search_topk":
		sp, ok := s.requireSpace(conn, *req)
		if !ok {
			return
		}
		hits := bruteForceSearch(sp, argVector(*req, "vector"))
		k := int(argInt(*req, "k"))
		if k > 0 && len(hits) > k {
			hits = hits[:k]
		}
		writeHits(conn, hits)

	case "range_search":
		sp, ok := s.requireSpace(conn, *req)
		if !ok {
			return
		}
		radius := argFloat(*req, "radius")
		all := bruteForceSearch(sp, argVector(*req, "vector"))
		hits := all[:0]
		for _, h := range all {
			if h.distance <= radius {
				hits = append(hits, h)
			}
		}
		writeHits(conn, hits)

	case "create_user":
		user := argString(*req, "user")
		if _, exists := s.users[user]; exists {
			writeError(conn, "user already exists: "+user)
			return
		}
		s.users[user] = argString(*req, "password")
		s.roles[user] = argString(*req, "role")
		writeOK(conn, nil)

	case "drop_user":
		user := argString(*req, "user")
		if _, exists := s.users[user]; !exists {
			writeError(conn, "unknown user: "+user)
			return
		}
		delete(s.users, user)
		delete(s.roles, user)
		writeOK(conn, nil)

	case "change_password":
		user := argString(*req, "user")
		if _, exists := s.users[user]; !exists {
			writeError(conn, "unknown user: "+user)
			return
		}
		s.users[user] = argString(*req, "password")
		writeOK(conn, nil)

	case "list_users":
		users := make(map[string]any, len(s.roles))
		for user, role := range s.roles {
			users[user] = role
		}
		writeOK(conn, map[string]any{"users": users})

	default:
		writeError(conn, "unknown command: "+req.Cmd)
	}
}

func (s *Server) requireSpace(conn net.Conn, req request) (*space, bool) {
	name := argString(req, "space")
	sp, ok := s.spaces[name]
	if !ok {
		writeError(conn, "unknown space: "+name)
		return nil, false
	}
	return sp, true
}

type hit struct {
	id       int64
	distance float64
}

func bruteForceSearch(sp *space, query []float64) []hit {
	hits := make([]hit, 0, len(sp.vectors))
	for id, vec := range sp.vectors {
		if len(vec) != len(query) {
			continue
		}
		var sum float64
		for i := range vec {
			d := vec[i] - query[i]
			sum += d * d
		}
		hits = append(hits, hit{id: id, distance: math.Sqrt(sum)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].id < hits[j].id
	})
	return hits
}

func writeHits(conn net.Conn, hits []hit) {
	ids := make([]float64, len(hits))
	distances := make([]float64, len(hits))
	for i, h := range hits {
		ids[i] = float64(h.id)
		distances[i] = h.distance
	}
	writeOK(conn, map[string]any{"ids": ids, "distances": distances})
}

func writeOK(conn net.Conn, payload map[string]any) {
	fields := map[string]any{"status": "ok"}
	for k, v := range payload {
		fields[k] = v
	}
	writeLine(conn, fields)
}

func writeError(conn net.Conn, message string) {
	writeLine(conn, map[string]any{"status": "error", "message": message})
}

func writeLine(conn net.Conn, fields map[string]any) {
	data, err := json.Marshal(fields)
	if err != nil {
		return
	}
	conn.Write(append(data, '\n'))
}

func argString(req request, name string) string {
	var s string
	json.Unmarshal(req.Args[name], &s)
	return s
}

func argInt(req request, name string) int64 {
	var i int64
	json.Unmarshal(req.Args[name], &i)
	return i
}

func argFloat(req request, name string) float64 {
	var f float64
	json.Unmarshal(req.Args[name], &f)
	return f
}

func argVector(req request, name string) []float64 {
	var v []float64
	json.Unmarshal(req.Args[name], &v)
	return v
}
