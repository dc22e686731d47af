package vexdb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexdb/vexdb-go/protocol"
)

func TestShouldCloseConnection(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		close bool
	}{
		{"nil", nil, false},
		{"connection error", &ConnectionError{Op: "read", Addr: "x", Err: errors.New("reset")}, true},
		{"protocol error", &protocol.ProtocolError{Message: "bad frame"}, true},
		{"authentication error", &AuthenticationError{Addr: "x", Message: "denied"}, false},
		{"query error", &QueryError{Command: "get", Message: "unknown space"}, false},
		{"wrapped connection error", fmt.Errorf("op failed: %w", &ConnectionError{Op: "dial", Addr: "x", Err: errors.New("refused")}), true},
		{"wrapped query error", fmt.Errorf("op failed: %w", &QueryError{Message: "nope"}), false},
		{"unknown error", errors.New("mystery"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.close, ShouldCloseConnection(tc.err))
		})
	}
}

func TestConnectionErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ConnectionError{Op: "dial", Addr: "localhost:7801", Err: cause}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "dial")
	require.Contains(t, err.Error(), "localhost:7801")
}

func TestQueryErrorMessages(t *testing.T) {
	withCmd := &QueryError{Command: "put", Message: "unknown space"}
	require.Contains(t, withCmd.Error(), "put")

	noCmd := &QueryError{Message: "no space selected"}
	require.Contains(t, noCmd.Error(), "no space selected")
}
