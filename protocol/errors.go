package protocol

// ProtocolError indicates that a server response could not be decoded:
// the payload was malformed, truncated, or structurally invalid.
//
// The connection that produced it must be considered corrupted, since the
// read position inside the byte stream is undefined after a failed parse.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "protocol error: " + e.Message + ": " + e.Err.Error()
	}
	return "protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ShouldCloseConnection reports that the connection is unusable after a
// decode failure.
func (e *ProtocolError) ShouldCloseConnection() bool { return true }
