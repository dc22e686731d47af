// Package protocol implements the wire codec for the VexDB text protocol.
//
// Requests and responses are newline-delimited JSON objects, one message
// per line. JSON string escaping keeps embedded separators, control
// characters and non-ASCII text safe inside a single line, so every
// message is self-delimited by its trailing '\n'.
//
// Request:  {"cmd":"put","args":{"space":"s","key":"k","value":"v"}}
// Response: {"status":"ok","value":"v"}
//
//	{"status":"error","message":"unknown space"}
package protocol

import (
	"bufio"
	"bytes"

	json "github.com/goccy/go-json"
)

// Reserved response fields. Everything else is opaque payload.
const (
	fieldStatus  = "status"
	fieldMessage = "message"

	statusOK    = "ok"
	statusError = "error"
)

// EncodeCommand serializes a command into exactly one wire message,
// preserving argument order. The result includes the trailing newline.
func EncodeCommand(cmd *Command) ([]byte, error) {
	if cmd == nil || cmd.Name == "" {
		return nil, &ProtocolError{Message: "command has no name"}
	}

	var buf bytes.Buffer
	buf.WriteString(`{"cmd":`)

	name, err := json.Marshal(cmd.Name)
	if err != nil {
		return nil, &ProtocolError{Message: "cannot encode command name", Err: err}
	}
	buf.Write(name)

	buf.WriteString(`,"args":{`)
	for i, arg := range cmd.args {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(arg.Name)
		if err != nil {
			return nil, &ProtocolError{Message: "cannot encode argument name " + arg.Name, Err: err}
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := arg.Value.MarshalJSON()
		if err != nil {
			return nil, &ProtocolError{Message: "cannot encode argument " + arg.Name, Err: err}
		}
		buf.Write(val)
	}
	buf.WriteString("}}\n")

	return buf.Bytes(), nil
}

// ReadResponse reads exactly one message from r and parses it.
//
// I/O errors (EOF, timeouts, resets) are returned as-is so the connection
// layer can classify them; anything that was read but cannot be parsed is
// a *ProtocolError. A decode failure never escapes uninterpreted.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if len(line) > 0 {
			return nil, &ProtocolError{Message: "truncated response", Err: err}
		}
		return nil, err
	}
	return DecodeResponse(line)
}

// DecodeResponse parses one raw wire message into a Response.
func DecodeResponse(line []byte) (*Response, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return nil, &ProtocolError{Message: "empty response line"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, &ProtocolError{Message: "malformed response", Err: err}
	}

	rawStatus, ok := fields[fieldStatus]
	if !ok {
		return nil, &ProtocolError{Message: "response missing status field"}
	}
	var status string
	if err := json.Unmarshal(rawStatus, &status); err != nil {
		return nil, &ProtocolError{Message: "invalid status field", Err: err}
	}

	resp := &Response{}
	switch status {
	case statusOK:
		resp.OK = true
	case statusError:
	default:
		return nil, &ProtocolError{Message: "unknown status: " + status}
	}

	if rawMsg, ok := fields[fieldMessage]; ok {
		if err := json.Unmarshal(rawMsg, &resp.Message); err != nil {
			return nil, &ProtocolError{Message: "invalid message field", Err: err}
		}
	}

	for name, raw := range fields {
		if name == fieldStatus || name == fieldMessage {
			continue
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return nil, &ProtocolError{Message: "invalid payload field " + name, Err: err}
		}
		if resp.Payload == nil {
			resp.Payload = make(map[string]Value)
		}
		resp.Payload[name] = v
	}

	return resp, nil
}
