package protocol

// Response is one parsed server reply, tagged success or failure by the
// reserved "status" field. The payload shape is opaque to the transport:
// whatever non-reserved fields the server returned are kept as Values.
type Response struct {
	// OK is true for "status":"ok" responses.
	OK bool

	// Message is the error message on failure. Servers may also attach a
	// human-readable message to successful responses; it lands here too.
	Message string

	// Payload holds every non-reserved response field. Missing optional
	// fields are simply absent, never an error.
	Payload map[string]Value
}

// Field returns a raw payload value.
func (r *Response) Field(name string) (Value, bool) {
	v, ok := r.Payload[name]
	return v, ok
}

// StringField returns a payload field as a string. ok is false when the
// field is absent or has a different kind.
func (r *Response) StringField(name string) (string, bool) {
	v, ok := r.Payload[name]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// IntField returns a payload field as an int64.
func (r *Response) IntField(name string) (int64, bool) {
	v, ok := r.Payload[name]
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// FloatField returns a payload field as a float64, widening integers.
func (r *Response) FloatField(name string) (float64, bool) {
	v, ok := r.Payload[name]
	if !ok {
		return 0, false
	}
	return v.AsFloat()
}

// BoolField returns a payload field as a bool.
func (r *Response) BoolField(name string) (bool, bool) {
	v, ok := r.Payload[name]
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// VectorField returns a payload field as a numeric vector.
func (r *Response) VectorField(name string) ([]float64, bool) {
	v, ok := r.Payload[name]
	if !ok {
		return nil, false
	}
	return v.AsVector()
}

// MapField returns a payload field as a nested mapping.
func (r *Response) MapField(name string) (map[string]Value, bool) {
	v, ok := r.Payload[name]
	if !ok {
		return nil, false
	}
	return v.AsMap()
}
