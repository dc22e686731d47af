package protocol

// Arg is a single named command argument. Argument order is significant
// on the wire, so arguments are kept as an ordered list rather than a map.
type Arg struct {
	Name  string
	Value Value
}

// Command is one request to the server: a command name plus an ordered
// argument mapping. Commands are immutable once encoded; the Add* methods
// are for construction only.
//
// Usage:
//
//	cmd := NewCommand("search_topk").
//		AddString("space", "products").
//		AddVector("vector", query).
//		AddInt("k", 10)
type Command struct {
	Name string
	args []Arg
}

// NewCommand creates a command with the given name and no arguments.
func NewCommand(name string) *Command {
	return &Command{Name: name}
}

// Add appends a named argument. Duplicate names are kept as-is; the server
// defines their meaning.
func (c *Command) Add(name string, v Value) *Command {
	c.args = append(c.args, Arg{Name: name, Value: v})
	return c
}

func (c *Command) AddString(name, s string) *Command     { return c.Add(name, String(s)) }
func (c *Command) AddInt(name string, i int64) *Command  { return c.Add(name, Int(i)) }
func (c *Command) AddFloat(name string, f float64) *Command {
	return c.Add(name, Float(f))
}
func (c *Command) AddBool(name string, b bool) *Command { return c.Add(name, Bool(b)) }
func (c *Command) AddVector(name string, v []float64) *Command {
	return c.Add(name, Vector(v))
}

// Args returns the arguments in insertion order.
func (c *Command) Args() []Arg { return c.args }

// Arg returns the first argument with the given name.
func (c *Command) Arg(name string) (Value, bool) {
	for _, a := range c.args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return Value{}, false
}
