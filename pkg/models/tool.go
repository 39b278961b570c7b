package models

import "encoding/json"

// ToolDescriptor is one entry in a tool catalog.
type ToolDescriptor struct {
	// Name uniquely identifies the tool within the catalog.
	Name string `json:"name"`

	// Description explains the tool for model consumption.
	Description string `json:"description,omitempty"`

	// Server identifies the origin server; audit only.
	Server string `json:"server,omitempty"`

	// Tags are optional labels used by capability filters.
	Tags []string `json:"tags,omitempty"`

	// Parameters is a JSON-schema fragment describing the tool input.
	Parameters json.RawMessage `json:"parameters,omitempty"`

	// Returns is an optional JSON-schema fragment describing the output.
	Returns json.RawMessage `json:"returns,omitempty"`
}

// Clone returns a deep copy of the descriptor.
func (d ToolDescriptor) Clone() ToolDescriptor {
	out := d
	out.Tags = append([]string(nil), d.Tags...)
	out.Parameters = append(json.RawMessage(nil), d.Parameters...)
	out.Returns = append(json.RawMessage(nil), d.Returns...)
	return out
}

// ToolCatalog is an ordered sequence of tool descriptors with O(1)
// lookup by name. The zero value is an empty catalog.
type ToolCatalog struct {
	Tools []ToolDescriptor `json:"tools"`

	byName map[string]int
}

// NewToolCatalog builds a catalog preserving the given order. Later
// duplicates replace earlier entries in the name index but keep their
// original position.
func NewToolCatalog(tools []ToolDescriptor) *ToolCatalog {
	c := &ToolCatalog{Tools: append([]ToolDescriptor(nil), tools...)}
	c.reindex()
	return c
}

func (c *ToolCatalog) reindex() {
	c.byName = make(map[string]int, len(c.Tools))
	for i, t := range c.Tools {
		c.byName[t.Name] = i
	}
}

// Len returns the number of tools in the catalog.
func (c *ToolCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Tools)
}

// Get returns the descriptor with the given name.
func (c *ToolCatalog) Get(name string) (ToolDescriptor, bool) {
	if c == nil {
		return ToolDescriptor{}, false
	}
	if c.byName == nil {
		c.reindex()
	}
	i, ok := c.byName[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return c.Tools[i], true
}

// Names enumerates tool names in catalog order.
func (c *ToolCatalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		names[i] = t.Name
	}
	return names
}

// Clone returns a deep copy of the catalog.
func (c *ToolCatalog) Clone() *ToolCatalog {
	if c == nil {
		return nil
	}
	tools := make([]ToolDescriptor, len(c.Tools))
	for i, t := range c.Tools {
		tools[i] = t.Clone()
	}
	return NewToolCatalog(tools)
}

// UnmarshalJSON rebuilds the name index after decoding.
func (c *ToolCatalog) UnmarshalJSON(data []byte) error {
	type alias ToolCatalog
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	c.Tools = a.Tools
	c.reindex()
	return nil
}
