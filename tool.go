package utcp

// Schema is a JSON-schema-shaped input/output descriptor. The kernel never
// validates against it; it's carried through for callers (and, in
// codemode, rendered into LLM prompts).
type Schema struct {
	Type        string         `json:"type,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Required    []string       `json:"required,omitempty"`
	Items       map[string]any `json:"items,omitempty"`
	Enum        []any          `json:"enum,omitempty"`
	Minimum     *float64       `json:"minimum,omitempty"`
	Maximum     *float64       `json:"maximum,omitempty"`
	Format      string         `json:"format,omitempty"`
	Description string         `json:"description,omitempty"`
	Title       string         `json:"title,omitempty"`
}

// ToolHandler is invoked by the text/in-memory transport, and by codemode's
// own synthetic tool, to execute a tool body directly in-process.
type ToolHandler func(ctx map[string]any, inputs map[string]any) (map[string]any, error)

// Tool is the canonical tool record. Name carries the
// "<provider_name>.<bare_name>" invariant once registered through the
// kernel; plugins return bare names from discovery and the kernel rewrites
// them.
type Tool struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Inputs              Schema   `json:"inputs"`
	Outputs             Schema   `json:"outputs"`
	Tags                []string `json:"tags,omitempty"`
	AverageResponseSize *int     `json:"average_response_size,omitempty"`

	// Handler is set only for tools backed by an in-process body (text/cli
	// discovery results never carry one; codemode's own tool does).
	Handler ToolHandler `json:"-"`
}
