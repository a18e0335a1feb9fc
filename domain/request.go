package domain

// BackendOptions are the driver's opt-in flags, distinct from
// FilterSet: they shape what extra data the pipeline produces, not
// how the primary asm/binary output is filtered (spec.md §3, §4.5).
type BackendOptions struct {
	ProduceAst     bool `json:"produceAst,omitempty"`
	ProduceOptInfo bool `json:"produceOptInfo,omitempty"`
}

// CompileRequest is the decoded form of POST /api/compiler/{id}/compile
// (and the legacy /compile alias), spec.md §3/§6.
type CompileRequest struct {
	Source         string         `json:"source"`
	Options        []string       `json:"options"`
	BackendOptions BackendOptions `json:"backendOptions,omitempty"`
	Filters        FilterSet      `json:"filters"`
	ExecuteArgs    *ExecuteArgs   `json:"executeParameters,omitempty"`

	// BypassCache forces a fresh compile even if a matching fingerprint
	// is cached, used by tests and cache-debugging clients.
	BypassCache bool `json:"bypassCache,omitempty"`
}

// ExecuteArgs carries the optional post-compile run request.
type ExecuteArgs struct {
	Args  []string `json:"args,omitempty"`
	Stdin string   `json:"stdin,omitempty"`
}
