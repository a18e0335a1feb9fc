package domain

// FilterSet is the boolean set of options a client attaches to a
// compile request (spec.md §3/§4.5). The zero value means "no
// filters requested".
type FilterSet struct {
	Binary      bool `json:"binary"`
	Link        bool `json:"link"`
	Execute     bool `json:"execute"`
	Intel       bool `json:"intel"`
	Demangle    bool `json:"demangle"`
	CommentOnly bool `json:"commentOnly"`
	Directives  bool `json:"directives"`
	Labels      bool `json:"labels"`
	OptOutput   bool `json:"optOutput"`
}

// Normalize enforces the FilterSet invariants against a chosen
// descriptor's capabilities, in place, and returns the receiver for
// chaining.
//
// execute ⇒ binary ∧ link: when Execute is set, Normalize turns Binary
// and Link on regardless of what the caller sent. Without Execute,
// Link is left as the caller gave it (see the open-question
// resolution in DESIGN.md — there is no implicit default for Link).
func (f *FilterSet) Normalize(caps Capabilities) *FilterSet {
	if f.Execute {
		f.Binary = true
		f.Link = true
	}
	if f.Binary && !caps.SupportsBinary {
		f.Binary = false
	}
	if f.Binary {
		// objdump output carries its own syntax; the intel flag on the
		// text-asm path has no effect once objdump takes over.
		f.Intel = false
	}
	return f
}
