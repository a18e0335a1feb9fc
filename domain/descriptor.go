// Package domain holds the compile broker's core data model (spec.md
// §3): compiler descriptors, requests, filter sets, and results.
package domain

// ParserKind selects how a descriptor's argument vector is assembled
// and how its help output is scraped for capability discovery.
type ParserKind string

const (
	ParserClangLike ParserKind = "clang-like"
	ParserGCCLike   ParserKind = "gcc-like"
)

// PostProcessStage is one stage of a per-compiler shell-free
// post-processing pipeline (design note in spec.md §9: streamed
// in-process instead of a `bash -c "a | b"` string).
type PostProcessStage struct {
	Command string
	Args    []string
}

// Capabilities are the descriptor's supported-feature flags (spec.md
// §3).
type Capabilities struct {
	SupportsBinary    bool
	SupportsExecute   bool
	SupportsIntelAsm  bool
	NeedsMultiarch    bool
	SupportsOptRecord bool
	SupportsObjdump   bool
}

// CompilerDescriptor identifies one compile backend: either a local
// executable or a remote peer broker. Exactly one of Exe or Remote is
// populated. Descriptors are created by the Registry and never
// mutated in place after publication — replacement is always an
// atomic swap of the whole set.
type CompilerDescriptor struct {
	ID   string
	Name string

	// Exactly one of these two is set.
	Exe    string
	Remote string

	ParserKind      ParserKind
	DefaultOptions  []string
	VersionProbe    string
	VersionRegex    string
	Version         string
	DemanglerPath   string
	ObjdumperPath   string
	IntelSyntaxFlag string
	OptRecordFlag   string
	PostProcess     []PostProcessStage

	Capabilities Capabilities

	// Group is the seed-list group this descriptor was expanded from,
	// if any ("" for descriptors resolved directly).
	Group string
}

// IsRemote reports whether the descriptor should be proxied rather
// than compiled locally.
func (d *CompilerDescriptor) IsRemote() bool {
	return d.Remote != ""
}

// Public is the shape served by GET /api/compilers: no local
// filesystem paths, no remote endpoint, no probe internals.
type Public struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Lang         string       `json:"lang,omitempty"`
	CompilerType string       `json:"compilerType,omitempty"`
	Version      string       `json:"version,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// ToPublic strips implementation detail before the descriptor is
// exposed to clients.
func (d *CompilerDescriptor) ToPublic() Public {
	return Public{
		ID:           d.ID,
		Name:         d.Name,
		CompilerType: string(d.ParserKind),
		Version:      d.Version,
		Capabilities: d.Capabilities,
	}
}
