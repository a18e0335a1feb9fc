package orchestrator

import (
	"context"
	"fmt"
)

// SourceStore backs GET /source/{handler}/{action}/..., spec.md §6's
// "pluggable source-snippet store (external)". handler names the
// backing provider (e.g. "github", "gist"), action the operation
// (e.g. "load", "save"), rest whatever path segments follow.
type SourceStore interface {
	Fetch(ctx context.Context, handler, action, rest string) (body []byte, contentType string, err error)
}

// noSourceStore is the default: no external snippet provider is
// configured, so every request fails with a clear diagnostic rather
// than a silent empty body.
type noSourceStore struct{}

func (noSourceStore) Fetch(_ context.Context, handler, _, _ string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("no source store configured for handler %q", handler)
}
