// Package fingerprint computes the content-addressed cache key for a
// compile request: a deterministic digest of the resolved compiler
// descriptor, source text, options, and filters (spec.md §3, §4.5).
//
// Grounded on ppb's internal/base/Fingerprint.go: a fixed-size digest
// array with hex string form, built by streaming a deterministic
// serialization through a pooled hasher.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/minio/sha256-simd"

	"compilebroker/domain"
)

// Digest is a compile request's content-addressed key.
type Digest [sha256.Size]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Valid reports whether the digest is non-zero.
func (d Digest) Valid() bool {
	for _, b := range d {
		if b != 0 {
			return true
		}
	}
	return false
}

func (d Digest) MarshalText() ([]byte, error) {
	buf := make([]byte, hex.EncodedLen(len(d)))
	hex.Encode(buf, d[:])
	return buf, nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	n, err := hex.Decode(d[:], text)
	if err != nil {
		return err
	}
	if n != sha256.Size {
		return fmt.Errorf("fingerprint: unexpected digest length %q", text)
	}
	return nil
}

// descriptorKey is the subset of a CompilerDescriptor that
// participates in the fingerprint: transient fields discovered at
// probe time (Version, VersionProbe/Regex) are excluded so that a
// version-string change alone does not invalidate the cache, per
// spec.md §3's fingerprint definition.
type descriptorKey struct {
	ID              string
	Exe             string
	Remote          string
	ParserKind      domain.ParserKind
	DefaultOptions  []string
	IntelSyntaxFlag string
	OptRecordFlag   string
}

type requestKey struct {
	Descriptor descriptorKey
	Source     string
	Options    []string
	Filters    domain.FilterSet
	Backend    domain.BackendOptions
}

// Compute deterministically digests a compile request. Two calls with
// equal arguments always yield equal digests, including field order,
// which is why requestKey's shape (not the raw request struct field
// order coming off the wire) is what gets marshaled.
func Compute(desc *domain.CompilerDescriptor, req *domain.CompileRequest) (Digest, error) {
	key := requestKey{
		Descriptor: descriptorKey{
			ID:              desc.ID,
			Exe:             desc.Exe,
			Remote:          desc.Remote,
			ParserKind:      desc.ParserKind,
			DefaultOptions:  desc.DefaultOptions,
			IntelSyntaxFlag: desc.IntelSyntaxFlag,
			OptRecordFlag:   desc.OptRecordFlag,
		},
		Source:  req.Source,
		Options: req.Options,
		Filters: req.Filters,
		Backend: req.BackendOptions,
	}

	// json.Marshal on a struct is field-order-stable (struct field
	// declaration order), giving a deterministic byte stream without
	// hand-rolling a serializer.
	payload, err := json.Marshal(&key)
	if err != nil {
		return Digest{}, fmt.Errorf("fingerprint: encode request: %w", err)
	}

	return Digest(sha256.Sum256(payload)), nil
}
