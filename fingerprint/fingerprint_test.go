package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compilebroker/domain"
)

func sampleDescriptor() *domain.CompilerDescriptor {
	return &domain.CompilerDescriptor{ID: "gcc-local", Exe: "/usr/bin/gcc"}
}

func sampleRequest() *domain.CompileRequest {
	return &domain.CompileRequest{
		Source:  "int f(){return 42;}",
		Options: []string{"-O2"},
		Filters: domain.FilterSet{Intel: true, Labels: true},
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	d1, err := Compute(sampleDescriptor(), sampleRequest())
	require.NoError(t, err)
	d2, err := Compute(sampleDescriptor(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.True(t, d1.Valid())
}

func TestComputeDiffersOnSourceChange(t *testing.T) {
	req := sampleRequest()
	d1, err := Compute(sampleDescriptor(), req)
	require.NoError(t, err)

	req.Source = "int f(){return 43;}"
	d2, err := Compute(sampleDescriptor(), req)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestComputeIgnoresDiscoveredVersion(t *testing.T) {
	d1, err := Compute(sampleDescriptor(), sampleRequest())
	require.NoError(t, err)

	desc := sampleDescriptor()
	desc.Version = "13.2.0"
	d2, err := Compute(desc, sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
}

func TestDigestTextRoundTrip(t *testing.T) {
	d1, err := Compute(sampleDescriptor(), sampleRequest())
	require.NoError(t, err)

	text, err := d1.MarshalText()
	require.NoError(t, err)

	var d2 Digest
	require.NoError(t, d2.UnmarshalText(text))
	assert.Equal(t, d1, d2)
}
