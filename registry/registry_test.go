package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compilebroker/config"
	"compilebroker/domain"
)

func TestResolveLocalUsesOverride(t *testing.T) {
	cfg := &config.RegistryConfig{
		Compiler: map[string]*config.CompilerConfig{
			"gcc-local": {Exe: "/usr/bin/gcc", Name: "GCC (local)"},
		},
	}
	r := newResolver(cfg)
	out := r.resolveLocal("gcc-local", rootGetter{cfg: cfg})
	require.Len(t, out, 1)
	assert.Equal(t, "/usr/bin/gcc", out[0].Exe)
	assert.Equal(t, "GCC (local)", out[0].Name)
}

func TestResolveLocalBareTokenFallsBackToExeName(t *testing.T) {
	cfg := &config.RegistryConfig{}
	r := newResolver(cfg)
	out := r.resolveLocal("clang", rootGetter{cfg: cfg})
	require.Len(t, out, 1)
	assert.Equal(t, "clang", out[0].Exe)
}

func TestResolveGroupExpandsWithGroupDefaults(t *testing.T) {
	cfg := &config.RegistryConfig{
		Group: map[string]*config.GroupConfig{
			"gccs": {
				Compilers: "gcc12:gcc13",
				Defaults:  &config.CompilerConfig{Name: "GCC"},
			},
		},
	}
	r := newResolver(cfg)
	out := r.resolveSeedList(context.Background(), "&gccs", rootGetter{cfg: cfg})
	require.Len(t, out, 2)
	for _, d := range out {
		assert.Equal(t, "gccs", d.Group)
	}
}

func TestFetchPeerRecordsRemoteAndClearsExe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/api/compilers", req.URL.Path)
		_ = json.NewEncoder(w).Encode([]domain.Public{
			{ID: "gcc", Name: "GCC", Version: "13.2"},
		})
	}))
	defer srv.Close()

	cfg := &config.RegistryConfig{
		ProxyRetries:    1,
		ProxyRetryDelay: 10 * time.Millisecond,
		ProxyTimeout:    time.Second,
	}
	client := newPeerClient(cfg)
	out := client.fetchPeer(context.Background(), srv.Listener.Addr().String())

	require.Len(t, out, 1)
	assert.Equal(t, "gcc", out[0].ID)
	assert.Empty(t, out[0].Exe)
	assert.Equal(t, srv.Listener.Addr().String(), out[0].Remote)
}

func TestFetchPeerRetriesAndYieldsEmptyOnExhaustion(t *testing.T) {
	cfg := &config.RegistryConfig{
		ProxyRetries:    2,
		ProxyRetryDelay: 5 * time.Millisecond,
		ProxyTimeout:    50 * time.Millisecond,
	}
	client := newPeerClient(cfg)
	out := client.fetchPeer(context.Background(), "127.0.0.1:1") // nothing listens here
	assert.Empty(t, out)
}

func TestRescanSkipsRepublishOnUnchangedDigest(t *testing.T) {
	cfg := &config.RegistryConfig{
		Compilers: "stub",
		Compiler: map[string]*config.CompilerConfig{
			"stub": {Exe: "/bin/true", Name: "Stub"},
		},
		RescanInterval: time.Hour,
	}
	// Substitute a compiler with no probe requirements by giving it no
	// VersionProbe/VersionRegex so probeCompiler's "--version" call
	// against /bin/true succeeds trivially (exit 0, empty output).
	r := New(cfg)
	r.Rescan(context.Background())
	firstDigest := r.lastDigest
	require.NotEmpty(t, r.List())

	r.Rescan(context.Background())
	assert.Equal(t, firstDigest, r.lastDigest)
}
