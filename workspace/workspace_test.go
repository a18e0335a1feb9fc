package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compilebroker/config"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	pool, err := New(&config.WorkspaceConfig{Root: t.TempDir()})
	require.NoError(t, err)
	return pool
}

func TestAcquireCreatesUniqueDirectories(t *testing.T) {
	pool := newTestPool(t)

	h1, err := pool.Acquire()
	require.NoError(t, err)
	h2, err := pool.Acquire()
	require.NoError(t, err)

	assert.NotEqual(t, h1.Dir(), h2.Dir())
	assert.DirExists(t, h1.Dir())
	assert.DirExists(t, h2.Dir())
}

func TestSweepRemovesUnreferencedWorkspaces(t *testing.T) {
	pool := newTestPool(t)

	h, err := pool.Acquire()
	require.NoError(t, err)
	dir := h.Dir()

	h.Release()
	pool.Sweep()

	assert.NoDirExists(t, dir)
}

func TestSweepSkipsRetainedWorkspaces(t *testing.T) {
	pool := newTestPool(t)

	h, err := pool.Acquire()
	require.NoError(t, err)
	h.Retain() // refcount now 2 (Acquire's implicit 1 + this)
	h.Release()

	pool.Sweep()
	assert.DirExists(t, h.Dir())

	h.Release()
	pool.Sweep()
	assert.NoDirExists(t, h.Dir())
}

func TestAcquireDirectoryIsWritable(t *testing.T) {
	pool := newTestPool(t)
	h, err := pool.Acquire()
	require.NoError(t, err)

	path := filepath.Join(h.Dir(), "main.c")
	require.NoError(t, os.WriteFile(path, []byte("int main(){return 0;}"), 0644))
	assert.FileExists(t, path)
}
