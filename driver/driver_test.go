package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compilebroker/config"
	"compilebroker/domain"
	"compilebroker/resultcache"
	"compilebroker/workspace"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()

	wsCfg := &config.WorkspaceConfig{Root: t.TempDir(), CleanupInterval: time.Minute}
	pool, err := workspace.New(wsCfg)
	require.NoError(t, err)

	cacheCfg := &config.CacheConfig{}
	require.NoError(t, cacheCfg.SizeBound.FromStr("16m"))
	require.NoError(t, cacheCfg.CompressAbove.FromStr("1m"))
	cache := resultcache.New(cacheCfg)

	compileCfg := &config.CompileConfig{
		TimeoutMs:        2000,
		LaneWidth:        2,
		ForbiddenOptions: []string{"-fplugin=evil"},
	}
	require.NoError(t, compileCfg.MaxErrorOutput.FromStr("1m"))
	require.NoError(t, compileCfg.MaxAsmSize.FromStr("8m"))

	sandboxCfg := &config.SandboxConfig{TimeoutMs: 2000}
	require.NoError(t, sandboxCfg.MaxOutput.FromStr("1m"))

	return New(compileCfg, sandboxCfg, pool, cache)
}

// writeFakeCompiler installs a shell script that stands in for a real
// compiler: it finds the -o argument and writes body to it, ignoring
// everything else, and appends one line to counterPath per invocation.
func writeFakeCompiler(t *testing.T, counterPath, body string) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
echo x >> %q
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
cat > "$out" <<'EOF'
%s
EOF
chmod +x "$out"
exit 0
`, counterPath, body)

	path := filepath.Join(t.TempDir(), "fakecc")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCompileProducesCleanedAsm(t *testing.T) {
	d := newTestDriver(t)
	counter := filepath.Join(t.TempDir(), "counter")
	exe := writeFakeCompiler(t, counter, "f:\n  movl $42, %eax\n  ret")

	desc := &domain.CompilerDescriptor{ID: "fakecc", Exe: exe, ParserKind: domain.ParserGCCLike}
	req := &domain.CompileRequest{Source: "int f(){return 42;}"}

	result, err := d.Compile(context.Background(), desc, req)
	require.NoError(t, err)
	require.Equal(t, 0, result.Status)
	require.True(t, result.OkToCache)

	var texts []string
	for _, l := range result.Asm {
		texts = append(texts, strings.TrimSpace(l.Text))
	}
	assert.Contains(t, texts, "f:")
	assert.Contains(t, texts, "ret")
}

func TestCompileCachesAcrossIdenticalRequests(t *testing.T) {
	d := newTestDriver(t)
	counter := filepath.Join(t.TempDir(), "counter")
	exe := writeFakeCompiler(t, counter, "f:\n  ret")

	desc := &domain.CompilerDescriptor{ID: "fakecc", Exe: exe, ParserKind: domain.ParserGCCLike}
	req := &domain.CompileRequest{Source: "int f(){return 0;}"}

	_, err := d.Compile(context.Background(), desc, req)
	require.NoError(t, err)
	_, err = d.Compile(context.Background(), desc, req)
	require.NoError(t, err)

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 1, "second identical request should hit the cache, not recompile")
}

func TestCompileRejectsForbiddenOption(t *testing.T) {
	d := newTestDriver(t)
	desc := &domain.CompilerDescriptor{ID: "fakecc", Exe: "/bin/true", ParserKind: domain.ParserGCCLike}
	req := &domain.CompileRequest{Source: "int f(){return 0;}", Options: []string{"-fplugin=evil"}}

	_, err := d.Compile(context.Background(), desc, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-fplugin=evil")
}

func TestCompileRejectsAbsoluteInclude(t *testing.T) {
	d := newTestDriver(t)
	desc := &domain.CompilerDescriptor{ID: "fakecc", Exe: "/bin/true", ParserKind: domain.ParserGCCLike}
	req := &domain.CompileRequest{Source: "#include \"/etc/passwd\"\nint f(){return 0;}"}

	_, err := d.Compile(context.Background(), desc, req)
	require.Error(t, err)
	assert.Equal(t, "<stdin>:1:1: no absolute or relative includes please", err.Error())
}

func TestCompileRejectsRemoteDescriptor(t *testing.T) {
	d := newTestDriver(t)
	desc := &domain.CompilerDescriptor{ID: "peer-gcc", Remote: "peer@10240"}
	req := &domain.CompileRequest{Source: "int f(){return 0;}"}

	_, err := d.Compile(context.Background(), desc, req)
	require.Error(t, err)
}

func TestCompileInjectsStubWhenBinaryRequestedWithoutMatch(t *testing.T) {
	d := newTestDriver(t)
	d.cfg.StubText = "int main(){return f();}"
	d.stubRe = regexp.MustCompile(`int\s+main\s*\(`)

	counter := filepath.Join(t.TempDir(), "counter")
	captured := filepath.Join(t.TempDir(), "captured.c")
	exe := writeFakeCompilerCapturingInput(t, counter, captured, "f:\n  ret")

	desc := &domain.CompilerDescriptor{
		ID: "fakecc", Exe: exe, ParserKind: domain.ParserGCCLike,
		Capabilities: domain.Capabilities{SupportsBinary: true},
	}
	req := &domain.CompileRequest{Source: "int f(){return 0;}", Filters: domain.FilterSet{Binary: true}}

	_, err := d.Compile(context.Background(), desc, req)
	require.NoError(t, err)

	data, err := os.ReadFile(captured)
	require.NoError(t, err)
	assert.Contains(t, string(data), d.cfg.StubText)
}

// TestCompileRunsSandboxExecuteWhenFilterSet covers spec.md §8's
// binary+execute scenario: a request that sets filters.execute alone,
// with no executeParameters envelope at all, must still reach the
// sandbox. ExecuteArgs stays nil on the wire; the driver defaults it
// rather than skipping the run.
func TestCompileRunsSandboxExecuteWhenFilterSet(t *testing.T) {
	d := newTestDriver(t)
	counter := filepath.Join(t.TempDir(), "counter")
	exe := writeFakeCompiler(t, counter, "#!/bin/sh\necho hi")

	desc := &domain.CompilerDescriptor{
		ID: "fakecc", Exe: exe, ParserKind: domain.ParserGCCLike,
		Capabilities: domain.Capabilities{SupportsBinary: true},
	}
	req := &domain.CompileRequest{
		Source:  "int main(){return 0;}",
		Filters: domain.FilterSet{Binary: true, Link: true, Execute: true},
	}

	result, err := d.Compile(context.Background(), desc, req)
	require.NoError(t, err)
	require.NotNil(t, result.ExecResult)
	assert.Equal(t, 0, result.ExecResult.Status)

	var texts []string
	for _, l := range result.ExecResult.Stdout {
		texts = append(texts, l.Text)
	}
	assert.Contains(t, texts, "hi")
}

// TestCompileSurfacesCompilationFailedSentinel covers spec.md §7 error
// kind 2: an ordinary nonzero compiler exit (a syntax error, not a
// timeout or truncation) is delivered as a normal result whose asm is
// the literal sentinel, not an HTTP error and not an empty asm left
// over from an objdump/postprocess fallback that never found an
// output file.
func TestCompileSurfacesCompilationFailedSentinel(t *testing.T) {
	d := newTestDriver(t)
	exe := writeFailingCompiler(t, "error: expected ';' before '}' token")

	desc := &domain.CompilerDescriptor{ID: "fakecc", Exe: exe, ParserKind: domain.ParserGCCLike}
	req := &domain.CompileRequest{Source: "int f(){return 0"}

	result, err := d.Compile(context.Background(), desc, req)
	require.NoError(t, err)
	assert.NotEqual(t, 0, result.Status)
	assert.True(t, result.OkToCache, "an ordinary compile error is still cacheable, unlike a timeout")
	assert.Equal(t, "<Compilation failed>", result.AsmRaw)
	assert.Empty(t, result.Asm)
}

// writeFailingCompiler installs a shell script standing in for a
// compiler that fails every time: it writes stderrText to stderr and
// exits 1 without ever producing an output file.
func writeFailingCompiler(t *testing.T, stderrText string) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
echo %q 1>&2
exit 1
`, stderrText)

	path := filepath.Join(t.TempDir(), "failcc")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// writeFakeCompilerCapturingInput is like writeFakeCompiler but also
// copies the compiler's input file (the first argument ending in .c
// or .cpp) to capturedPath, so a test can inspect what source text
// the driver actually handed the compiler.
func writeFakeCompilerCapturingInput(t *testing.T, counterPath, capturedPath, body string) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
echo x >> %q
out=""
in=""
prev=""
for a in "$@"; do
  case "$a" in
    *.c|*.cpp) in="$a" ;;
  esac
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
cp "$in" %q
cat > "$out" <<'EOF'
%s
EOF
exit 0
`, counterPath, capturedPath, body)

	path := filepath.Join(t.TempDir(), "fakecc")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
