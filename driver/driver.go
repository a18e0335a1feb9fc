// Package driver implements the Compiler Driver (spec.md §4.5,
// component C5): turns one (descriptor, request) pair into a
// CompileResult by running pre-checks, assembling an argument vector,
// driving the compiler and its post-processing pipeline, and
// memoizing the result under its fingerprint.
//
// Grounded on invoker/compile.go's compileJob (Prepare/Execute/Finish
// phase split, handoff of Execute onto a run queue guarded by a
// sync.WaitGroup) and invoker/pipeline.go's JobPipelineState (scoped
// defers run in reverse, `finish` fired exactly once). The compile
// job here keeps that phase shape; the run-queue handoff becomes
// lanes (lanes.go), generalized from one global queue to one FIFO lane
// per compiler id (spec.md §4.5's "enqueue lane").
package driver

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"compilebroker/asm"
	"compilebroker/cfg"
	"compilebroker/config"
	"compilebroker/domain"
	"compilebroker/fingerprint"
	"compilebroker/lib/logger"
	"compilebroker/metrics"
	"compilebroker/resultcache"
	"compilebroker/sandbox"
	"compilebroker/workspace"
)

// Driver runs compile requests against one resolved descriptor.
type Driver struct {
	cfg       *config.CompileConfig
	sandboxes *sandboxes
	workspace *workspace.Pool
	cache     *resultcache.Cache
	lanes     *lanes
	metrics   *metrics.Collector

	forbidden map[string]bool
	stubRe    *regexp.Regexp
}

type sandboxes struct {
	execute sandbox.Sandbox
}

// New builds a Driver. sandboxCfg configures the sandbox used for
// `execute`; it is constructed once and shared across requests, same
// as the teacher shares one Sandbox per invoker slot.
func New(compileCfg *config.CompileConfig, sandboxCfg *config.SandboxConfig, pool *workspace.Pool, cache *resultcache.Cache) *Driver {
	d := &Driver{
		cfg:       compileCfg,
		sandboxes: &sandboxes{execute: sandbox.New(sandboxCfg)},
		workspace: pool,
		cache:     cache,
		lanes:     newLanes(max(compileCfg.LaneWidth, 1)),
		forbidden: toSet(compileCfg.ForbiddenOptions),
	}
	if compileCfg.StubRe != "" {
		if re, err := regexp.Compile(compileCfg.StubRe); err == nil {
			d.stubRe = re
		} else {
			logger.Warn("driver: invalid StubRe %q: %v", compileCfg.StubRe, err)
		}
	}
	return d
}

// SetMetrics attaches a metrics collector. Optional: a Driver with no
// collector attached simply doesn't record anything, per
// metrics.Collector's nil-receiver contract.
func (d *Driver) SetMetrics(m *metrics.Collector) {
	d.metrics = m
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}

// Compile runs the full pipeline for one request against one
// descriptor. desc.IsRemote() must be false — proxying a remote
// descriptor is the orchestrator's job, not the driver's.
func (d *Driver) Compile(ctx context.Context, desc *domain.CompilerDescriptor, req *domain.CompileRequest) (*domain.CompileResult, error) {
	if desc.IsRemote() {
		return nil, fmt.Errorf("driver: compile called with a remote descriptor %s", desc.ID)
	}

	req.Filters.Normalize(desc.Capabilities)
	if req.Filters.Execute && req.ExecuteArgs == nil {
		req.ExecuteArgs = &domain.ExecuteArgs{}
	}

	if offenders := d.badOptions(req.Options); len(offenders) > 0 {
		return nil, fmt.Errorf("driver: forbidden options: %v", offenders)
	}
	if lineNo, col, ok := forbiddenInclude(req.Source); ok {
		return nil, fmt.Errorf("<stdin>:%d:%d: no absolute or relative includes please", lineNo, col)
	}

	source := req.Source
	if req.Filters.Binary && !d.hasStub(source) && d.cfg.StubText != "" {
		source = source + "\n" + d.cfg.StubText + "\n"
	}
	req = cloneWithSource(req, source)

	key, err := fingerprint.Compute(desc, req)
	if err != nil {
		return nil, fmt.Errorf("driver: fingerprint: %w", err)
	}

	d.metrics.IncActive(desc.ID)
	defer d.metrics.DecActive(desc.ID)
	start := time.Now()

	if req.BypassCache {
		result, handle, computeErr := d.runJob(ctx, desc, req)
		if handle != nil {
			handle.Release()
		}
		d.metrics.ObserveCompile(desc.ID, outcomeOf(result, computeErr), time.Since(start))
		return result, computeErr
	}

	entry, err := d.cache.GetOrCompute(key, func() (*domain.CompileResult, *workspace.Handle, error) {
		return d.runJob(ctx, desc, req)
	})
	if err != nil {
		d.metrics.ObserveCompile(desc.ID, "error", time.Since(start))
		return nil, err
	}
	d.metrics.ObserveCompile(desc.ID, outcomeOf(&entry.Result, nil), time.Since(start))
	return &entry.Result, nil
}

func outcomeOf(result *domain.CompileResult, err error) string {
	if err != nil {
		return "error"
	}
	if result == nil {
		return "error"
	}
	if result.Signal != "" {
		return "timeout"
	}
	if result.Status != 0 {
		return "compiler_error"
	}
	return "ok"
}

func (d *Driver) badOptions(options []string) []string {
	var offenders []string
	for _, opt := range options {
		if d.forbidden[opt] {
			offenders = append(offenders, opt)
		}
	}
	return offenders
}

var includeGuardRe = regexp.MustCompile(`^\s*#\s*i(nclude|mport)(_next)?\s+["<](\s*/|.*\.\.)`)

// forbiddenInclude reports the 1-based line and column of the first
// absolute or parent-relative include/import directive in source, so
// the caller can report it the way a compiler would.
func forbiddenInclude(source string) (lineNo, col int, ok bool) {
	for i, line := range splitLines(source) {
		if loc := includeGuardRe.FindStringIndex(line); loc != nil {
			return i + 1, loc[0] + 1, true
		}
	}
	return 0, 0, false
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func (d *Driver) hasStub(source string) bool {
	return d.stubRe != nil && d.stubRe.MatchString(source)
}

func cloneWithSource(req *domain.CompileRequest, source string) *domain.CompileRequest {
	clone := *req
	clone.Source = source
	return &clone
}

// runJob is the Prepare/Execute/Finish pipeline handoff: Prepare runs
// inline, Execute runs inside the compiler's lane, Finish runs inline
// again once the lane slot returns a result. Exported shape mirrors
// compileJob.Prepare/Execute/Finish.
func (d *Driver) runJob(ctx context.Context, desc *domain.CompilerDescriptor, req *domain.CompileRequest) (*domain.CompileResult, *workspace.Handle, error) {
	handle, err := d.workspace.Acquire()
	if err != nil {
		return nil, nil, fmt.Errorf("driver: acquire workspace: %w", err)
	}

	job := &compileJob{
		driver:  d,
		desc:    desc,
		req:     req,
		handle:  handle,
		cfgFile: "input" + sourceExt(desc),
	}

	if err := job.prepare(); err != nil {
		handle.Release()
		return nil, nil, err
	}

	done := make(chan struct{})
	d.lanes.enqueue(desc.ID, func() {
		job.execute(ctx)
		close(done)
	})
	<-done

	result, retainHandle := job.finish(asm.Clean, cfg.Build)
	if !retainHandle {
		handle.Release()
		return result, nil, nil
	}
	return result, handle, nil
}

func sourceExt(desc *domain.CompilerDescriptor) string {
	switch desc.ParserKind {
	case domain.ParserClangLike:
		return ".cpp"
	default:
		return ".c"
	}
}
