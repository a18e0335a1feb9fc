package driver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"compilebroker/domain"
	"compilebroker/process"
	"compilebroker/workspace"
)

// compileJob is one request's pass through Prepare/Execute/Finish.
// Grounded on invoker/compile.go's compileJob: Prepare does
// filesystem setup inline on the caller's goroutine, Execute is the
// part handed off to a queue, Finish runs inline again once Execute's
// result comes back and never runs twice.
type compileJob struct {
	driver  *Driver
	desc    *domain.CompilerDescriptor
	req     *domain.CompileRequest
	handle  *workspace.Handle
	cfgFile string // input source filename, relative to handle.Dir()

	outputFile string
	runner     *process.Runner

	mainResult *process.Result
	astResult  *process.Result
}

func (j *compileJob) prepare() error {
	path := filepath.Join(j.handle.Dir(), j.cfgFile)
	if err := os.WriteFile(path, []byte(j.req.Source), 0o644); err != nil {
		return err
	}
	if j.req.Filters.Binary {
		j.outputFile = "a.out"
	} else {
		j.outputFile = "output.s"
	}
	j.runner = process.New(j.handle.Dir())
	return nil
}

// execute runs the main compile and, if requested and supported, the
// AST probe concurrently; it must only ever be invoked from inside
// the job's lane slot.
func (j *compileJob) execute(ctx context.Context) {
	cfg := j.driver.cfg
	limits := process.Limits{
		Timeout:      time.Duration(cfg.TimeoutMs) * time.Millisecond,
		MaxOutputLen: int64(cfg.MaxErrorOutput.Val()),
	}

	runAST := j.req.BackendOptions.ProduceAst && supportsASTProbe(j.desc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		args := assembleArgs(j.desc, j.req, j.cfgFile, j.outputFile)
		j.mainResult = j.runner.Run(ctx, j.desc.Exe, args, nil, limits)
	}()

	if runAST {
		wg.Add(1)
		go func() {
			defer wg.Done()
			args := astProbeArgs(j.desc, j.req, j.cfgFile)
			astLimits := process.Limits{
				Timeout:      limits.Timeout,
				MaxOutputLen: 1 << 30,
			}
			j.astResult = j.runner.Run(ctx, j.desc.Exe, args, nil, astLimits)
		}()
	}

	wg.Wait()
}
