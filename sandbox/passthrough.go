package sandbox

import (
	"context"
	"time"

	"compilebroker/config"
	"compilebroker/process"
)

// passthroughSandbox runs the binary directly via process.Runner,
// with no container isolation. Matches the teacher's own warning in
// invoker/sandbox/simple.NewSandbox: not safe for untrusted code, but
// useful in trusted or test environments.
type passthroughSandbox struct {
	timeout   time.Duration
	maxOutput int64
}

func newPassthroughSandbox(cfg *config.SandboxConfig) *passthroughSandbox {
	return &passthroughSandbox{
		timeout:   time.Duration(cfg.TimeoutMs) * time.Millisecond,
		maxOutput: int64(cfg.MaxOutput),
	}
}

func (s *passthroughSandbox) Run(ctx context.Context, exec ExecuteConfig) *RunResult {
	runner := process.New(exec.BinaryDir)
	res := runner.Run(ctx, "./"+exec.Binary, exec.Args, exec.Stdin, process.Limits{
		Timeout:      s.timeout,
		MaxOutputLen: s.maxOutput,
	})

	out := &RunResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
		WallTime: res.WallTime,
		Err:      res.Err,
	}
	if res.TimedOut {
		out.Signal = "SIGKILL"
	}
	return out
}
