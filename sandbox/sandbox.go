// Package sandbox runs a produced binary under resource limits and
// reports its outcome (spec.md §4.2, component C2). Two modes are
// selected by config.SandboxConfig.Type: "none" delegates straight to
// process.Runner (grounded on the teacher's own "unsafe" simple
// sandbox tier, invoker/sandbox/simple), and "docker" runs the binary
// inside a throwaway container (grounded on the Docker client pattern
// in other_examples/songphuc19102004-code-battling__crunner.go).
package sandbox

import (
	"context"
	"time"

	"compilebroker/config"
)

// ExecuteConfig is one request to run a binary.
type ExecuteConfig struct {
	// BinaryDir is the host directory containing Binary; it is
	// bind-mounted read-only into the container in docker mode.
	BinaryDir string
	Binary    string
	Args      []string
	Stdin     []byte
}

// RunResult is the outcome of one sandboxed execution.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Signal   string
	TimedOut bool
	WallTime time.Duration
	Err      error
}

// Sandbox runs binaries under one enforcement mode.
type Sandbox interface {
	Run(ctx context.Context, exec ExecuteConfig) *RunResult
}

// New selects a Sandbox implementation from cfg.Type: "docker" gets
// the container sandbox, any other value the passthrough one.
func New(cfg *config.SandboxConfig) Sandbox {
	if cfg.Type == "docker" {
		return newContainerSandbox(cfg)
	}
	return newPassthroughSandbox(cfg)
}
