package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"compilebroker/config"
	"compilebroker/lib/logger"
)

const containerMountPoint = "/sandbox"

// containerSandbox runs binaries inside a throwaway Docker container
// per spec.md §4.2's protocol: bind-mount read-only, apply CPU/memory/
// fd/network constraints, wait with a timeout, fetch logs, always
// remove.
//
// Grounded on the Docker client construction pattern in
// other_examples/songphuc19102004-code-battling__crunner.go
// (client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())).
type containerSandbox struct {
	cli *client.Client
	cfg *config.SandboxConfig
}

func newContainerSandbox(cfg *config.SandboxConfig) *containerSandbox {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Panic("sandbox: can not build docker client: %v", err)
	}
	return &containerSandbox{cli: cli, cfg: cfg}
}

func (s *containerSandbox) Run(ctx context.Context, exec ExecuteConfig) *RunResult {
	timeout := time.Duration(s.cfg.TimeoutMs) * time.Millisecond

	cmd := append([]string{containerMountPoint + "/" + exec.Binary}, exec.Args...)

	resp, err := s.cli.ContainerCreate(ctx, &dockercontainer.Config{
		Image:           s.cfg.Image,
		Cmd:             cmd,
		WorkingDir:      containerMountPoint,
		NetworkDisabled: true,
		AttachStdin:     len(exec.Stdin) > 0,
		OpenStdin:       len(exec.Stdin) > 0,
		StdinOnce:       len(exec.Stdin) > 0,
	}, &dockercontainer.HostConfig{
		AutoRemove: false,
		Binds:      []string{exec.BinaryDir + ":" + containerMountPoint + ":ro"},
		Resources: dockercontainer.Resources{
			CPUShares:  s.cfg.CPUShares,
			CPUQuota:   s.cfg.CPUQuotaUs,
			CPUPeriod:  s.cfg.CPUPeriodUs,
			Memory:     int64(s.cfg.MemoryLimit),
			MemorySwap: int64(s.cfg.MemoryLimit), // equal to Memory disables swap
			Ulimits: []*dockercontainer.Ulimit{
				{Name: "cpu", Soft: s.cfg.CPUTimeLimitS, Hard: s.cfg.CPUTimeLimitS},
				{Name: "nofile", Soft: int64(s.cfg.MaxOpenFiles), Hard: int64(s.cfg.MaxOpenFiles)},
				{Name: "rss", Soft: int64(s.cfg.MemoryLimit), Hard: int64(s.cfg.MemoryLimit)},
			},
		},
		NetworkMode: "none",
	}, nil, nil, "")
	if err != nil {
		return &RunResult{Err: fmt.Errorf("sandbox: create container: %w", err)}
	}
	containerID := resp.ID

	// Every exit path below removes the container, per spec.md §4.2
	// step 5 ("scoped cleanup").
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.cli.ContainerRemove(removeCtx, containerID, dockercontainer.RemoveOptions{Force: true})
	}()

	start := time.Now()
	if err := s.cli.ContainerStart(ctx, containerID, dockercontainer.StartOptions{}); err != nil {
		return &RunResult{Err: fmt.Errorf("sandbox: start container: %w", err)}
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusCh, errCh := s.cli.ContainerWait(waitCtx, containerID, dockercontainer.WaitConditionNotRunning)

	result := &RunResult{}
	var timedOut bool
	select {
	case err := <-errCh:
		if waitCtx.Err() != nil {
			timedOut = true
		} else if err != nil {
			return &RunResult{Err: fmt.Errorf("sandbox: wait container: %w", err)}
		}
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	}
	result.WallTime = time.Since(start)

	if timedOut {
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.cli.ContainerKill(killCtx, containerID, "SIGKILL")
		killCancel()
		result.TimedOut = true
		result.Signal = "SIGKILL"
	}

	stdout, stderr, logErr := s.fetchLogs(containerID)
	if logErr != nil {
		result.Err = fmt.Errorf("sandbox: fetch logs: %w", logErr)
	}
	if timedOut {
		stdout = append(stdout, []byte(fmt.Sprintf("\n### Killed after %dms", s.cfg.TimeoutMs))...)
	}
	result.Stdout = stdout
	result.Stderr = stderr

	return result
}

func (s *containerSandbox) fetchLogs(containerID string) ([]byte, []byte, error) {
	logCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rc, err := s.cli.ContainerLogs(logCtx, containerID, dockercontainer.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil && err != io.EOF {
		return stdout.Bytes(), stderr.Bytes(), err
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}
