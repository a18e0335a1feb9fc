package process

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	runner := New(t.TempDir())
	result := runner.Run(context.Background(), "sh", []string{"-c", "echo hi; exit 3"}, nil, Limits{
		Timeout:      2 * time.Second,
		MaxOutputLen: 1 << 10,
	})
	require.Nil(t, result.Err)
	assert.False(t, result.TimedOut)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "hi\n", string(result.Stdout))
}

func TestRunTruncatesOversizedOutput(t *testing.T) {
	runner := New(t.TempDir())
	result := runner.Run(context.Background(), "sh", []string{"-c", "yes | head -c 100000"}, nil, Limits{
		Timeout:      2 * time.Second,
		MaxOutputLen: 16,
	})
	require.Nil(t, result.Err)
	assert.True(t, result.Truncated)
	assert.True(t, strings.HasSuffix(string(result.Stdout), truncatedMarker))
}

func TestRunKillsNonTerminatingChildOnceCapExceeded(t *testing.T) {
	runner := New(t.TempDir())
	start := time.Now()
	result := runner.Run(context.Background(), "sh", []string{"-c", "while true; do echo x; done"}, nil, Limits{
		Timeout:      5 * time.Second,
		MaxOutputLen: 16,
	})
	elapsed := time.Since(start)

	require.Nil(t, result.Err)
	assert.True(t, result.Truncated)
	assert.False(t, result.TimedOut, "the cap, not the timeout, should have ended the run")
	assert.Less(t, elapsed, 5*time.Second, "crossing maxOutput must kill the tree long before the timeout fires")
}

func TestRunKillsOnTimeout(t *testing.T) {
	runner := New(t.TempDir())
	result := runner.Run(context.Background(), "sh", []string{"-c", "sleep 5"}, nil, Limits{
		Timeout:      100 * time.Millisecond,
		MaxOutputLen: 1 << 10,
	})
	assert.True(t, result.TimedOut)
	assert.True(t, strings.HasSuffix(string(result.Stderr), killedMarker))
}

func TestRunFeedsStdin(t *testing.T) {
	runner := New(t.TempDir())
	result := runner.Run(context.Background(), "cat", nil, []byte("through the pipe"), Limits{
		Timeout:      2 * time.Second,
		MaxOutputLen: 1 << 10,
	})
	require.Nil(t, result.Err)
	assert.Equal(t, "through the pipe", string(result.Stdout))
}
