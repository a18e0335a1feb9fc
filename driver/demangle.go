package driver

import (
	"context"
	"strings"
	"time"

	"compilebroker/domain"
	"compilebroker/process"
)

// demangleAsmLines pipes all asm line texts, newline-joined, through
// the descriptor's demangler and splices the demangled text back into
// the structured entries, preserving each line's source annotation,
// per spec.md §4.5. If the demangler's line count doesn't match the
// input (a broken or unusual demangler), the original lines are kept.
func demangleAsmLines(ctx context.Context, runner *process.Runner, demanglerPath string, lines []domain.AsmLine) []domain.AsmLine {
	if demanglerPath == "" || len(lines) == 0 {
		return lines
	}

	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	joined := strings.Join(texts, "\n")

	res := runner.Run(ctx, demanglerPath, nil, []byte(joined), process.Limits{Timeout: 5 * time.Second, MaxOutputLen: 1 << 20})
	if res.Err != nil || res.ExitCode != 0 {
		return lines
	}

	demangled := strings.Split(strings.TrimRight(string(res.Stdout), "\n"), "\n")
	if len(demangled) != len(lines) {
		return lines
	}

	out := make([]domain.AsmLine, len(lines))
	for i, l := range lines {
		out[i] = domain.AsmLine{Text: demangled[i], Source: l.Source}
	}
	return out
}
