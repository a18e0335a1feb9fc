package cfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compilebroker/domain"
)

func asmLines(text string) []domain.AsmLine {
	var out []domain.AsmLine
	for _, l := range strings.Split(text, "\n") {
		if l == "" {
			continue
		}
		out = append(out, domain.AsmLine{Text: l})
	}
	return out
}

func TestBuildDetectsFunctionAndConditionalBranch(t *testing.T) {
	lines := asmLines(`f:
	cmp %eax, %ebx
	jne .L2
	movl $1, %eax
	ret
.L2:
	movl $0, %eax
	ret
`)
	graph := Build(lines)
	require.Contains(t, graph, "f")
	fn := graph["f"]
	require.GreaterOrEqual(t, len(fn.Nodes), 2)

	var sawTrue, sawFalse bool
	for _, e := range fn.Edges {
		if e.Arrows == "true" {
			sawTrue = true
		}
		if e.Arrows == "false" {
			sawFalse = true
		}
	}
	assert.True(t, sawTrue)
	assert.True(t, sawFalse)
}

func TestBuildUnconditionalJumpHasNoArrows(t *testing.T) {
	lines := asmLines(`f:
	jmp .L1
.L1:
	ret
`)
	fn := Build(lines)["f"]
	require.NotEmpty(t, fn.Edges)
	assert.Empty(t, fn.Edges[0].Arrows)
}
