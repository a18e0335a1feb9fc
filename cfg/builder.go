// Package cfg builds a per-function control-flow graph from cleaned
// assembly (spec.md §4.7, component C7). New package, no teacher
// analog; consumes asm.Clean's structured line output directly.
package cfg

import (
	"regexp"
	"strconv"
	"strings"

	"compilebroker/domain"
)

var funcLabelRe = regexp.MustCompile(`^([.A-Za-z_$][\w$.]*):`)
var jmpRe = regexp.MustCompile(`^\s*jmp\s+([\w.$]+)`)
var condJmpRe = regexp.MustCompile(`^\s*j(ne|e|l|le|g|ge|a|ae|b|be|z|nz|s|ns)\s+([\w.$]+)`)
var retRe = regexp.MustCompile(`^\s*ret\b`)

// Build partitions cleaned assembly into function-scoped basic-block
// graphs. Functions are detected by a top-level label followed by
// instructions (the prologue); basic blocks are split at branch
// targets and at instructions immediately following a branch.
func Build(lines []domain.AsmLine) map[string]domain.CFGFunction {
	functions := splitFunctions(lines)
	out := make(map[string]domain.CFGFunction, len(functions))
	for name, body := range functions {
		out[name] = buildFunction(body)
	}
	return out
}

func splitFunctions(lines []domain.AsmLine) map[string][]domain.AsmLine {
	functions := make(map[string][]domain.AsmLine)
	var current string
	for _, l := range lines {
		if m := funcLabelRe.FindStringSubmatch(strings.TrimSpace(l.Text)); m != nil && !strings.HasPrefix(m[1], ".") {
			current = m[1]
			if _, ok := functions[current]; !ok {
				functions[current] = nil
			}
			continue
		}
		if current != "" {
			functions[current] = append(functions[current], l)
		}
	}
	return functions
}

func buildFunction(lines []domain.AsmLine) domain.CFGFunction {
	blocks := partitionBlocks(lines)

	var fn domain.CFGFunction
	labelToBlock := make(map[string]string)
	for i, b := range blocks {
		id := blockID(i)
		fn.Nodes = append(fn.Nodes, domain.CFGNode{ID: id, Label: b.text()})
		for _, lbl := range b.labels {
			labelToBlock[lbl] = id
		}
	}

	for i, b := range blocks {
		fromID := blockID(i)
		last := b.lastInstruction()

		if m := jmpRe.FindStringSubmatch(last); m != nil {
			if to, ok := labelToBlock[m[1]]; ok {
				fn.Edges = append(fn.Edges, domain.CFGEdge{From: fromID, To: to})
			}
			continue
		}
		if m := condJmpRe.FindStringSubmatch(last); m != nil {
			if to, ok := labelToBlock[m[2]]; ok {
				fn.Edges = append(fn.Edges, domain.CFGEdge{From: fromID, To: to, Arrows: "true"})
			}
			if i+1 < len(blocks) {
				fn.Edges = append(fn.Edges, domain.CFGEdge{From: fromID, To: blockID(i + 1), Arrows: "false"})
			}
			continue
		}
		if retRe.MatchString(last) {
			continue
		}
		if i+1 < len(blocks) {
			fn.Edges = append(fn.Edges, domain.CFGEdge{From: fromID, To: blockID(i + 1)})
		}
	}

	return fn
}

type block struct {
	labels []string
	lines  []string
}

func (b block) text() string {
	return strings.Join(b.lines, "\n")
}

func (b block) lastInstruction() string {
	for i := len(b.lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(b.lines[i]) != "" {
			return b.lines[i]
		}
	}
	return ""
}

func partitionBlocks(lines []domain.AsmLine) []block {
	var blocks []block
	cur := block{}
	flush := func() {
		if len(cur.lines) > 0 || len(cur.labels) > 0 {
			blocks = append(blocks, cur)
		}
		cur = block{}
	}

	isBranch := func(text string) bool {
		return jmpRe.MatchString(text) || condJmpRe.MatchString(text) || retRe.MatchString(text)
	}

	prevWasBranch := false
	for _, l := range lines {
		trimmed := strings.TrimSpace(l.Text)
		if m := funcLabelRe.FindStringSubmatch(trimmed); m != nil {
			if len(cur.lines) > 0 {
				flush()
			}
			cur.labels = append(cur.labels, m[1])
			prevWasBranch = false
			continue
		}
		if prevWasBranch {
			flush()
		}
		cur.lines = append(cur.lines, l.Text)
		prevWasBranch = isBranch(trimmed)
	}
	flush()
	return blocks
}

func blockID(i int) string {
	return "b" + strconv.Itoa(i)
}
