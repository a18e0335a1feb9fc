package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"compilebroker/domain"
	"compilebroker/process"
	"compilebroker/sandbox"
)

// finish assembles the CompileResult from the main compile's output
// and runs the post-processing pipeline described in spec.md §4.5:
// objdump or the stat+postprocess fallback, opt-record parsing,
// demangling, CFG building, and sandboxed execution. It reports
// whether the job's workspace handle should be retained (it backs
// outputFilePath for binary downloads once the result is cached).
func (j *compileJob) finish(
	clean func(string, domain.FilterSet) []domain.AsmLine,
	buildCFG func([]domain.AsmLine) map[string]domain.CFGFunction,
) (*domain.CompileResult, bool) {
	ctx := context.Background()

	result := &domain.CompileResult{
		Stdout:    toAsmLines(string(j.mainResult.Stdout)),
		Stderr:    toAsmLines(string(j.mainResult.Stderr)),
		Status:    j.mainResult.ExitCode,
		OkToCache: !j.mainResult.TimedOut && !j.mainResult.Truncated,
	}
	if j.mainResult.TimedOut && j.mainResult.ExitCode == -1 {
		result.Signal = "SIGKILL"
	}

	if j.astResult != nil && j.astResult.Err == nil {
		result.AstOutput = cleanASTOutput(string(j.astResult.Stdout), j.cfgFile)
	}

	// Error kind 2 vs. kind 3: an ordinary nonzero exit or terminating
	// signal (OkToCache still true, since it wasn't a timeout or
	// truncation) is a compiler failure and gets the literal sentinel;
	// a timeout/truncation already carries its own sentinel in stderr
	// (the killed/truncated marker process.Runner appended) and must
	// not be overwritten with the compiler-failure text.
	if result.Status != 0 || result.Signal != "" {
		if result.OkToCache {
			result.AsmRaw = "<Compilation failed>"
		} else {
			result.AsmRaw = string(j.mainResult.Stderr)
		}
		return result, false
	}

	outputPath := filepath.Join(j.handle.Dir(), j.outputFile)
	maxAsmSize := int64(j.driver.cfg.MaxAsmSize.Val())
	retainHandle := false

	var asmText string
	if j.req.Filters.Binary && j.desc.Capabilities.SupportsObjdump {
		objRes := j.runner.Run(ctx, j.desc.ObjdumperPath, objdumpArgs(j.req, outputPath), nil,
			process.Limits{MaxOutputLen: maxAsmSize})
		if objRes.ExitCode != 0 {
			result.OkToCache = false
		}
		asmText = string(objRes.Stdout)
		result.OutputFilePath = outputPath
		retainHandle = result.OkToCache
	} else {
		text, err := readOutputWithFallback(ctx, j.runner, outputPath, j.desc.PostProcess, maxAsmSize)
		if err != nil {
			result.OkToCache = false
		}
		asmText = text
	}

	lines := clean(asmText, j.req.Filters)
	if j.req.Filters.Demangle && result.OkToCache {
		lines = demangleAsmLines(ctx, j.runner, j.desc.DemanglerPath, lines)
	}
	result.Asm = lines

	if j.req.BackendOptions.ProduceOptInfo {
		if f, err := os.Open(outputPath + ".opt.yaml"); err == nil {
			records, _ := parseOptRecords(f, j.cfgFile)
			f.Close()
			result.OptOutput = demangleOptRecords(ctx, j.runner, j.desc.DemanglerPath, records)
		}
	}

	if supportsCFG(j.desc) {
		result.CFG = buildCFG(lines)
	}

	if j.req.Filters.Execute && result.Status == 0 {
		result.ExecResult = j.runExecute(ctx)
	}

	return result, retainHandle
}

func toAsmLines(text string) []domain.AsmLine {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	out := make([]domain.AsmLine, len(lines))
	for i, l := range lines {
		out[i] = domain.AsmLine{Text: l}
	}
	return out
}

// cleanASTOutput scrubs a clang -ast-dump tree per spec.md §4.5:
// drop subtrees whose top-level node doesn't mention the user's input
// file, leaving <invalid sloc> top-level nodes under whichever file
// was most recently seen rather than flipping inclusion off, and
// scrub hex addresses.
func cleanASTOutput(raw, inputFile string) string {
	var kept []string
	include := false
	for _, line := range strings.Split(raw, "\n") {
		if isTopLevelASTLine(line) && !strings.Contains(line, "<invalid sloc>") {
			include = strings.Contains(line, inputFile)
		}
		if !include {
			continue
		}
		kept = append(kept, scrubAddresses(line))
	}
	return strings.Join(kept, "\n")
}

func isTopLevelASTLine(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case ' ', '\t', '|', '`':
		return false
	default:
		return true
	}
}

func scrubAddresses(line string) string {
	var b strings.Builder
	i := 0
	for i < len(line) {
		if strings.HasPrefix(line[i:], "0x") {
			j := i + 2
			for j < len(line) && isHex(line[j]) {
				j++
			}
			if j > i+2 {
				b.WriteString("0x...")
				i = j
				continue
			}
		}
		b.WriteByte(line[i])
		i++
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (j *compileJob) runExecute(ctx context.Context) *domain.ExecResult {
	res := j.driver.sandboxes.execute.Run(ctx, sandbox.ExecuteConfig{
		BinaryDir: j.handle.Dir(),
		Binary:    j.outputFile,
		Args:      j.req.ExecuteArgs.Args,
		Stdin:     []byte(j.req.ExecuteArgs.Stdin),
	})
	j.driver.metrics.ObserveSandboxRun(res.Err == nil)
	return &domain.ExecResult{
		Stdout: toAsmLines(string(res.Stdout)),
		Stderr: toAsmLines(string(res.Stderr)),
		Status: res.ExitCode,
		Signal: res.Signal,
	}
}
