package driver

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"compilebroker/domain"
	"compilebroker/process"
)

// rawOptRecord mirrors one YAML document of an LLVM .opt.yaml
// optimization-record stream. Field names follow LLVM's own
// capitalization, which is why this type carries its own yaml tags
// instead of reusing domain.OptRecord's json-tagged shape.
type rawOptRecord struct {
	Pass     string           `yaml:"Pass"`
	Name     string           `yaml:"Name"`
	Function string           `yaml:"Function"`
	DebugLoc *rawDebugLoc     `yaml:"DebugLoc"`
	Args     []map[string]any `yaml:"Args"`
}

type rawDebugLoc struct {
	File   string `yaml:"File"`
	Line   int    `yaml:"Line"`
	Column int    `yaml:"Column"`
}

// parseOptRecords streams an LLVM opt-record YAML document sequence
// and keeps only the entries whose DebugLoc.File mentions inputFile,
// per spec.md §4.5.
func parseOptRecords(r io.Reader, inputFile string) ([]domain.OptRecord, error) {
	dec := yaml.NewDecoder(r)
	var out []domain.OptRecord
	for {
		var raw rawOptRecord
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return out, err
		}
		if raw.DebugLoc == nil || !strings.Contains(raw.DebugLoc.File, inputFile) {
			continue
		}
		out = append(out, domain.OptRecord{
			Pass:     raw.Pass,
			Name:     raw.Name,
			Function: raw.Function,
			DebugLoc: &domain.OptDebugLoc{File: raw.DebugLoc.File, Line: raw.DebugLoc.Line, Column: raw.DebugLoc.Column},
			Args:     raw.Args,
		})
	}
	return out, nil
}

// demangleOptRecords round-trips the filtered records through the
// descriptor's demangler as JSON, per spec.md §4.5. The demangler is
// expected to accept a JSON array on stdin and emit a demangled JSON
// array of the same shape on stdout; any failure just returns records
// unchanged rather than discarding the opt-output feature.
func demangleOptRecords(ctx context.Context, runner *process.Runner, demanglerPath string, records []domain.OptRecord) []domain.OptRecord {
	if demanglerPath == "" || len(records) == 0 {
		return records
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return records
	}
	res := runner.Run(ctx, demanglerPath, nil, payload, process.Limits{Timeout: 5 * time.Second, MaxOutputLen: 1 << 20})
	if res.Err != nil || res.ExitCode != 0 {
		return records
	}
	var demangled []domain.OptRecord
	if err := json.Unmarshal(res.Stdout, &demangled); err != nil {
		return records
	}
	return demangled
}

// readOutputWithFallback implements the "else" branch of spec.md
// §4.5's post-main-compile step: stat the output file, substitute a
// sentinel if it exceeds maxAsmSize, otherwise stream it through the
// descriptor's configured post-process pipeline (if any) or just
// read it directly.
func readOutputWithFallback(ctx context.Context, runner *process.Runner, path string, stages []domain.PostProcessStage, maxAsmSize int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if maxAsmSize > 0 && info.Size() > maxAsmSize {
		return "[Output too large to display]", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(stages) == 0 {
		return string(data), nil
	}

	for _, stage := range stages {
		res := runner.Run(ctx, stage.Command, stage.Args, data, process.Limits{MaxOutputLen: maxAsmSize})
		if res.Err != nil {
			return "", res.Err
		}
		data = res.Stdout
	}
	return string(data), nil
}
