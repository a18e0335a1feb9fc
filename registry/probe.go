package registry

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"compilebroker/domain"
)

// probeCompiler runs the descriptor's version probe and scrapes its
// help output for capability flags, per spec.md §4.4: "run the
// version-probe command, match against the version regex, discover
// argument-parser capabilities by invoking the compiler with a help
// flag and scraping supported options."
func probeCompiler(ctx context.Context, d *domain.CompilerDescriptor) error {
	probeFlag := d.VersionProbe
	if probeFlag == "" {
		probeFlag = "--version"
	}

	out, err := runHelp(ctx, d.Exe, probeFlag)
	if err != nil {
		return fmt.Errorf("version probe: %w", err)
	}

	if d.VersionRegex != "" {
		re, err := regexp.Compile(d.VersionRegex)
		if err != nil {
			return fmt.Errorf("version regex: %w", err)
		}
		if m := re.FindString(out); m != "" {
			d.Version = m
		}
	} else {
		d.Version = strings.TrimSpace(firstLine(out))
	}

	discoverCapabilities(ctx, d)
	return nil
}

func runHelp(ctx context.Context, exe string, flag string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, exe, flag).CombinedOutput()
	return string(out), err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// discoverCapabilities scrapes --help output for option tokens that
// imply a capability. This is necessarily heuristic: spec.md §4.4
// leaves the exact scraping rule unspecified beyond "invoke with a
// help flag and scrape supported options", so the rule here is a
// straightforward substring search, the simplest thing that makes
// capability discovery actually vary by compiler rather than being
// config-only.
func discoverCapabilities(ctx context.Context, d *domain.CompilerDescriptor) {
	help, err := runHelp(ctx, d.Exe, "--help")
	if err != nil {
		return
	}

	if strings.Contains(help, "-masm=intel") || d.IntelSyntaxFlag != "" {
		d.Capabilities.SupportsIntelAsm = true
	}
	if strings.Contains(help, "-fsave-optimization-record") || d.OptRecordFlag != "" {
		d.Capabilities.SupportsOptRecord = true
	}
	if d.ObjdumperPath != "" {
		d.Capabilities.SupportsObjdump = true
	}
	// Any compiler that accepts -c/-o can, in principle, produce a
	// binary; the driver still gates this per-descriptor via config
	// when a compiler is asm-only (e.g. a cross assembler).
	if strings.Contains(help, "-o ") || strings.Contains(help, "-o<file>") {
		d.Capabilities.SupportsBinary = true
	}
	if d.Capabilities.SupportsBinary {
		d.Capabilities.SupportsExecute = true
	}
}
