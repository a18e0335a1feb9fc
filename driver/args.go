package driver

import "compilebroker/domain"

// assembleArgs builds the compiler argument vector per spec.md §4.5's
// five-step recipe. outputPath and inputFile are both paths relative
// to (or inside) the job's workspace directory.
func assembleArgs(desc *domain.CompilerDescriptor, req *domain.CompileRequest, inputFile, outputPath string) []string {
	var args []string

	// 1. Base.
	args = append(args, "-g", "-o", outputPath)

	// 2. Intel-syntax asm flag, only meaningful when not producing a
	// binary (objdump's own -M intel covers the binary case).
	if req.Filters.Intel && !req.Filters.Binary && desc.IntelSyntaxFlag != "" {
		args = append(args, desc.IntelSyntaxFlag)
	}

	// 3. Compile mode.
	if req.Filters.Binary {
		if !req.Filters.Link {
			args = append(args, "-c")
		}
	} else {
		args = append(args, "-S")
	}

	// 4. Descriptor defaults, then user options, then the input file.
	args = append(args, desc.DefaultOptions...)
	args = append(args, req.Options...)
	args = append(args, inputFile)

	// 5. Opt-record flag.
	if req.BackendOptions.ProduceOptInfo && desc.Capabilities.SupportsOptRecord && desc.OptRecordFlag != "" {
		args = append(args, desc.OptRecordFlag)
	}

	return args
}

// astProbeArgs builds the argument vector for the AST-dump probe
// invocation, a separate compiler run from the main compile.
func astProbeArgs(desc *domain.CompilerDescriptor, req *domain.CompileRequest, inputFile string) []string {
	var args []string
	args = append(args, desc.DefaultOptions...)
	args = append(args, req.Options...)
	args = append(args, "-Xclang", "-ast-dump", "-fsyntax-only", inputFile)
	return args
}

// objdumpArgs builds the objdump invocation for the produced binary.
func objdumpArgs(req *domain.CompileRequest, outputPath string) []string {
	args := []string{"-d", "-l", "--insn-width=16"}
	if req.Filters.Demangle {
		args = append(args, "-C")
	}
	if req.Filters.Intel {
		args = append(args, "-M", "intel")
	}
	args = append(args, outputPath)
	return args
}

// supportsASTProbe reports whether desc's discovered version is new
// enough for -Xclang -ast-dump, per spec.md §4.5 ("compiler version ≥
// clang 3.3"). Descriptors that never discovered a parseable version
// are treated as unsupported rather than guessed.
func supportsASTProbe(desc *domain.CompilerDescriptor) bool {
	if desc.ParserKind != domain.ParserClangLike {
		return false
	}
	major, minor, ok := parseMajorMinor(desc.Version)
	if !ok {
		return false
	}
	if major != 3 {
		return major > 3
	}
	return minor >= 3
}

func parseMajorMinor(version string) (int, int, bool) {
	start := firstDigitIndex(version)
	if start < 0 {
		return 0, 0, false
	}
	major, rest, ok := leadingInt(version[start:])
	if !ok {
		return 0, 0, false
	}
	if len(rest) == 0 || rest[0] != '.' {
		return major, 0, true
	}
	minor, _, ok := leadingInt(rest[1:])
	if !ok {
		return major, 0, true
	}
	return major, minor, true
}

func firstDigitIndex(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return i
		}
	}
	return -1
}

func leadingInt(s string) (int, string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s, false
	}
	n := 0
	for _, c := range s[:i] {
		n = n*10 + int(c-'0')
	}
	return n, s[i:], true
}

// supportsCFG reports whether desc's family is one the CFG Builder
// understands, per spec.md §4.5 ("clang* or g++-prefixed version
// strings").
func supportsCFG(desc *domain.CompilerDescriptor) bool {
	return hasPrefixFold(desc.Version, "clang") || hasPrefixFold(desc.Version, "g++") ||
		hasPrefixFold(desc.Name, "clang") || hasPrefixFold(desc.Name, "g++")
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
