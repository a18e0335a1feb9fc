package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"compilebroker/domain"
)

func TestAssembleArgsAsmOnlyMode(t *testing.T) {
	desc := &domain.CompilerDescriptor{DefaultOptions: []string{"-Wall"}, IntelSyntaxFlag: "-masm=intel"}
	req := &domain.CompileRequest{Options: []string{"-O2"}, Filters: domain.FilterSet{Intel: true}}

	args := assembleArgs(desc, req, "input.c", "output.s")
	assert.Equal(t, []string{"-g", "-o", "output.s", "-masm=intel", "-S", "-Wall", "-O2", "input.c"}, args)
}

func TestAssembleArgsBinaryObjectOnly(t *testing.T) {
	desc := &domain.CompilerDescriptor{}
	req := &domain.CompileRequest{Filters: domain.FilterSet{Binary: true}}

	args := assembleArgs(desc, req, "input.c", "a.out")
	assert.Equal(t, []string{"-g", "-o", "a.out", "-c", "input.c"}, args)
}

func TestAssembleArgsBinaryLinked(t *testing.T) {
	desc := &domain.CompilerDescriptor{}
	req := &domain.CompileRequest{Filters: domain.FilterSet{Binary: true, Link: true}}

	args := assembleArgs(desc, req, "input.c", "a.out")
	assert.Equal(t, []string{"-g", "-o", "a.out", "input.c"}, args)
}

func TestAssembleArgsAppendsOptRecordFlagLast(t *testing.T) {
	desc := &domain.CompilerDescriptor{
		Capabilities:  domain.Capabilities{SupportsOptRecord: true},
		OptRecordFlag: "-fsave-optimization-record",
	}
	req := &domain.CompileRequest{BackendOptions: domain.BackendOptions{ProduceOptInfo: true}}

	args := assembleArgs(desc, req, "input.c", "output.s")
	assert.Equal(t, []string{"-g", "-o", "output.s", "-S", "input.c", "-fsave-optimization-record"}, args)
}

func TestSupportsASTProbeRequiresClangAtLeast33(t *testing.T) {
	clang := &domain.CompilerDescriptor{ParserKind: domain.ParserClangLike, Version: "clang version 7.0.1"}
	assert.True(t, supportsASTProbe(clang))

	old := &domain.CompilerDescriptor{ParserKind: domain.ParserClangLike, Version: "3.2"}
	assert.False(t, supportsASTProbe(old))

	gcc := &domain.CompilerDescriptor{ParserKind: domain.ParserGCCLike, Version: "13.2.0"}
	assert.False(t, supportsASTProbe(gcc))
}

func TestSupportsCFGMatchesClangAndGxxFamilies(t *testing.T) {
	assert.True(t, supportsCFG(&domain.CompilerDescriptor{Version: "clang version 15.0.0"}))
	assert.True(t, supportsCFG(&domain.CompilerDescriptor{Name: "g++ 12.2"}))
	assert.False(t, supportsCFG(&domain.CompilerDescriptor{Version: "icc 19.0"}))
}
