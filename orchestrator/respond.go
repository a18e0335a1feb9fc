package orchestrator

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"compilebroker/domain"
)

// writeCompileResult shapes the response per spec.md §6's content
// negotiation: a produced binary when the client accepts an
// executable content type and the request asked for one, plain text
// when the client accepts text/plain, JSON otherwise.
func writeCompileResult(c *gin.Context, req *domain.CompileRequest, result *domain.CompileResult) {
	accept := c.GetHeader("Accept")

	if req.Filters.Binary && acceptsBinary(accept) {
		if result.OutputFilePath != "" && result.OkToCache {
			c.Header("Content-Disposition", `attachment; filename="output"`)
			c.File(result.OutputFilePath)
			return
		}
		// Fall through to JSON/text: no object file to serve (compile
		// failed or the result wasn't retained).
	}

	if acceptsText(accept) {
		c.String(http.StatusOK, renderText(result))
		return
	}

	c.JSON(http.StatusOK, result)
}

func acceptsBinary(accept string) bool {
	for _, t := range []string{"application/octet-stream", "x-object", "x-executable", "x-sharedlib", "binary"} {
		if strings.Contains(accept, t) {
			return true
		}
	}
	return false
}

func acceptsText(accept string) bool {
	return strings.Contains(accept, "text/plain")
}

// renderText builds the "banner + joined asm text + terminated line +
// stdout/stderr sections" layout spec.md §6 describes for the
// text/plain variant.
func renderText(result *domain.CompileResult) string {
	var b strings.Builder
	b.WriteString("# Compilation provided by compilebroker\n")

	if result.AsmRaw != "" {
		b.WriteString(result.AsmRaw)
		b.WriteString("\n")
	} else {
		for _, line := range result.Asm {
			b.WriteString(line.Text)
			b.WriteString("\n")
		}
	}

	if result.Signal != "" {
		fmt.Fprintf(&b, "Terminated by signal %s\n", result.Signal)
	} else {
		fmt.Fprintf(&b, "Compiler exited with status %d\n", result.Status)
	}

	if len(result.Stdout) > 0 {
		b.WriteString("Standard out:\n")
		writeLines(&b, result.Stdout)
	}
	if len(result.Stderr) > 0 {
		b.WriteString("Standard error:\n")
		writeLines(&b, result.Stderr)
	}

	return b.String()
}

func writeLines(b *strings.Builder, lines []domain.AsmLine) {
	for _, line := range lines {
		b.WriteString(line.Text)
		b.WriteString("\n")
	}
}

// writeCompilerList shapes GET /api/compilers per spec.md §6: JSON
// array by default, "id | name" padded text columns when the client
// asked for text/plain.
func writeCompilerList(c *gin.Context, list []domain.Public) {
	if acceptsText(c.GetHeader("Accept")) {
		c.String(http.StatusOK, renderCompilerTable(list))
		return
	}
	c.JSON(http.StatusOK, list)
}

func renderCompilerTable(list []domain.Public) string {
	width := 0
	for _, p := range list {
		if len(p.ID) > width {
			width = len(p.ID)
		}
	}
	var b strings.Builder
	for _, p := range list {
		fmt.Fprintf(&b, "%-*s | %s\n", width, p.ID, p.Name)
	}
	return b.String()
}
