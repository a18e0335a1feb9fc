package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"compilebroker/domain"
)

// compileEnvelope is the JSON body shape for POST
// /api/compiler/{id}/compile and the legacy POST /compile alias,
// spec.md §6. Compiler is only read by the legacy alias, which has no
// {id} path segment to carry it instead.
type compileEnvelope struct {
	Source   string `json:"source"`
	Compiler string `json:"compiler,omitempty"`
	Options  *struct {
		UserArguments   string           `json:"userArguments"`
		CompilerOptions string           `json:"compilerOptions"`
		Filters         domain.FilterSet `json:"filters"`
	} `json:"options"`
	BackendOptions domain.BackendOptions `json:"backendOptions,omitempty"`
	ExecuteArgs    *domain.ExecuteArgs   `json:"executeParameters,omitempty"`
	BypassCache    bool                  `json:"bypassCache,omitempty"`
}

// badRequest is returned by the parsing helpers below to carry a
// diagnostic string straight to connector.RespErr, per spec.md §7's
// error kind 1.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// parseCompileRequest decodes a compile body, routing on Content-Type
// per spec.md §6: a JSON body is the envelope form, anything else is
// raw source text with options/filters carried on the query string.
func parseCompileRequest(c *gin.Context) (*domain.CompileRequest, string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, "", badRequestf("could not read request body: %v", err)
	}

	if isJSONContentType(c.GetHeader("Content-Type")) {
		return parseEnvelope(body)
	}
	return parseTextVariant(c, string(body))
}

func isJSONContentType(ct string) bool {
	return strings.Contains(ct, "application/json")
}

func parseEnvelope(body []byte) (*domain.CompileRequest, string, error) {
	var env compileEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", badRequestf("malformed request body: %v", err)
	}

	req := &domain.CompileRequest{
		Source:         env.Source,
		BackendOptions: env.BackendOptions,
		ExecuteArgs:    env.ExecuteArgs,
		BypassCache:    env.BypassCache,
	}
	if env.Options != nil {
		req.Filters = env.Options.Filters
		req.Options = append(splitFields(env.Options.CompilerOptions), splitFields(env.Options.UserArguments)...)
	}
	return req, env.Compiler, nil
}

// parseTextVariant implements the text-body compile form: the whole
// body is source, and ?options=, ?filters=, ?addFilters=,
// ?removeFilters= on the query string carry what the JSON envelope
// would otherwise carry, per spec.md §6.
func parseTextVariant(c *gin.Context, source string) (*domain.CompileRequest, string, error) {
	req := &domain.CompileRequest{Source: source}
	req.Options = splitFields(c.Query("options"))

	if raw := c.Query("filters"); raw != "" {
		applyFilterNames(&req.Filters, splitCSV(raw), true)
	}
	applyFilterNames(&req.Filters, splitCSV(c.Query("addFilters")), true)
	applyFilterNames(&req.Filters, splitCSV(c.Query("removeFilters")), false)

	return req, "", nil
}

func splitFields(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyFilterNames sets each named FilterSet field (json-tag spelling:
// binary, link, execute, intel, demangle, commentOnly, directives,
// labels, optOutput) to value.
func applyFilterNames(f *domain.FilterSet, names []string, value bool) {
	for _, name := range names {
		switch strings.ToLower(name) {
		case "binary":
			f.Binary = value
		case "link":
			f.Link = value
		case "execute":
			f.Execute = value
		case "intel":
			f.Intel = value
		case "demangle":
			f.Demangle = value
		case "commentonly":
			f.CommentOnly = value
		case "directives":
			f.Directives = value
		case "labels":
			f.Labels = value
		case "optoutput":
			f.OptOutput = value
		}
	}
}

// isBadRequest reports whether err should be surfaced as a 4xx.
func isBadRequest(err error) bool {
	_, ok := err.(*badRequest)
	return ok
}
