package orchestrator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"compilebroker/asmdoc"
	"compilebroker/domain"
	"compilebroker/lib/connector"
)

func (o *Orchestrator) handleHealthcheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (o *Orchestrator) handleListCompilers(c *gin.Context) {
	descriptors := o.registry.List()
	list := make([]domain.Public, len(descriptors))
	for i, d := range descriptors {
		list[i] = d.ToPublic()
	}
	writeCompilerList(c, list)
}

func (o *Orchestrator) handleClientOptions(c *gin.Context) {
	options := make(map[string][]string)
	for _, d := range o.registry.List() {
		if len(d.DefaultOptions) > 0 {
			options[d.ID] = d.DefaultOptions
		}
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}

func (o *Orchestrator) handleAsmDoc(c *gin.Context) {
	doc, ok := asmdoc.Lookup(c.Param("opcode"))
	if !ok {
		connector.RespErr(c, http.StatusNotFound, "no documentation for opcode %q", c.Param("opcode"))
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (o *Orchestrator) handleSource(c *gin.Context) {
	body, contentType, err := o.sources.Fetch(c.Request.Context(), c.Param("handler"), c.Param("action"), c.Param("rest"))
	if err != nil {
		connector.RespErr(c, http.StatusNotImplemented, "source store: %v", err)
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

func (o *Orchestrator) handleCompile(c *gin.Context) {
	id := c.Param("id")
	desc, ok := o.registry.Get(id)
	if !ok {
		connector.RespErr(c, http.StatusNotFound, "unknown compiler id %q", id)
		return
	}
	if desc.IsRemote() {
		o.proxyRemote(c, desc)
		return
	}

	req, _, err := parseCompileRequest(c)
	if err != nil {
		o.respondParseError(c, err)
		return
	}
	o.compileAndRespond(c, desc, req)
}

func (o *Orchestrator) handleLegacyCompile(c *gin.Context) {
	req, compilerID, err := parseCompileRequest(c)
	if err != nil {
		o.respondParseError(c, err)
		return
	}
	if compilerID == "" {
		connector.RespErr(c, http.StatusBadRequest, "missing compiler id")
		return
	}
	desc, ok := o.registry.Get(compilerID)
	if !ok {
		connector.RespErr(c, http.StatusNotFound, "unknown compiler id %q", compilerID)
		return
	}
	if desc.IsRemote() {
		o.proxyRemote(c, desc)
		return
	}
	o.compileAndRespond(c, desc, req)
}

func (o *Orchestrator) respondParseError(c *gin.Context, err error) {
	if isBadRequest(err) {
		connector.RespErr(c, http.StatusBadRequest, "%v", err)
		return
	}
	connector.RespErr(c, http.StatusInternalServerError, "%v", err)
}

func (o *Orchestrator) compileAndRespond(c *gin.Context, desc *domain.CompilerDescriptor, req *domain.CompileRequest) {
	result, err := o.driver.Compile(c.Request.Context(), desc, req)
	if err != nil {
		connector.RespErr(c, http.StatusBadRequest, "%v", err)
		return
	}
	writeCompileResult(c, req, result)
}
