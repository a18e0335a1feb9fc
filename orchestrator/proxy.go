package orchestrator

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"compilebroker/domain"
	"compilebroker/lib/connector"
	"compilebroker/lib/logger"
)

// proxyRemote forwards c's request unchanged (method, headers, body,
// path) to desc.Remote and streams the reply straight back, per
// spec.md §4.9/§8's remote-transparency property. The local pipeline
// is never engaged for a remote descriptor.
func (o *Orchestrator) proxyRemote(c *gin.Context, desc *domain.CompilerDescriptor) {
	base := "http://" + strings.Replace(desc.Remote, "@", ":", 1)
	url := base + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		url += "?" + c.Request.URL.RawQuery
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		connector.RespErr(c, 400, "could not read request body: %v", err)
		return
	}

	req := o.proxy.R().
		SetContext(c.Request.Context()).
		SetDoNotParseResponse(true).
		SetBody(body)
	for name, values := range c.Request.Header {
		for _, v := range values {
			req.SetHeader(name, v)
		}
	}

	resp, err := req.Execute(c.Request.Method, url)
	if err != nil {
		logger.Warn("orchestrator: proxy to %s failed: %v", desc.Remote, err)
		connector.RespErr(c, 502, "remote compiler %s unreachable: %v", desc.ID, err)
		return
	}
	raw := resp.RawBody()
	defer raw.Close()

	for name, values := range resp.Header() {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Status(resp.StatusCode())
	if _, err := io.Copy(c.Writer, raw); err != nil {
		logger.Warn("orchestrator: streaming proxy response from %s: %v", desc.Remote, err)
	}
}
