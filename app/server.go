package app

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"compilebroker/lib/logger"
)

func (a *App) recoverRequest(c *gin.Context, err any) {
	if err != nil {
		logger.Error("panic in handler %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (a *App) initServer() {
	gin.SetMode(gin.ReleaseMode)
	a.Router = gin.New()

	if logger.GetLevel() <= logger.LogLevelTrace {
		a.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			Output: logger.CreateWriter(logger.LogLevelTrace, "Handler log:"),
		}))
	}
	a.Router.Use(gin.CustomRecoveryWithWriter(
		logger.CreateWriter(logger.LogLevelError, "Panic in handler:"),
		a.recoverRequest,
	))
}

func (a *App) runServer() {
	addr := ":" + strconv.Itoa(a.Config.Port)
	if a.Config.Host != nil {
		addr = *a.Config.Host + addr
	}
	logger.Info("Starting server at " + addr)
	server := http.Server{
		Addr:    addr,
		Handler: a.Router,
	}
	go func() {
		<-a.StopCtx.Done()
		logger.Info("Shutting down server")
		server.Shutdown(context.Background())
	}()
	server.ListenAndServe()
}
