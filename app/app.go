// Package app wires the broker's process lifecycle: config, the gin
// router, background processes, and graceful shutdown. Grounded on
// the teacher's common.TestingSystem.
package app

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"

	"compilebroker/config"
	"compilebroker/lib/logger"
)

// App is the broker's process-lifetime environment, threaded through
// every component instead of package-level globals.
type App struct {
	Config *config.Config
	Router *gin.Engine

	processes []func()
	defers    []func()

	StopCtx  context.Context
	stopFunc context.CancelFunc
	stopWG   sync.WaitGroup
}

// New builds an App from an already-resolved config. Callers own
// loading/merging config layers (config.ReadLayered); App only wires
// the process.
func New(cfg *config.Config) *App {
	logger.InitLogger(cfg.Logger)

	a := &App{Config: cfg}
	a.initServer()
	return a
}

// AddProcess registers a background goroutine started by Run and
// expected to exit once StopCtx is cancelled.
func (a *App) AddProcess(f func()) {
	a.processes = append(a.processes, f)
}

// AddDefer registers cleanup run once, after every process has
// returned, in reverse registration order.
func (a *App) AddDefer(f func()) {
	a.defers = append(a.defers, f)
}

// Go runs f in a new goroutine tracked by the shutdown wait group. A
// panic inside f is caught, logged, and triggers a full shutdown
// rather than crashing the process, matching the teacher's
// runProcess.
func (a *App) Go(f func()) {
	a.stopWG.Add(1)
	go a.runProcess(f)
}

func (a *App) runProcess(f func()) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("background process panicked, shutting down: %v", v)
			a.stopFunc()
		}
		a.stopWG.Done()
	}()
	f()
}

// Run starts every registered background process and the HTTP server,
// blocking until SIGINT/SIGTERM (or an internal panic) triggers
// shutdown, then runs deferred cleanups.
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	a.StopCtx, a.stopFunc = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, process := range a.processes {
		a.Go(process)
	}

	a.runServer()

	a.stopWG.Wait()

	for i := len(a.defers) - 1; i >= 0; i-- {
		a.defers[i]()
	}
}

// Shutdown cancels StopCtx, used by tests and by explicit admin
// endpoints that want a clean stop without a signal.
func (a *App) Shutdown() {
	if a.stopFunc != nil {
		a.stopFunc()
	}
}
