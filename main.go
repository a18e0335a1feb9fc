package main

import (
	"os"
	"runtime"

	"compilebroker/app"
	"compilebroker/config"
	"compilebroker/driver"
	"compilebroker/lib/logger"
	"compilebroker/metrics"
	"compilebroker/orchestrator"
	"compilebroker/registry"
	"compilebroker/resultcache"
	"compilebroker/workspace"
)

// main takes one positional argument, the configuration directory,
// the same way the teacher's main.go takes a single configPath. The
// --env and --language flags of spec.md §6 are carried as environment
// variables read here rather than a bespoke flag parser (see
// DESIGN.md): BROKER_ENV (comma-separated) and BROKER_LANGUAGE select
// which layered YAML documents load.
func main() {
	if len(os.Args) < 2 {
		os.Stderr.WriteString("usage: compilebroker <config-dir>\n")
		os.Exit(2)
	}
	configDir := os.Args[1]

	hostname, err := os.Hostname()
	if err != nil {
		hostname = ""
	}
	paths := config.LayerPaths(configDir, splitCSV(os.Getenv("BROKER_ENV")), os.Getenv("BROKER_LANGUAGE"), runtime.GOOS, hostname)

	cfg, err := config.ReadLayered(paths...)
	if err != nil {
		logger.Panic("can not load config: %v", err)
	}

	a := app.New(cfg)

	collector := metrics.NewCollector()

	if err := setupBroker(a, collector); err != nil {
		logger.Panic("can not set up broker: %v", err)
	}

	a.Run()
}

// setupBroker wires C3-C9 against an already-built App, mirroring
// invoker.SetupInvoker's shape: build each component, register its
// background process and/or routes, return the first setup error.
func setupBroker(a *app.App, collector *metrics.Collector) error {
	pool, err := workspace.New(&a.Config.Workspace)
	if err != nil {
		return err
	}
	a.AddProcess(func() { pool.RunSweeper(a.StopCtx, a.Config.Workspace.CleanupInterval) })

	cache := resultcache.New(&a.Config.Cache)
	cache.SetMetrics(collector)

	drv := driver.New(&a.Config.Compile, &a.Config.Sandbox, pool, cache)
	drv.SetMetrics(collector)

	reg := registry.New(&a.Config.Registry)
	reg.SetMetrics(collector)
	a.AddProcess(func() { reg.RunRescanLoop(a.StopCtx) })

	orc := orchestrator.New(reg, drv, a.Config.Registry.ProxyTimeout).WithMetrics(collector)
	orc.Register(a.Router)

	logger.Info("broker configured")
	return nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
