// Package config implements the layered property store described in
// spec.md §6: a set of YAML documents merged, in order, into one
// typed Config. Each layer may be absent; layers found later in the
// list win over earlier ones for any key they define.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xorcare/pointer"
	"gopkg.in/yaml.v3"

	"compilebroker/lib/customfields"
	"compilebroker/lib/logger"
)

// Config is the fully-resolved, typed configuration for one broker
// process. It is produced by ReadLayered, never mutated afterwards.
type Config struct {
	Port int     `yaml:"Port"`
	Host *string `yaml:"Host,omitempty"`

	Logger *logger.Config `yaml:"Logger,omitempty"`

	Registry  RegistryConfig  `yaml:"Registry"`
	Compile   CompileConfig   `yaml:"Compile"`
	Sandbox   SandboxConfig   `yaml:"Sandbox"`
	Workspace WorkspaceConfig `yaml:"Workspace"`
	Cache     CacheConfig     `yaml:"Cache"`

	BodyParserLimit customfields.Memory `yaml:"BodyParserLimit"`
}

// RegistryConfig drives C4, the Compiler Registry.
type RegistryConfig struct {
	// Compilers is the colon-separated seed list (spec.md §4.4).
	Compilers string `yaml:"Compilers"`

	// Compiler holds per-id overrides, keyed by compiler id
	// ("compiler.<id>.*" in spec.md §6).
	Compiler map[string]*CompilerConfig `yaml:"Compiler"`
	// Group holds named group defaults ("group.<g>.*").
	Group map[string]*GroupConfig `yaml:"Group"`

	AndroidNDKRoot string `yaml:"AndroidNDKRoot"`

	ProxyRetries    int           `yaml:"ProxyRetries"`
	ProxyRetryDelay time.Duration `yaml:"ProxyRetryDelay"`
	ProxyTimeout    time.Duration `yaml:"ProxyTimeout"`

	RescanInterval time.Duration `yaml:"RescanInterval"`

	ExternalTestMode bool `yaml:"ExternalTestMode"`

	// SelfPort is used when resolving peers reached through the cloud
	// instance registry (spec.md §4.4: "the broker's configured port").
	SelfPort int `yaml:"SelfPort"`
}

type CompilerConfig struct {
	Exe            string            `yaml:"Exe"`
	Remote         string            `yaml:"Remote"`
	Name           string            `yaml:"Name"`
	ParserKind     string            `yaml:"CompilerType"`
	Options        []string          `yaml:"Options"`
	VersionFlag    string            `yaml:"VersionFlag"`
	VersionRe      string            `yaml:"VersionRe"`
	Demangler      string            `yaml:"Demangler"`
	Objdumper      string            `yaml:"Objdumper"`
	IntelAsmFlag   string            `yaml:"IntelAsm"`
	OptRecordFlag  string            `yaml:"OptRecordFlag"`
	PostProcess    [][]string        `yaml:"PostProcess"`
	SupportsBinary *bool             `yaml:"SupportsBinary,omitempty"`
	SupportsExec   *bool             `yaml:"SupportsExecute,omitempty"`
	SupportsIntel  *bool             `yaml:"SupportsIntelAsm,omitempty"`
	NeedsMultiarch *bool             `yaml:"NeedsMultiarch,omitempty"`
	SupportsOpt    *bool             `yaml:"SupportsOptRecord,omitempty"`
	Env            map[string]string `yaml:"Env"`
}

type GroupConfig struct {
	Compilers string          `yaml:"Compilers"`
	Defaults  *CompilerConfig `yaml:"Defaults,omitempty"`
}

// CompileConfig drives C5, the Compiler Driver.
type CompileConfig struct {
	TimeoutMs           int64               `yaml:"CompileTimeoutMs"`
	MaxErrorOutput      customfields.Memory `yaml:"MaxErrorOutput"`
	MaxAsmSize          customfields.Memory `yaml:"MaxAsmSize"`
	MaxExecutableOutput customfields.Memory `yaml:"MaxExecutableOutputSize"`
	StubRe              string              `yaml:"StubRe"`
	StubText            string              `yaml:"StubText"`
	ForbiddenOptions    []string            `yaml:"ForbiddenOptions"`
	LaneWidth           int                 `yaml:"LaneWidth"`
}

// SandboxConfig drives C2.
type SandboxConfig struct {
	Type          string              `yaml:"Type"` // "docker" or "none"
	TimeoutMs     int64               `yaml:"TimeoutMs"`
	MaxOutput     customfields.Memory `yaml:"MaxOutput"`
	CPUShares     int64               `yaml:"CPUShares"`
	CPUQuotaUs    int64               `yaml:"CPUQuotaUs"`
	CPUPeriodUs   int64               `yaml:"CPUPeriodUs"`
	MaxOpenFiles  uint64              `yaml:"MaxOpenFiles"`
	CPUTimeLimitS int64               `yaml:"CPUTimeLimitS"`
	MemoryLimit   customfields.Memory `yaml:"MemoryLimit"`
	Image         string              `yaml:"Image"`
}

// WorkspaceConfig drives C3.
type WorkspaceConfig struct {
	Root            string        `yaml:"Root"`
	CleanupInterval time.Duration `yaml:"CleanupInterval"`
}

// CacheConfig drives C8.
type CacheConfig struct {
	SizeBound     customfields.Memory `yaml:"SizeBound"`
	CompressAbove customfields.Memory `yaml:"CompressAbove"`
}

// ReadLayered loads and merges, in order, the YAML documents named by
// paths that exist on disk. Missing files are silently skipped (a
// layer is optional), matching spec.md §6's merge order: defaults,
// each configured environment, the chosen language, each env+platform
// pair, platform, hostname, local.
func ReadLayered(paths ...string) (*Config, error) {
	merged := map[string]interface{}{}

	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config: can not read layer %s: %w", p, err)
		}
		var layer map[string]interface{}
		if err := yaml.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("config: can not parse layer %s: %w", p, err)
		}
		mergeMaps(merged, layer)
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("config: can not remarshal merged layers: %w", err)
	}

	cfg := new(Config)
	if err := yaml.Unmarshal(out, cfg); err != nil {
		return nil, fmt.Errorf("config: can not decode merged config: %w", err)
	}
	fillIn(cfg)
	return cfg, nil
}

// LayerPaths builds the spec.md §6 merge order for a config directory.
func LayerPaths(dir string, envs []string, language, platform, hostname string) []string {
	paths := []string{filepath.Join(dir, "defaults.yaml")}
	for _, env := range envs {
		paths = append(paths, filepath.Join(dir, "env", env+".yaml"))
	}
	if language != "" {
		paths = append(paths, filepath.Join(dir, "lang", language+".yaml"))
	}
	for _, env := range envs {
		if platform != "" {
			paths = append(paths, filepath.Join(dir, "env", env+"."+platform+".yaml"))
		}
	}
	if platform != "" {
		paths = append(paths, filepath.Join(dir, "platform", platform+".yaml"))
	}
	if hostname != "" {
		paths = append(paths, filepath.Join(dir, "host", hostname+".yaml"))
	}
	paths = append(paths, filepath.Join(dir, "local.yaml"))
	return paths
}

func mergeMaps(dst, src map[string]interface{}) {
	for k, v := range src {
		if sv, ok := v.(map[string]interface{}); ok {
			if dv, ok := dst[k].(map[string]interface{}); ok {
				mergeMaps(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

func fillIn(c *Config) {
	if c.Host == nil {
		c.Host = pointer.String("localhost")
	}
	if c.Port == 0 {
		c.Port = 10240
	}
	if c.Registry.ProxyRetries == 0 {
		c.Registry.ProxyRetries = 3
	}
	if c.Registry.ProxyRetryDelay == 0 {
		c.Registry.ProxyRetryDelay = 500 * time.Millisecond
	}
	if c.Registry.ProxyTimeout == 0 {
		c.Registry.ProxyTimeout = 5 * time.Second
	}
	if c.Registry.RescanInterval == 0 {
		c.Registry.RescanInterval = 5 * time.Minute
	}
	if c.Registry.SelfPort == 0 {
		c.Registry.SelfPort = c.Port
	}
	if c.Compile.TimeoutMs == 0 {
		c.Compile.TimeoutMs = 10000
	}
	if c.Compile.MaxErrorOutput == 0 {
		_ = c.Compile.MaxErrorOutput.FromStr("1m")
	}
	if c.Compile.MaxAsmSize == 0 {
		_ = c.Compile.MaxAsmSize.FromStr("8m")
	}
	if c.Compile.MaxExecutableOutput == 0 {
		_ = c.Compile.MaxExecutableOutput.FromStr("32m")
	}
	if c.Compile.LaneWidth == 0 {
		c.Compile.LaneWidth = 4
	}
	if c.Sandbox.Type == "" {
		c.Sandbox.Type = "none"
	}
	if c.Sandbox.TimeoutMs == 0 {
		c.Sandbox.TimeoutMs = 3000
	}
	if c.Sandbox.MaxOutput == 0 {
		_ = c.Sandbox.MaxOutput.FromStr("64k")
	}
	if c.Sandbox.CPUShares == 0 {
		c.Sandbox.CPUShares = 128
	}
	if c.Sandbox.CPUQuotaUs == 0 {
		c.Sandbox.CPUQuotaUs = 25000
	}
	if c.Sandbox.CPUPeriodUs == 0 {
		c.Sandbox.CPUPeriodUs = 100000
	}
	if c.Sandbox.MaxOpenFiles == 0 {
		c.Sandbox.MaxOpenFiles = 20
	}
	if c.Sandbox.CPUTimeLimitS == 0 {
		c.Sandbox.CPUTimeLimitS = 3
	}
	if c.Sandbox.MemoryLimit == 0 {
		_ = c.Sandbox.MemoryLimit.FromStr("128m")
	}
	if c.Sandbox.Image == "" {
		c.Sandbox.Image = "compilebroker/execenv:latest"
	}
	if c.Workspace.Root == "" {
		c.Workspace.Root = os.TempDir()
	}
	if c.Workspace.CleanupInterval == 0 {
		c.Workspace.CleanupInterval = time.Minute
	}
	if c.Cache.SizeBound == 0 {
		_ = c.Cache.SizeBound.FromStr("256m")
	}
	if c.Cache.CompressAbove == 0 {
		_ = c.Cache.CompressAbove.FromStr("4k")
	}
	if c.BodyParserLimit == 0 {
		_ = c.BodyParserLimit.FromStr("10m")
	}
}
