package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"compilebroker/config"
	"compilebroker/domain"
	"compilebroker/lib/logger"
)

// getter resolves a property name to a string, falling through a
// chain of scopes. Grounded on spec.md §4.4's "look up group.<name>.*
// then falls back to the outer getter" rule, generalized into an
// explicit interface instead of ad-hoc nested maps.
type getter interface {
	get(key string) (string, bool)
}

// rootGetter resolves compiler.<id>.<field> properties straight out
// of the top-level RegistryConfig.
type rootGetter struct {
	cfg *config.RegistryConfig
}

func (g rootGetter) get(key string) (string, bool) {
	id, field, ok := splitCompilerKey(key)
	if !ok {
		return "", false
	}
	c, ok := g.cfg.Compiler[id]
	if !ok {
		return "", false
	}
	return fieldOf(c, field)
}

// groupGetter consults a group's own defaults before falling back to
// the parent getter, per spec.md §4.4's group-resolution rule.
type groupGetter struct {
	group  *config.GroupConfig
	parent getter
}

func (g groupGetter) get(key string) (string, bool) {
	if g.group.Defaults != nil {
		_, field, ok := splitCompilerKey(key)
		if ok {
			if v, ok := fieldOf(g.group.Defaults, field); ok {
				return v, ok
			}
		}
	}
	return g.parent.get(key)
}

func splitCompilerKey(key string) (id, field string, ok bool) {
	const prefix = "compiler."
	if !strings.HasPrefix(key, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(key, prefix)
	dot := strings.LastIndex(rest, ".")
	if dot < 0 {
		return "", "", false
	}
	return rest[:dot], rest[dot+1:], true
}

func fieldOf(c *config.CompilerConfig, field string) (string, bool) {
	switch field {
	case "Exe":
		return c.Exe, c.Exe != ""
	case "Remote":
		return c.Remote, c.Remote != ""
	case "Name":
		return c.Name, c.Name != ""
	}
	return "", false
}

type resolver struct {
	cfg    *config.RegistryConfig
	client *peerClient
}

func newResolver(cfg *config.RegistryConfig) *resolver {
	return &resolver{cfg: cfg, client: newPeerClient(cfg)}
}

// resolveSeedList expands a colon-separated seed list per spec.md
// §4.4's per-token resolution rules.
func (r *resolver) resolveSeedList(ctx context.Context, seedList string, g getter) []*domain.CompilerDescriptor {
	var out []*domain.CompilerDescriptor
	for _, token := range strings.Split(seedList, ":") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		out = append(out, r.resolveToken(ctx, token, g)...)
	}
	return out
}

func (r *resolver) resolveToken(ctx context.Context, token string, g getter) []*domain.CompilerDescriptor {
	switch {
	case token == "AWS":
		return r.resolveCloudInstances(ctx)
	case strings.HasPrefix(token, "&"):
		return r.resolveGroup(ctx, strings.TrimPrefix(token, "&"), g)
	case strings.Contains(token, "@"):
		return r.client.fetchPeer(ctx, token)
	default:
		return r.resolveLocal(token, g)
	}
}

func (r *resolver) resolveGroup(ctx context.Context, name string, parent getter) []*domain.CompilerDescriptor {
	group, ok := r.cfg.Group[name]
	if !ok {
		logger.Warn("registry: unknown group %q", name)
		return nil
	}
	g := groupGetter{group: group, parent: parent}
	descriptors := r.resolveSeedList(ctx, group.Compilers, g)
	for _, d := range descriptors {
		d.Group = name
	}
	return descriptors
}

func (r *resolver) resolveLocal(id string, g getter) []*domain.CompilerDescriptor {
	cfgGet := func(field string) (string, bool) { return g.get("compiler." + id + "." + field) }

	exe, _ := cfgGet("Exe")
	remote, _ := cfgGet("Remote")
	name, ok := cfgGet("Name")
	if !ok {
		name = id
	}

	override := r.cfg.Compiler[id]

	d := &domain.CompilerDescriptor{
		ID:     id,
		Name:   name,
		Exe:    exe,
		Remote: remote,
	}
	if override != nil {
		applyOverride(d, override)
	}
	if d.Exe == "" && d.Remote == "" {
		// Bare token with no configured override and no Exe/Remote
		// property resolvable anywhere in the getter chain: treat the
		// token itself as an executable name on PATH.
		d.Exe = id
	}
	return []*domain.CompilerDescriptor{d}
}

func applyOverride(d *domain.CompilerDescriptor, c *config.CompilerConfig) {
	if c.Name != "" {
		d.Name = c.Name
	}
	if c.ParserKind != "" {
		d.ParserKind = domain.ParserKind(c.ParserKind)
	}
	d.DefaultOptions = c.Options
	d.VersionProbe = c.VersionFlag
	d.VersionRegex = c.VersionRe
	d.DemanglerPath = c.Demangler
	d.ObjdumperPath = c.Objdumper
	d.IntelSyntaxFlag = c.IntelAsmFlag
	d.OptRecordFlag = c.OptRecordFlag
	for _, stage := range c.PostProcess {
		if len(stage) == 0 {
			continue
		}
		d.PostProcess = append(d.PostProcess, domain.PostProcessStage{Command: stage[0], Args: stage[1:]})
	}
	if c.SupportsBinary != nil {
		d.Capabilities.SupportsBinary = *c.SupportsBinary
	}
	if c.SupportsExec != nil {
		d.Capabilities.SupportsExecute = *c.SupportsExec
	}
	if c.SupportsIntel != nil {
		d.Capabilities.SupportsIntelAsm = *c.SupportsIntel
	}
	if c.NeedsMultiarch != nil {
		d.Capabilities.NeedsMultiarch = *c.NeedsMultiarch
	}
	if c.SupportsOpt != nil {
		d.Capabilities.SupportsOptRecord = *c.SupportsOpt
	}
}

// androidNDKCompilers enumerates the configured NDK root's toolchain
// subdirectories for a g++-named executable, per spec.md §4.4's
// closing bullet. Grounded on the directory-walking idiom the teacher
// uses in tools/polygon_importer for recursive scans — there is no
// closer teacher analog for "enumerate cross-toolchain directories".
func (r *resolver) androidNDKCompilers() []*domain.CompilerDescriptor {
	if r.cfg.AndroidNDKRoot == "" {
		return nil
	}
	entries, err := os.ReadDir(r.cfg.AndroidNDKRoot)
	if err != nil {
		logger.Warn("registry: can not read android ndk root %s: %v", r.cfg.AndroidNDKRoot, err)
		return nil
	}

	var out []*domain.CompilerDescriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		toolchainDir := filepath.Join(r.cfg.AndroidNDKRoot, entry.Name())
		gxx := findExecutableSuffixed(toolchainDir, "g++")
		if gxx == "" {
			continue
		}
		out = append(out, &domain.CompilerDescriptor{
			ID:         "android-" + entry.Name(),
			Name:       "Android NDK " + entry.Name(),
			Exe:        gxx,
			ParserKind: domain.ParserGCCLike,
			Capabilities: domain.Capabilities{
				SupportsBinary:  true,
				NeedsMultiarch:  true,
				SupportsObjdump: true,
			},
		})
	}
	return out
}

func findExecutableSuffixed(root, suffix string) string {
	var found string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), suffix) {
			found = path
		}
		return nil
	})
	return found
}
