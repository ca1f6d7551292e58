// Package config loads isolate configuration from HCL.
//
// A configuration file looks like:
//
//	source {
//	  dirs = ["./modules", "${env.HOME}/.isolate/modules"]
//	}
//
//	delegation {
//	  support          = ["isolate.trace.local"]
//	  trusted_prefixes = ["isolate.util."]
//	}
//
//	runtime {
//	  memory_limit_pages = 256
//	}
//
//	trace {
//	  enabled = true
//	}
//
//	log {
//	  level = "debug"
//	}
//
//	marker {
//	  names    = ["Sample"]
//	  prefixes = ["acme.app.internal."]
//	  section  = "isolate.woven"
//	  payload  = "v1"
//	}
//
// Every block is optional. Environment variables are available as env.NAME.
package config

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-isolate/errors"
	"github.com/wippyai/wasm-isolate/loader"
)

// Config is the decoded configuration with defaults applied.
type Config struct {
	// SourceDirs are searched in order for module resources.
	SourceDirs []string

	// Policy is the delegation policy of the isolated loader.
	Policy loader.Policy

	// MemoryLimitPages caps guest memory; 0 leaves wazero's default.
	MemoryLimitPages uint32

	// TraceEnabled is the initial tracing policy.
	TraceEnabled bool

	LogLevel zapcore.Level

	// Marker is nil when no marker block is present.
	Marker *Marker
}

// Marker configures a marker transformer. A module is marked when its
// simple name is in Names or its dotted name starts with one of Prefixes.
type Marker struct {
	Names    []string
	Prefixes []string
	Section  string
	Payload  []byte
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SourceDirs:   []string{"."},
		Policy:       loader.DefaultPolicy(),
		TraceEnabled: true,
		LogLevel:     zapcore.InfoLevel,
	}
}

type fileRoot struct {
	Source     *sourceBlock     `hcl:"source,block"`
	Delegation *delegationBlock `hcl:"delegation,block"`
	Runtime    *runtimeBlock    `hcl:"runtime,block"`
	Trace      *traceBlock      `hcl:"trace,block"`
	Log        *logBlock        `hcl:"log,block"`
	Marker     *markerBlock     `hcl:"marker,block"`
}

type sourceBlock struct {
	Dirs []string `hcl:"dirs"`
}

type delegationBlock struct {
	Support         []string `hcl:"support,optional"`
	TrustedPrefixes []string `hcl:"trusted_prefixes,optional"`
}

type runtimeBlock struct {
	MemoryLimitPages int `hcl:"memory_limit_pages,optional"`
}

type traceBlock struct {
	Enabled bool `hcl:"enabled"`
}

type logBlock struct {
	Level string `hcl:"level"`
}

type markerBlock struct {
	Names    []string `hcl:"names,optional"`
	Prefixes []string `hcl:"prefixes,optional"`
	Section  string   `hcl:"section,optional"`
	Payload  string   `hcl:"payload,optional"`
}

// maxMemoryPages is the 4GiB limit of a 32-bit memory.
const maxMemoryPages = 65536

// LoadFile parses and decodes the HCL file at path.
func LoadFile(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config("read "+path, err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Config("parse "+filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &root); diags.HasErrors() {
		return nil, errors.Config("decode "+filename, diags)
	}
	return root.build()
}

func (r *fileRoot) build() (*Config, error) {
	cfg := Default()

	if r.Source != nil {
		if len(r.Source.Dirs) == 0 {
			return nil, errors.Config("source.dirs must not be empty", nil)
		}
		cfg.SourceDirs = r.Source.Dirs
	}

	if d := r.Delegation; d != nil {
		if d.Support != nil {
			cfg.Policy.SupportNames = d.Support
		}
		if d.TrustedPrefixes != nil {
			cfg.Policy.TrustedPrefixes = d.TrustedPrefixes
		}
	}

	if r.Runtime != nil {
		pages := r.Runtime.MemoryLimitPages
		if pages < 0 || pages > maxMemoryPages {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(pages).
				Detail("runtime.memory_limit_pages must be between 0 and %d", maxMemoryPages).
				Build()
		}
		cfg.MemoryLimitPages = uint32(pages)
	}

	if r.Trace != nil {
		cfg.TraceEnabled = r.Trace.Enabled
	}

	if r.Log != nil {
		level, err := zapcore.ParseLevel(r.Log.Level)
		if err != nil {
			return nil, errors.Config("log.level", err)
		}
		cfg.LogLevel = level
	}

	if m := r.Marker; m != nil {
		if len(m.Names) == 0 && len(m.Prefixes) == 0 {
			return nil, errors.Config("marker needs names or prefixes", nil)
		}
		for _, p := range m.Prefixes {
			if p == "" {
				return nil, errors.Config("marker.prefixes must not contain an empty prefix", nil)
			}
		}
		cfg.Marker = &Marker{
			Names:    m.Names,
			Prefixes: m.Prefixes,
			Section:  m.Section,
			Payload:  []byte(m.Payload),
		}
	}

	return cfg, nil
}

// evalContext exposes the process environment as env.NAME.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !hclIdent(name) {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

// hclIdent reports whether name can be used as an attribute name in a
// traversal. Windows exposes names like "=C:" that cannot.
func hclIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '-' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}
