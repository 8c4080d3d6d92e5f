package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/aar10n/portpatch/pkg/logger"
)

// EmbeddedPath is the FilePath reported for the built-in target table.
const EmbeddedPath = "<embedded>"

//go:embed targets.yaml
var defaultTargets []byte

// Kind classifies how a port's portfile is built.
type Kind string

const (
	KindSingle       Kind = "single"
	KindMulti        Kind = "multi"
	KindManualSingle Kind = "manual_single"
	KindCustomSingle Kind = "custom_single"
	KindZipSpecial   Kind = "zip_special"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSingle, KindMulti, KindManualSingle, KindCustomSingle, KindZipSpecial:
		return true
	}
	return false
}

// NeedsEntry reports whether targets of this kind must name their entry point.
func (k Kind) NeedsEntry() bool {
	return k == KindSingle || k == KindManualSingle || k == KindCustomSingle
}

// Automated reports whether the convert job rewrites portfiles of this kind.
func (k Kind) Automated() bool {
	return k == KindSingle || k == KindMulti
}

// Target is one port whose portfile and manifest are migrated.
type Target struct {
	Name   string `yaml:"name" toml:"name"`
	Prefix string `yaml:"prefix" toml:"prefix"`
	Kind   Kind   `yaml:"kind" toml:"kind"`
	Entry  string `yaml:"entry,omitempty" toml:"entry,omitempty"`
}

// Markers holds the literal anchor strings the portfile patches key on.
type Markers struct {
	AlpineInclude  string `yaml:"alpine_include" toml:"alpine_include"`
	SymbolInclude  string `yaml:"symbol_include" toml:"symbol_include"`
	CMakeVars      string `yaml:"cmake_vars" toml:"cmake_vars"`
	CombineSection string `yaml:"combine_section" toml:"combine_section"`
	RawArchive     string `yaml:"raw_archive" toml:"raw_archive"`
}

// Collection describes the object collection step reinserted into a portfile.
type Collection struct {
	Name       string   `yaml:"name" toml:"name"`
	BuildVar   string   `yaml:"build_var" toml:"build_var"`
	ObjVar     string   `yaml:"obj_var" toml:"obj_var"`
	GlobPaths  []string `yaml:"glob_paths" toml:"glob_paths"`
	GlobMode   string   `yaml:"glob_mode" toml:"glob_mode"`
	Exclusions string   `yaml:"exclusions,omitempty" toml:"exclusions,omitempty"`
	ExtraGlob  string   `yaml:"extra_glob,omitempty" toml:"extra_glob,omitempty"`
	RawArchive string   `yaml:"raw_archive" toml:"raw_archive"`
	LibName    string   `yaml:"lib_name" toml:"lib_name"`
	TripletVar string   `yaml:"triplet_var,omitempty" toml:"triplet_var,omitempty"`
}

// Triplet returns the CMake variable naming the target triplet.
func (c *Collection) Triplet() string {
	if c.TripletVar == "" {
		return "TARGET_TRIPLET"
	}
	return c.TripletVar
}

// Rewrite describes a hand-authored replacement of a port's symbol isolation
// section for ports with several program entry points.
type Rewrite struct {
	Name         string   `yaml:"name" toml:"name"`
	BuildVar     string   `yaml:"build_var" toml:"build_var"`
	ObjVar       string   `yaml:"obj_var" toml:"obj_var"`
	GlobPaths    []string `yaml:"glob_paths" toml:"glob_paths"`
	Exclusions   string   `yaml:"exclusions,omitempty" toml:"exclusions,omitempty"`
	Tools        []string `yaml:"tools" toml:"tools"`
	ToolDir      string   `yaml:"tool_dir" toml:"tool_dir"`
	RawArchive   string   `yaml:"raw_archive" toml:"raw_archive"`
	LibName      string   `yaml:"lib_name" toml:"lib_name"`
	StartMarkers []string `yaml:"start_markers" toml:"start_markers"`
	EndMarker    string   `yaml:"end_marker" toml:"end_marker"`
}

// Config is the full migration table.
type Config struct {
	FilePath    string       `yaml:"-" toml:"-"`
	Dependency  string       `yaml:"dependency" toml:"dependency"`
	Markers     Markers      `yaml:"markers" toml:"markers"`
	Targets     []Target     `yaml:"targets" toml:"targets"`
	Collections []Collection `yaml:"collections" toml:"collections"`
	Rewrites    []Rewrite    `yaml:"rewrites" toml:"rewrites"`
}

// GetTargetByName finds a target by name in the config.
func (c *Config) GetTargetByName(name string) *Target {
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i]
		}
	}
	return nil
}

// GetCollectionByName finds an object collection by port name.
func (c *Config) GetCollectionByName(name string) *Collection {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			return &c.Collections[i]
		}
	}
	return nil
}

// GetRewriteByName finds a custom section rewrite by port name.
func (c *Config) GetRewriteByName(name string) *Rewrite {
	for i := range c.Rewrites {
		if c.Rewrites[i].Name == name {
			return &c.Rewrites[i]
		}
	}
	return nil
}

// Known reports whether name is a target, a collection or a rewrite.
func (c *Config) Known(name string) bool {
	return c.GetTargetByName(name) != nil ||
		c.GetCollectionByName(name) != nil ||
		c.GetRewriteByName(name) != nil
}

// Validate performs comprehensive validation on the configuration.
func (c *Config) Validate() error {
	if c.Dependency == "" {
		return fmt.Errorf("no dependency defined")
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("no targets defined")
	}
	if err := c.Markers.validate(); err != nil {
		return err
	}

	names := make(map[string]bool)
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target at index %d missing name", i)
		}
		if names[t.Name] {
			return fmt.Errorf("duplicate target name: %s", t.Name)
		}
		names[t.Name] = true

		if t.Prefix == "" {
			return fmt.Errorf("target %s missing prefix", t.Name)
		}
		if !t.Kind.Valid() {
			return fmt.Errorf("target %s has unknown kind %q", t.Name, t.Kind)
		}
		if t.Kind.NeedsEntry() && t.Entry == "" {
			return fmt.Errorf("target %s of kind %s missing entry point", t.Name, t.Kind)
		}
	}

	seen := make(map[string]bool)
	for i, col := range c.Collections {
		if col.Name == "" {
			return fmt.Errorf("collection at index %d missing name", i)
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate collection name: %s", col.Name)
		}
		seen[col.Name] = true
		if err := col.validate(); err != nil {
			return err
		}
	}

	seen = make(map[string]bool)
	for i, rw := range c.Rewrites {
		if rw.Name == "" {
			return fmt.Errorf("rewrite at index %d missing name", i)
		}
		if seen[rw.Name] {
			return fmt.Errorf("duplicate rewrite name: %s", rw.Name)
		}
		seen[rw.Name] = true
		if err := rw.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (m *Markers) validate() error {
	missing := []string{}
	if m.AlpineInclude == "" {
		missing = append(missing, "alpine_include")
	}
	if m.SymbolInclude == "" {
		missing = append(missing, "symbol_include")
	}
	if m.CMakeVars == "" {
		missing = append(missing, "cmake_vars")
	}
	if m.CombineSection == "" {
		missing = append(missing, "combine_section")
	}
	if m.RawArchive == "" {
		missing = append(missing, "raw_archive")
	}
	if len(missing) > 0 {
		return fmt.Errorf("markers missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Collection) validate() error {
	switch {
	case c.BuildVar == "":
		return fmt.Errorf("collection %s missing build_var", c.Name)
	case c.ObjVar == "":
		return fmt.Errorf("collection %s missing obj_var", c.Name)
	case len(c.GlobPaths) == 0:
		return fmt.Errorf("collection %s missing glob_paths", c.Name)
	case c.GlobMode != "GLOB" && c.GlobMode != "GLOB_RECURSE":
		return fmt.Errorf("collection %s has unknown glob_mode %q", c.Name, c.GlobMode)
	case c.RawArchive == "":
		return fmt.Errorf("collection %s missing raw_archive", c.Name)
	case c.LibName == "":
		return fmt.Errorf("collection %s missing lib_name", c.Name)
	}
	return nil
}

func (r *Rewrite) validate() error {
	switch {
	case r.BuildVar == "":
		return fmt.Errorf("rewrite %s missing build_var", r.Name)
	case r.ObjVar == "":
		return fmt.Errorf("rewrite %s missing obj_var", r.Name)
	case len(r.GlobPaths) == 0:
		return fmt.Errorf("rewrite %s missing glob_paths", r.Name)
	case len(r.Tools) == 0:
		return fmt.Errorf("rewrite %s missing tools", r.Name)
	case r.RawArchive == "" || r.LibName == "":
		return fmt.Errorf("rewrite %s missing archive names", r.Name)
	case len(r.StartMarkers) == 0:
		return fmt.Errorf("rewrite %s missing start_markers", r.Name)
	case r.EndMarker == "":
		return fmt.Errorf("rewrite %s missing end_marker", r.Name)
	}
	return nil
}

// LoadDefault parses the built-in target table.
func LoadDefault() (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(defaultTargets, &config); err != nil {
		return nil, fmt.Errorf("failed to parse embedded targets: %w", err)
	}
	config.FilePath = EmbeddedPath
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("embedded targets: %w", err)
	}
	return &config, nil
}

// LoadConfig reads and parses a migration table (YAML or TOML).
// If path is empty, it looks for a table in the current directory and falls
// back to the built-in one.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		logger.Debug("No config file specified, attempting auto-discovery")
		found, err := findConfigFile()
		if err != nil {
			logger.Debug("Using embedded target table (%v)", err)
			return LoadDefault()
		}
		configPath = found
	}

	logger.Debug("Loading configuration from: %s", configPath)

	configPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config type: %s", filepath.Ext(configPath))
	}

	config.FilePath = configPath
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func findConfigFile() (string, error) {
	candidates := []string{"portpatch.yaml", "portpatch.yml", "portpatch.toml"}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no config file found (tried: %s)", strings.Join(candidates, ", "))
}
