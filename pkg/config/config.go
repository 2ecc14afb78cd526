// Package config loads topofeat settings from a TOML or YAML file.
//
// Config file locations (priority order):
//  1. the --config flag
//  2. $TOPOFEAT_CONFIG
//  3. ./topofeat.toml
//  4. ~/.config/topofeat/config.toml
//
// When no file is found the defaults are used. Fields missing from a file
// keep their default values; unknown fields are rejected so that typos do
// not silently fall back to defaults.
//
// Example topofeat.toml:
//
//	workers = 8
//
//	[grid]
//	xmin = 0.0
//	xmax = 0.4
//	n_nodes = 200
//	n_layers = 5
//	max_width = 1048576
//
//	[distance]
//	metric = "exec"
//	metric_cmd = "python3 bottleneck.py"
//	metric_version = "1.2"
//	policy = "best-effort"
//	pair_timeout = "30s"
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
package config

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/engine"
	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/landscape"
)

// EnvVar names the environment variable holding a config file path.
const EnvVar = "TOPOFEAT_CONFIG"

// Metric names accepted in [distance].metric.
const (
	MetricLandscape = "landscape"
	MetricExec      = "exec"
)

// Cache backends accepted in [cache].backend.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config is the complete topofeat configuration.
type Config struct {
	Workers  int            `toml:"workers" yaml:"workers"`
	Grid     GridConfig     `toml:"grid" yaml:"grid"`
	Distance DistanceConfig `toml:"distance" yaml:"distance"`
	Engine   EngineConfig   `toml:"engine" yaml:"engine"`
	Cache    CacheConfig    `toml:"cache" yaml:"cache"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
}

// GridConfig is the landscape sampling grid.
type GridConfig struct {
	XMin   float64 `toml:"xmin" yaml:"xmin"`
	XMax   float64 `toml:"xmax" yaml:"xmax"`
	Nodes  int     `toml:"n_nodes" yaml:"n_nodes"`
	Layers int     `toml:"n_layers" yaml:"n_layers"`
	// MaxWidth bounds n_layers*n_nodes for every landscape computed,
	// including the sizes requested by HTTP clients.
	MaxWidth int `toml:"max_width" yaml:"max_width"`
}

// DistanceConfig selects and configures the distance metric.
type DistanceConfig struct {
	Metric      string   `toml:"metric" yaml:"metric"`
	P           float64  `toml:"p" yaml:"p"`
	Policy      string   `toml:"policy" yaml:"policy"`
	PairTimeout Duration `toml:"pair_timeout" yaml:"pair_timeout"`
	MetricCmd   string   `toml:"metric_cmd" yaml:"metric_cmd"`
	// MetricVersion is part of the exec metric's cache identity.
	MetricVersion string `toml:"metric_version" yaml:"metric_version"`
}

// EngineConfig configures the external persistence engine.
type EngineConfig struct {
	Cmd            string   `toml:"cmd" yaml:"cmd"`
	MinPersistence float64  `toml:"min_persistence" yaml:"min_persistence"`
	MaxAlphaSquare float64  `toml:"max_alpha_square" yaml:"max_alpha_square"`
	Timeout        Duration `toml:"timeout" yaml:"timeout"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend   string   `toml:"backend" yaml:"backend"`
	Dir       string   `toml:"dir" yaml:"dir"`
	RedisAddr string   `toml:"redis_addr" yaml:"redis_addr"`
	TTL       Duration `toml:"ttl" yaml:"ttl"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Grid: GridConfig{
			XMin:     landscape.DefaultXMin,
			XMax:     landscape.DefaultXMax,
			Nodes:    landscape.DefaultNodes,
			Layers:   landscape.DefaultLayers,
			MaxWidth: landscape.DefaultMaxWidth,
		},
		Distance: DistanceConfig{
			Metric: MetricLandscape,
			P:      2,
			Policy: distance.FailFast.String(),
		},
		Engine: EngineConfig{
			MaxAlphaSquare: engine.DefaultMaxAlphaSquare,
		},
		Cache: CacheConfig{
			Backend: CacheFile,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load finds and loads the config file, or returns defaults if none is
// found. explicit, when non-empty, must name an existing file. The second
// return value is the path that was loaded, empty for defaults.
func Load(explicit string) (*Config, string, error) {
	path, err := FindPath(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := LoadFromPath(path)
	return cfg, path, err
}

// FindPath resolves the config file location.
func FindPath(explicit string) (string, error) {
	if explicit != "" {
		if err := errors.ValidateInputFile(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	if env := os.Getenv(EnvVar); env != "" {
		if err := errors.ValidateInputFile(env); err != nil {
			return "", errors.Wrap(errors.GetCode(err), err, "$%s", EnvVar)
		}
		return env, nil
	}

	candidates := []string{"topofeat.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "topofeat", "config.toml"))
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

// LoadFromPath loads and validates the config file at path. Files ending
// in .yaml or .yml are YAML; everything else is TOML.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read config %s", path)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config %s", path)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "config %s: unknown keys %v", path, undecoded)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Grid.MaxWidth < 1 {
		return errors.New(errors.ErrCodeInvalidGrid, "max_width must be >= 1, got %d", c.Grid.MaxWidth)
	}
	if err := landscape.CheckWidth(c.LandscapeGrid(), c.Grid.Layers, c.Grid.MaxWidth); err != nil {
		return err
	}
	switch c.Distance.Metric {
	case MetricLandscape, MetricExec:
	default:
		return errors.New(errors.ErrCodeUnsupportedMetric, "unknown metric %q (must be %s or %s)",
			c.Distance.Metric, MetricLandscape, MetricExec)
	}
	if math.IsNaN(c.Distance.P) || c.Distance.P < 1 {
		return errors.New(errors.ErrCodeUnsupportedMetric, "distance p must be >= 1, got %g", c.Distance.P)
	}
	if _, err := distance.ParsePolicy(c.Distance.Policy); err != nil {
		return err
	}
	if c.Distance.PairTimeout < 0 || c.Engine.Timeout < 0 || c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "durations must not be negative")
	}
	if c.Engine.MinPersistence < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "min_persistence must be >= 0, got %g", c.Engine.MinPersistence)
	}
	if !(c.Engine.MaxAlphaSquare > 0) {
		return errors.New(errors.ErrCodeInvalidInput, "max_alpha_square must be > 0, got %g", c.Engine.MaxAlphaSquare)
	}
	switch c.Cache.Backend {
	case CacheFile, CacheNone:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidInput, "cache backend redis requires redis_addr")
		}
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q (must be file, redis or none)", c.Cache.Backend)
	}
	if c.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// LandscapeGrid returns the [grid] section as a landscape.Grid.
func (c *Config) LandscapeGrid() landscape.Grid {
	return landscape.Grid{XMin: c.Grid.XMin, XMax: c.Grid.XMax, Nodes: c.Grid.Nodes}
}
