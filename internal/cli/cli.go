package cli

import (
	"context"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/topofeat/pkg/buildinfo"
	"github.com/matzehuels/topofeat/pkg/cache"
	"github.com/matzehuels/topofeat/pkg/config"
	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "topofeat"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Config is loaded by the root command before any subcommand runs.
	Config *config.Config

	configPath string
	verbose    bool
}

// New creates a new CLI instance with a default logger and the built-in
// configuration.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "topofeat turns persistence diagrams into ML features",
		Long: `topofeat computes persistence landscape features and pairwise distance
matrices from persistence diagrams, and generates the diagrams themselves
from point clouds through an external persistence engine.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: $"+config.EnvVar+", ./topofeat.toml, ~/.config/topofeat/config.toml)")

	// Register all subcommands
	root.AddCommand(c.landscapeCommand())
	root.AddCommand(c.distanceCommand())
	root.AddCommand(c.diagramsCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// redisKeyPrefix namespaces keys in a Redis instance shared with other tools.
const redisKeyPrefix = "topofeat:v1:"

// newRunner creates a pipeline runner backed by the configured cache.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	store, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	var keyer cache.Keyer
	if c.Config.Cache.Backend == config.CacheRedis {
		keyer = cache.NewScopedKeyer(cache.NewDefaultKeyer(), redisKeyPrefix)
	}
	runner := pipeline.NewRunner(store, keyer, c.Logger)
	runner.TTL = c.Config.Cache.TTL.Duration()
	return runner, nil
}

// newCache opens the backend named in the [cache] section. An unusable
// file cache directory disables caching instead of failing the command.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch c.Config.Cache.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), nil
	case config.CacheRedis:
		store, err := cache.NewRedisCache(ctx, c.Config.Cache.RedisAddr)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIO, err, "connect to redis at %s", c.Config.Cache.RedisAddr)
		}
		return store, nil
	default:
		dir, err := c.cacheDir()
		if err != nil {
			c.Logger.Warn("cache disabled", "err", err)
			return cache.NewNullCache(), nil
		}
		store, err := cache.NewFileCache(dir)
		if err != nil {
			c.Logger.Warn("cache disabled", "dir", dir, "err", err)
			return cache.NewNullCache(), nil
		}
		return store, nil
	}
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the file cache directory: [cache].dir if set, otherwise
// ~/.cache/topofeat.
func (c *CLI) cacheDir() (string, error) {
	if c.Config.Cache.Dir != "" {
		return filepath.Clean(c.Config.Cache.Dir), nil
	}
	return cache.DefaultDir()
}
