// Package cli implements the topofeat command-line interface.
//
// # Commands
//
//   - landscape: persistence diagrams → landscape feature matrix (.npy)
//   - distance: persistence diagrams → pairwise distance matrix (.csv)
//   - diagrams: point clouds → persistence diagrams via an external engine
//   - serve: the same computations over HTTP
//   - cache: inspect and clear the result cache
//
// # Configuration
//
// Defaults come from a config file (see [config.Load]). Command-line flags
// override config values only when given explicitly.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. The logger
// is attached to the command context and retrieved with loggerFromContext.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/topofeat/pkg/config"
	"github.com/matzehuels/topofeat/pkg/observability"
)

// setup runs before every subcommand: it applies --verbose, loads the
// config file and registers the logging hooks.
func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	level := LogInfo
	if c.verbose {
		level = LogDebug
	}
	c.SetLogLevel(level)

	cfg, path, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.Config = cfg
	if path != "" {
		c.Logger.Debug("loaded config", "path", path)
	}

	hooks := observability.NewLogHooks(c.Logger)
	observability.SetPipelineHooks(hooks)
	observability.SetCacheHooks(hooks)
	observability.SetHTTPHooks(hooks)

	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	return nil
}
