package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/topofeat/pkg/engine"
	"github.com/matzehuels/topofeat/pkg/errors"
)

// diagramsCommand creates the diagrams command.
func (c *CLI) diagramsCommand() *cobra.Command {
	var (
		f              stageFlags
		engineCmd      string
		minPersistence float64
		maxAlphaSquare float64
	)

	cmd := &cobra.Command{
		Use:   "diagrams",
		Short: "Generate persistence diagrams from point clouds",
		Long: `Run an external persistence engine over every point cloud in --raw-data
and keep the intervals of one homological dimension.

The raw data is a 3-D .npy array (clouds × points × 3) or a JSON document
{"clouds": [[[x,y,z], ...], ...]}. The engine reads
{"points", "min_persistence", "max_alpha_square"} on stdin and writes
[[dim, [birth, death]], ...] to stdout. Diagrams are saved to
<save>/persistence_diagrams_<dim>dim.json.`,
		Example: `  topofeat diagrams --dim 1 --raw-data clouds.npy --save data --engine-cmd "alpha-persistence"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts, err := c.options(cmd, &f)
			if err != nil {
				return err
			}
			opts.RawData = f.dgms

			cfg := c.Config.Engine
			changed := cmd.Flags().Changed
			if changed("engine-cmd") {
				cfg.Cmd = engineCmd
			}
			if changed("min-persistence") {
				cfg.MinPersistence = minPersistence
			}
			if changed("max-alpha-square") {
				cfg.MaxAlphaSquare = maxAlphaSquare
			}
			opts.MinPersistence = cfg.MinPersistence

			if cfg.Cmd == "" {
				return errors.New(errors.ErrCodeInvalidInput, "no persistence engine configured (use --engine-cmd or [engine].cmd)")
			}
			command, err := engine.ParseCommand(cfg.Cmd)
			if err != nil {
				return err
			}
			if err := command.Validate(); err != nil {
				return err
			}
			eng := engine.NewExec(command)
			eng.MaxAlphaSquare = cfg.MaxAlphaSquare
			eng.Timeout = cfg.Timeout.Duration()
			opts.Engine = eng

			runner, err := c.newRunner(ctx, true)
			if err != nil {
				return err
			}
			defer runner.Close()

			prog := newProgress(loggerFromContext(ctx))
			onProgress, stop := c.track(ctx, "Computing persistence")
			opts.Progress = onProgress
			result, err := runner.Diagrams(ctx, opts)
			stop()
			if err != nil {
				return err
			}
			prog.done("persistence diagrams", "run", result.RunID)

			printSuccess("Successfully saved in %s!", result.Path)
			printStats(false,
				fmt.Sprintf("%d diagrams", result.Collection.Len()),
				fmt.Sprintf("%d points", result.Collection.Points()))
			printNextStep("Compute features", fmt.Sprintf("topofeat landscape --dim %d --dgms %s --save <dir>", opts.Dimension, opts.SaveDir))
			return nil
		},
	}

	f.addIOFlags(cmd, "raw-data", "point cloud file (.npy or .json)")
	cmd.Flags().IntVar(&f.workers, flagWorkers, 0, "worker goroutines (0 = all CPUs)")
	cmd.Flags().StringVar(&engineCmd, "engine-cmd", "", "command line of the persistence engine")
	cmd.Flags().Float64Var(&minPersistence, "min-persistence", 0, "drop intervals with persistence below this value")
	cmd.Flags().Float64Var(&maxAlphaSquare, "max-alpha-square", engine.DefaultMaxAlphaSquare, "filtration bound; infinite deaths are clipped to it")
	return cmd
}
