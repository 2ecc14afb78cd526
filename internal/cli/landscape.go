package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// landscapeCommand creates the landscape command.
func (c *CLI) landscapeCommand() *cobra.Command {
	var f stageFlags

	cmd := &cobra.Command{
		Use:   "landscape",
		Short: "Compute persistence landscape features",
		Long: `Compute persistence landscape features for every diagram of one
homological dimension.

Reads persistence_diagrams_<dim>dim.npy (or .json) from --dgms and writes an
N×(n_nodes·n_ld) feature matrix to <save>/persistence_landscapes_<dim>dim.npy.`,
		Example: `  topofeat landscape --dim 1 --dgms data --save out
  topofeat landscape --dim 0 --dgms data --save out --xmax 1 --n-nodes 100 --n-ld 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts, err := c.options(cmd, &f)
			if err != nil {
				return err
			}

			runner, err := c.newRunner(ctx, f.noCache)
			if err != nil {
				return err
			}
			defer runner.Close()

			prog := newProgress(loggerFromContext(ctx))
			onProgress, stop := c.track(ctx, "Computing landscapes")
			opts.Progress = onProgress
			result, err := runner.Features(ctx, opts)
			stop()
			if err != nil {
				return err
			}
			prog.done("landscape features", "run", result.RunID)

			rows, cols := result.Features.Dims()
			printSuccess("Successfully saved in %s!", result.Path)
			printStats(result.CacheHit,
				fmt.Sprintf("%d diagrams", rows),
				fmt.Sprintf("%d features", cols))
			return nil
		},
	}

	f.addIOFlags(cmd, flagDgms, "directory containing the persistence diagrams")
	f.addGridFlags(cmd)
	f.addRunFlags(cmd)
	return cmd
}
