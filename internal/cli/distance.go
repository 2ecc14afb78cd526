package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/topofeat/pkg/config"
	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/engine"
	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/pipeline"
)

// distanceFlags holds the distance command's own flags.
type distanceFlags struct {
	metric      string
	metricCmd   string
	metricVer   string
	p           float64
	bestEffort  bool
	pairTimeout time.Duration
}

// distanceCommand creates the distance command.
func (c *CLI) distanceCommand() *cobra.Command {
	var (
		f  stageFlags
		df distanceFlags
	)

	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Compute the pairwise distance matrix of persistence diagrams",
		Long: `Compute the symmetric pairwise distance matrix of every diagram of one
homological dimension and write it to <save>/pairwise_btnck_dist_dim<dim>.csv.

Metrics:
  landscape  L^p distance between persistence landscapes (built in)
  exec       an external command reading {"a": [[b,d],...], "b": [...]} on
             stdin and writing the distance as a JSON number to stdout,
             e.g. a bottleneck distance solver

With --best-effort a failed pair is written as NaN and reported instead of
aborting the run.

Exec metric results are cached by command line and --metric-version. After
upgrading the external command, change --metric-version or pass --no-cache,
otherwise matrices computed by the old version are reused until they expire.`,
		Example: `  topofeat distance --dim 1 --dgms data --save out
  topofeat distance --dim 0 --dgms data --save out --metric exec --metric-cmd "bottleneck-dist" --best-effort`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts, err := c.options(cmd, &f)
			if err != nil {
				return err
			}
			if err := c.applyDistanceFlags(cmd, &df, &opts); err != nil {
				return err
			}

			runner, err := c.newRunner(ctx, f.noCache)
			if err != nil {
				return err
			}
			defer runner.Close()

			prog := newProgress(loggerFromContext(ctx))
			onProgress, stop := c.track(ctx, "Computing distances")
			opts.Progress = onProgress
			result, err := runner.Distances(ctx, opts)
			stop()
			if err != nil {
				return err
			}
			prog.done("distance matrix", "run", result.RunID)

			n := result.Matrix.Size()
			printSuccess("Successfully saved in %s!", result.Path)
			printStats(result.CacheHit,
				fmt.Sprintf("%d diagrams", n),
				fmt.Sprintf("%d pairs", distance.Pairs(n)))
			if failed := len(result.Matrix.Failures); failed > 0 {
				printWarning("%d of %d pairs could not be evaluated and are NaN", failed, distance.Pairs(n))
				for _, pe := range result.Matrix.Failures {
					printDetail("(%d, %d): %s", pe.I, pe.J, errors.UserMessage(pe.Err))
				}
			}
			return nil
		},
	}

	f.addIOFlags(cmd, flagDgms, "directory containing the persistence diagrams")
	f.addGridFlags(cmd)
	f.addRunFlags(cmd)
	cmd.Flags().StringVar(&df.metric, "metric", config.MetricLandscape, "distance metric: landscape or exec")
	cmd.Flags().StringVar(&df.metricCmd, "metric-cmd", "", "command line of the external metric (with --metric exec)")
	cmd.Flags().StringVar(&df.metricVer, "metric-version", "", "version of the external metric, part of its cache key")
	cmd.Flags().Float64Var(&df.p, "p", 2, "order of the landscape L^p distance")
	cmd.Flags().BoolVar(&df.bestEffort, "best-effort", false, "record failed pairs as NaN instead of aborting")
	cmd.Flags().DurationVar(&df.pairTimeout, "pair-timeout", 0, "timeout per pair evaluation, e.g. 30s (0 = none)")
	return cmd
}

// applyDistanceFlags resolves the metric and failure policy from the
// config and the explicitly set flags.
func (c *CLI) applyDistanceFlags(cmd *cobra.Command, df *distanceFlags, opts *pipeline.Options) error {
	cfg := c.Config.Distance
	changed := cmd.Flags().Changed

	metricName, metricCmd, p := cfg.Metric, cfg.MetricCmd, cfg.P
	if changed("metric") {
		metricName = df.metric
	}
	if changed("metric-cmd") {
		metricCmd = df.metricCmd
	}
	metricVer := cfg.MetricVersion
	if changed("metric-version") {
		metricVer = df.metricVer
	}
	if changed("p") {
		p = df.p
	}
	if changed("best-effort") {
		opts.Policy = distance.FailFast
		if df.bestEffort {
			opts.Policy = distance.BestEffort
		}
	}
	if changed("pair-timeout") {
		opts.PairTimeout = df.pairTimeout
	}

	switch metricName {
	case config.MetricLandscape:
		m, err := distance.NewLandscapeMetric(opts.Grid, opts.Layers, p)
		if err != nil {
			return err
		}
		opts.Metric = m
	case config.MetricExec:
		command, err := engine.ParseCommand(metricCmd)
		if err != nil {
			return errors.Wrap(errors.GetCode(err), err, "--metric-cmd")
		}
		if err := command.Validate(); err != nil {
			return err
		}
		opts.Metric = &engine.ExecMetric{
			Command: command,
			Timeout: c.Config.Engine.Timeout.Duration(),
			Version: metricVer,
		}
	default:
		return errors.New(errors.ErrCodeUnsupportedMetric, "unknown metric %q (must be %s or %s)",
			metricName, config.MetricLandscape, config.MetricExec)
	}
	return nil
}
