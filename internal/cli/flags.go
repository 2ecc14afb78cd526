package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/pipeline"
)

// Flag names shared by several commands.
const (
	flagDim     = "dim"
	flagDgms    = "dgms"
	flagSave    = "save"
	flagXMin    = "xmin"
	flagXMax    = "xmax"
	flagNodes   = "n-nodes"
	flagLayers  = "n-ld"
	flagWorkers = "workers"
	flagNoCache = "no-cache"
)

// stageFlags holds the flags common to the file-based stages.
type stageFlags struct {
	dim     int
	dgms    string
	save    string
	xmin    float64
	xmax    float64
	nodes   int
	layers  int
	workers int
	noCache bool
}

// addIOFlags registers --dim, --dgms and --save, all required.
func (f *stageFlags) addIOFlags(cmd *cobra.Command, inputFlag, inputUsage string) {
	cmd.Flags().IntVar(&f.dim, flagDim, 0, "homological dimension (0 or 1)")
	cmd.Flags().StringVar(&f.dgms, inputFlag, "", inputUsage)
	cmd.Flags().StringVar(&f.save, flagSave, "", "output directory")
	cmd.MarkFlagRequired(flagDim)
	cmd.MarkFlagRequired(inputFlag)
	cmd.MarkFlagRequired(flagSave)
}

// addGridFlags registers the landscape grid flags. Their defaults are the
// built-in grid; configured values apply unless a flag is given.
func (f *stageFlags) addGridFlags(cmd *cobra.Command) {
	def := pipeline.DefaultOptions()
	cmd.Flags().Float64Var(&f.xmin, flagXMin, def.Grid.XMin, "lower bound of the landscape grid")
	cmd.Flags().Float64Var(&f.xmax, flagXMax, def.Grid.XMax, "upper bound of the landscape grid")
	cmd.Flags().IntVar(&f.nodes, flagNodes, def.Grid.Nodes, "number of grid nodes")
	cmd.Flags().IntVar(&f.layers, flagLayers, def.Layers, "number of landscape layers")
}

// addRunFlags registers --workers and --no-cache.
func (f *stageFlags) addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.workers, flagWorkers, 0, "worker goroutines (0 = all CPUs)")
	cmd.Flags().BoolVar(&f.noCache, flagNoCache, false, "disable the result cache")
}

// options builds pipeline options from the config, then applies every
// flag the user set explicitly.
func (c *CLI) options(cmd *cobra.Command, f *stageFlags) (pipeline.Options, error) {
	cfg := c.Config
	opts := pipeline.DefaultOptions()
	opts.Grid = cfg.LandscapeGrid()
	opts.Layers = cfg.Grid.Layers
	opts.MaxWidth = cfg.Grid.MaxWidth
	opts.Workers = cfg.Workers
	opts.PairTimeout = cfg.Distance.PairTimeout.Duration()
	opts.MinPersistence = cfg.Engine.MinPersistence
	opts.Logger = c.Logger
	policy, err := distance.ParsePolicy(cfg.Distance.Policy)
	if err != nil {
		return opts, err
	}
	opts.Policy = policy

	opts.Dimension = f.dim
	opts.DiagramsDir = f.dgms
	opts.SaveDir = f.save
	opts.NoCache = f.noCache

	changed := cmd.Flags().Changed
	if changed(flagXMin) {
		opts.Grid.XMin = f.xmin
	}
	if changed(flagXMax) {
		opts.Grid.XMax = f.xmax
	}
	if changed(flagNodes) {
		opts.Grid.Nodes = f.nodes
	}
	if changed(flagLayers) {
		opts.Layers = f.layers
	}
	if changed(flagWorkers) {
		opts.Workers = f.workers
	}
	return opts, nil
}

// track starts a spinner labelled label and returns its progress callback
// and stop function. With --verbose the log lines replace the spinner.
func (c *CLI) track(ctx context.Context, label string) (func(done, total int), func()) {
	if c.verbose {
		return nil, func() {}
	}
	s := newSpinner(ctx, label)
	s.Start()
	return s.Progress(label), s.Stop
}
