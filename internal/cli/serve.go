package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/topofeat/internal/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve landscape features and distances over HTTP",
		Long: `Start an HTTP service exposing the feature computations.

Routes:
  POST /v1/landscapes  diagrams → landscape feature matrix
  POST /v1/distances   diagrams → pairwise landscape distances
  GET  /healthz        liveness probe
  GET  /version        build information`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("addr") {
				c.Config.Server.Addr = addr
			}
			if cmd.Flags().Changed(flagWorkers) {
				c.Config.Workers = workers
			}

			runner, err := c.newRunner(ctx, false)
			if err != nil {
				return err
			}
			defer runner.Close()

			printKeyValue("Address", c.Config.Server.Addr)
			printKeyValue("Cache", c.Config.Cache.Backend)
			printKeyValue("Workers", strconv.Itoa(c.Config.Workers))

			srv := server.New(runner,
				server.WithLogger(c.Logger),
				server.WithWorkers(c.Config.Workers),
				server.WithMaxWidth(c.Config.Grid.MaxWidth))
			return srv.ListenAndServe(ctx, c.Config.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVar(&workers, flagWorkers, 0, "worker goroutines per request (0 = all CPUs)")
	return cmd
}
