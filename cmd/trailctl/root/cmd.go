// Package rootcmd wires the root cobra.Command for the trailctl binary.
package rootcmd

import (
	"github.com/spf13/cobra"

	distancecmd "backend-trailtracker/cmd/trailctl/distance"
	migratecmd "backend-trailtracker/cmd/trailctl/migrate"
	"backend-trailtracker/cmd/trailctl/shared"
)

// New creates and returns the root cobra.Command for trailctl.
func New() *cobra.Command {
	ctx := &shared.Context{}

	root := &cobra.Command{
		Use:           "trailctl",
		Short:         "Operator tools for the trail tracker backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}

	root.PersistentFlags().StringVar(
		&ctx.PostgresURL, "postgres-url", "",
		"PostgreSQL connection string (default: $POSTGRES_URL)",
	)

	root.AddCommand(
		migratecmd.New(ctx).Cmd(),
		distancecmd.New(ctx).Cmd(),
	)

	return root
}
