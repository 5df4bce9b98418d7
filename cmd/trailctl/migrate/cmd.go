// Package migratecmd implements the `trailctl migrate` command.
package migratecmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"backend-trailtracker/cmd/trailctl/shared"
	"backend-trailtracker/internal/config"
	"backend-trailtracker/internal/db"
)

type pool interface {
	db.Pool
	Close()
}

var connectFn = func(cfg config.Config) (pool, error) {
	return db.ConnectPostgres(cfg)
}

// Command implements `trailctl migrate`.
type Command struct {
	ctx    *shared.Context
	cmd    *cobra.Command
	dryRun bool
}

// New creates the migrate command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	c.cmd.Flags().BoolVar(&c.dryRun, "dry-run", false, "Print the schema statements without applying them")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, _ []string) error {
	if c.dryRun {
		for _, stmt := range db.Statements() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", stmt)
		}
		return nil
	}

	p, err := connectFn(c.ctx.Config())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer p.Close()

	if err := db.Migrate(cmd.Context(), p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d schema statements\n", len(db.Statements()))
	return nil
}
