// Package distancecmd implements the `trailctl distance` command.
package distancecmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"backend-trailtracker/cmd/trailctl/shared"
	"backend-trailtracker/internal/shared/geo"
	"backend-trailtracker/internal/trail"
)

// Command implements `trailctl distance`.
type Command struct {
	ctx  *shared.Context
	cmd  *cobra.Command
	from string
	to   string
}

// New creates the distance command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "distance --from lat,lng --to lat,lng",
		Short: "Print the great-circle distance between two points",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	c.cmd.Flags().StringVar(&c.from, "from", "", "Start point as lat,lng")
	c.cmd.Flags().StringVar(&c.to, "to", "", "End point as lat,lng")
	_ = c.cmd.MarkFlagRequired("from")
	_ = c.cmd.MarkFlagRequired("to")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, _ []string) error {
	from, err := parsePoint(c.from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parsePoint(c.to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	meters := geo.DistanceMeters(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	fmt.Fprintln(cmd.OutOrStdout(), trail.FormatDistance(meters/1000))
	return nil
}

func parsePoint(s string) (trail.Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return trail.Location{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return trail.Location{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return trail.Location{}, fmt.Errorf("longitude: %w", err)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return trail.Location{}, fmt.Errorf("point %q out of range", s)
	}
	return trail.Location{Latitude: lat, Longitude: lng}, nil
}
