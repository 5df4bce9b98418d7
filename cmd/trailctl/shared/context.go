// Package shared holds the state passed to all trailctl commands.
package shared

import "backend-trailtracker/internal/config"

// Context carries global CLI state.
type Context struct {
	// PostgresURL overrides POSTGRES_URL when set.
	PostgresURL string
}

// Config loads the service configuration with the CLI overrides applied.
func (c *Context) Config() config.Config {
	cfg := config.Load()
	if c.PostgresURL != "" {
		cfg.PostgresURL = c.PostgresURL
	}
	return cfg
}
