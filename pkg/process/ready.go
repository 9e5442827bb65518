package process

import (
	"context"
	"fmt"
)

// Check is one dependency probed before a worker starts consuming.
type Check struct {
	Name string
	Ping func(context.Context) error
}

// Ready probes checks in order and stops at the first failure.
func Ready(ctx context.Context, checks ...Check) error {
	for _, c := range checks {
		if err := c.Ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", c.Name, err)
		}
	}
	return nil
}
