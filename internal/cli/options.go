package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/remote-engine/internal/coordinator"
)

// engineOption is one -o Name:Value flag.
type engineOption struct {
	Name  string
	Value string
}

// parseOptions splits each flag on its first colon, so values may contain
// colons (paths on Windows, URLs).
func parseOptions(flags []string) ([]engineOption, error) {
	opts := make([]engineOption, 0, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("option %q: want Name:Value", f)
		}
		opts = append(opts, engineOption{Name: name, Value: value})
	}
	return opts, nil
}

// seedOptions applies startup options in command-line order.
func seedOptions(ctx context.Context, c *coordinator.Coordinator, opts []engineOption) error {
	for _, o := range opts {
		if _, err := c.Configure(ctx, map[string]any{o.Name: o.Value}); err != nil {
			return err
		}
	}
	return nil
}
