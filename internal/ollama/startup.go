package ollama

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that the server is up and holds model, pulling it when
// missing. Pull progress is written to w in steps of ten percent.
func EnsureReady(ctx context.Context, c *Client, model string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running at %s. Start it with: ollama serve", c.baseURL)
	}

	if !c.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: pulling...\n", model)
		var lastStatus string
		lastStep := int64(-1)
		err := c.PullModel(ctx, model, func(p PullProgress) {
			if p.Total <= 0 {
				if p.Status != lastStatus {
					fmt.Fprintf(w, "  %s\n", p.Status)
				}
				lastStatus = p.Status
				return
			}
			step := p.Completed * 10 / p.Total
			if step != lastStep || p.Status != lastStatus {
				fmt.Fprintf(w, "  %s %d%%\n", p.Status, step*10)
			}
			lastStep, lastStatus = step, p.Status
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
	}

	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
