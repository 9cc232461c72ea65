package engine

import (
	"context"
	"io"
)

type readier interface {
	Ready(ctx context.Context, w io.Writer) error
}

// Prepare readies backends that need local setup before serving (a local
// Ollama server must be running and hold the model). Remote backends are
// left alone.
func Prepare(ctx context.Context, g Generator, w io.Writer) error {
	if r, ok := g.(readier); ok {
		return r.Ready(ctx, w)
	}
	return nil
}
