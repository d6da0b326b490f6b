package vision

import (
	"context"
)

// Client analyzes an image against a text prompt and returns the raw
// model output. Tests substitute a fake.
type Client interface {
	Analyze(ctx context.Context, image []byte, prompt string) (string, error)
}
