package providers

import (
	"context"
)

// Transcriber converts a normalized 16 kHz mono WAV file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// PromptOptimizer rewrites a spoken description into an image prompt.
// style is appended to the user content; the system instruction is the
// adapter's own concern.
type PromptOptimizer interface {
	OptimizePrompt(ctx context.Context, prompt, style string) (string, error)
}

// ImageGenerator returns decoded image bytes for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ModelGenerator turns an image into a binary glTF (GLB) model.
type ModelGenerator interface {
	GenerateModel(ctx context.Context, image []byte, filename string) ([]byte, error)
}

// ArtifactStore is a versioned remote location for published models.
type ArtifactStore interface {
	// Lookup returns the current version identifier at path.
	// found is false when nothing exists there yet.
	Lookup(ctx context.Context, path string) (version string, found bool, err error)
	// Put uploads content, replacing priorVersion when it is non-empty,
	// and returns the new version identifier.
	Put(ctx context.Context, path string, content []byte, priorVersion string) (version string, err error)
}

// Named is implemented by adapters that report which backend they call.
type Named interface {
	ProviderName() string
}

// NameOf returns p's provider name or "unknown".
func NameOf(p any) string {
	if n, ok := p.(Named); ok {
		return n.ProviderName()
	}
	return "unknown"
}
