package image

// Limits bounds what a generated image may look like before it is handed
// to the 3D generator.
type Limits struct {
	MaxFileSize    int64
	MaxWidth       int
	MaxHeight      int
	MaxPixels      int64
	AllowedFormats []string
	EnableDeepScan bool
}

// DefaultLimits accepts anything an image API plausibly returns.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:    20 << 20,
		MaxWidth:       4096,
		MaxHeight:      4096,
		MaxPixels:      4096 * 4096,
		AllowedFormats: []string{"png", "jpeg", "webp"},
		EnableDeepScan: true,
	}
}

// ValidationResult captures the outcome of payload validation.
type ValidationResult struct {
	IsValid  bool
	Format   string
	Width    int
	Height   int
	FileSize int64
	Error    error
	Risk     string
}
