package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"voice3d-server/internal/utils"
)

// Validator checks that a payload is a real, bounded raster image.
type Validator struct {
	limits Limits
	logger *utils.Logger
}

func NewValidator(limits Limits, logger *utils.Logger) *Validator {
	return &Validator{limits: limits, logger: logger}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

// Validate decodes the image header and applies the configured limits.
// declaredFormat may be empty.
func (v *Validator) Validate(raw []byte, declaredFormat string) ValidationResult {
	result := ValidationResult{Format: declaredFormat}

	if len(raw) == 0 {
		result.Error = fmt.Errorf("empty image payload")
		return result
	}
	if v.limits.MaxFileSize > 0 && int64(len(raw)) > v.limits.MaxFileSize {
		result.Error = fmt.Errorf("image is %d bytes (max %d)", len(raw), v.limits.MaxFileSize)
		result.Risk = "file too large"
		return result
	}
	if v.limits.EnableDeepScan && v.looksLikeNonImage(raw) {
		result.Error = fmt.Errorf("payload is not an image")
		result.Risk = "suspicious content"
		return result
	}

	cfg, actualFormat, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		if declaredFormat != "" && !matchesSignature(raw, declaredFormat) {
			v.logger.WarnTag("Image", "signature mismatch: declared=%s header=%x", declaredFormat, raw[:min(len(raw), 16)])
		}
		result.Error = fmt.Errorf("decode image: %w", err)
		result.Risk = "corrupted image data"
		return result
	}
	result.Format = actualFormat

	if !v.formatAllowed(actualFormat) {
		result.Error = fmt.Errorf("unsupported format: %s", actualFormat)
		result.Risk = "unapproved format"
		return result
	}
	if (v.limits.MaxWidth > 0 && cfg.Width > v.limits.MaxWidth) || (v.limits.MaxHeight > 0 && cfg.Height > v.limits.MaxHeight) {
		result.Error = fmt.Errorf("dimensions %dx%d exceed %dx%d", cfg.Width, cfg.Height, v.limits.MaxWidth, v.limits.MaxHeight)
		result.Risk = "dimensions too large"
		return result
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); v.limits.MaxPixels > 0 && pixels > v.limits.MaxPixels {
		result.Error = fmt.Errorf("pixel count %d exceeds %d", pixels, v.limits.MaxPixels)
		result.Risk = "pixel count too high"
		return result
	}

	result.IsValid = true
	result.Width = cfg.Width
	result.Height = cfg.Height
	result.FileSize = int64(len(raw))
	v.logger.DebugTag("Image", "validated %s %dx%d (%d bytes)", result.Format, result.Width, result.Height, result.FileSize)
	return result
}

func (v *Validator) formatAllowed(format string) bool {
	if len(v.limits.AllowedFormats) == 0 {
		return true
	}
	for _, allowed := range v.limits.AllowedFormats {
		if strings.EqualFold(allowed, format) {
			return true
		}
	}
	return false
}

func matchesSignature(raw []byte, format string) bool {
	signature, ok := imageSignatures[strings.ToLower(format)]
	if !ok {
		return true
	}
	return bytes.HasPrefix(raw, signature)
}

// looksLikeNonImage catches error pages, archives and executables that an
// upstream API may hand back in place of image data.
func (v *Validator) looksLikeNonImage(raw []byte) bool {
	suspicious := [][]byte{
		{0x4D, 0x5A},             // PE executable
		{0x25, 0x50, 0x44, 0x46}, // PDF
		{0x50, 0x4B, 0x03, 0x04}, // zip
		{0x1F, 0x8B, 0x08},       // gzip
	}
	for _, sig := range suspicious {
		if bytes.HasPrefix(raw, sig) {
			v.logger.WarnTag("Image", "rejected payload with signature %x", sig)
			return true
		}
	}
	head := strings.ToLower(string(raw[:min(len(raw), 256)]))
	trimmed := strings.TrimSpace(head)
	return strings.HasPrefix(trimmed, "<") || strings.HasPrefix(trimmed, "{")
}
