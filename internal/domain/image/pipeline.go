package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const defaultMaxSize = 20 << 20

// Pipeline turns an image payload from a generation API into validated bytes.
type Pipeline struct {
	validator *Validator
	maxSize   int64
}

func NewPipeline(validator *Validator, limits Limits) *Pipeline {
	maxSize := limits.MaxFileSize
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Pipeline{validator: validator, maxSize: maxSize}
}

// Output is a validated image.
type Output struct {
	Bytes      []byte
	Format     string
	Validation ValidationResult
}

// DecodeBase64 streams a base64 payload through the size limit and validation.
func (p *Pipeline) DecodeBase64(ctx context.Context, payload string) (*Output, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("missing image data")
	}
	// tolerate data URLs
	if i := strings.Index(payload, ";base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len(";base64,"):]
	}
	return p.Process(ctx, base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload)), "")
}

// Process reads at most the size limit from r and validates the result.
func (p *Pipeline) Process(ctx context.Context, r io.Reader, declaredFormat string) (*Output, error) {
	if r == nil {
		return nil, fmt.Errorf("image reader is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limited := &io.LimitedReader{R: r, N: p.maxSize + 1}
	buf := bytes.NewBuffer(make([]byte, 0, 256*1024))
	if _, err := io.Copy(buf, limited); err != nil {
		return nil, fmt.Errorf("read image data: %w", err)
	}
	if limited.N <= 0 {
		return nil, fmt.Errorf("image exceeds maximum size of %d bytes", p.maxSize)
	}

	validation := p.validator.Validate(buf.Bytes(), declaredFormat)
	if !validation.IsValid {
		if validation.Error != nil {
			return nil, validation.Error
		}
		return nil, fmt.Errorf("image validation failed")
	}

	return &Output{
		Bytes:      buf.Bytes(),
		Format:     validation.Format,
		Validation: validation,
	}, nil
}
