package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "error with cause",
			err: Wrap(KindConfig, "load", "failed to load config",
				errors.New("file not found")),
			contains: []string{"[config:load]", "failed to load config", "file not found"},
		},
		{
			name:     "error without cause",
			err:      New(KindAlreadyRecording, "capture.start", "recording already in progress"),
			contains: []string{"[already_recording:capture.start]", "recording already in progress"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("error string %q does not contain %q", errStr, substr)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(KindConfig, "test", "wrapped", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Unwrap should return the original error")
	}
}

func TestWrap_KeepsInnermostKind(t *testing.T) {
	inner := New(KindTranscription, "asr.transcribe", "quota exceeded")
	outer := Wrap(KindPublish, "pipeline.run", "stage failed", fmt.Errorf("stage: %w", inner))

	if outer.Kind != KindTranscription {
		t.Fatalf("expected innermost kind, got %s", outer.Kind)
	}
}

func TestIsKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{
			name:     "direct error kind match",
			err:      New(KindConversion, "test", "message"),
			kind:     KindConversion,
			expected: true,
		},
		{
			name:     "wrapped error kind match",
			err:      fmt.Errorf("outer: %w", Wrap(KindDevice, "test", "message", errors.New("cause"))),
			kind:     KindDevice,
			expected: true,
		},
		{
			name:     "error kind mismatch",
			err:      New(KindConfig, "test", "message"),
			kind:     KindDomain,
			expected: false,
		},
		{
			name:     "non-typed error",
			err:      errors.New("plain error"),
			kind:     KindConfig,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsKind(tt.err, tt.kind)
			if result != tt.expected {
				t.Errorf("IsKind() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestKindOfAndDetail(t *testing.T) {
	if KindOf(nil) != KindUnknown {
		t.Error("nil error should be unknown kind")
	}
	err := Wrap(KindPublish, "github.upload", "upload rejected", errors.New("409 conflict"))
	if got := Detail(err); got != "upload rejected: 409 conflict" {
		t.Errorf("Detail() = %q", got)
	}
	if got := Detail(errors.New("plain")); got != "plain" {
		t.Errorf("Detail() = %q", got)
	}
	if got := Detail(Newf(KindDevice, "op", "device %d missing", 2)); got != "device 2 missing" {
		t.Errorf("Detail() = %q", got)
	}
}
