package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindDomain    Kind = "domain"
	KindTransport Kind = "transport"
	KindPlatform  Kind = "platform"
	KindBootstrap Kind = "bootstrap"
	KindStorage   Kind = "storage"
	KindUnknown   Kind = "unknown"

	// Recording and pipeline failures surfaced to command callers.
	KindAlreadyRecording   Kind = "already_recording"
	KindDevice             Kind = "device"
	KindFlushTimeout       Kind = "flush_timeout"
	KindConversion         Kind = "conversion_failed"
	KindTranscription      Kind = "transcription_service"
	KindPromptOptimization Kind = "prompt_optimization"
	KindImageGeneration    Kind = "image_generation"
	KindModelGeneration    Kind = "model_generation"
	KindPublish            Kind = "publish"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap annotates err with a kind. An error that already carries a kind is
// returned unchanged so the innermost classification wins.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// Newf is New with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// IsKind checks whether the first typed error in the chain matches kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the first typed error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var target *Error
	if err != nil && errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// Detail returns the human readable part of err without the kind/op prefix.
func Detail(err error) string {
	var target *Error
	if !errors.As(err, &target) {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	if target.Cause != nil {
		return fmt.Sprintf("%s: %v", target.Message, target.Cause)
	}
	return target.Message
}
