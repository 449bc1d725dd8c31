package asr

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"voice3d-server/internal/contracts/providers"
	"voice3d-server/internal/domain/normalize"
	apperrors "voice3d-server/internal/platform/errors"
	"voice3d-server/internal/utils"
)

// Service wraps a transcription provider with the pipeline's error contract.
// Calls are never retried.
type Service struct {
	provider providers.Transcriber
	logger   *utils.Logger
}

func NewService(provider providers.Transcriber, logger *utils.Logger) *Service {
	return &Service{provider: provider, logger: logger}
}

// Transcribe returns the cleaned transcript of artifact. Provider failures and
// empty transcripts are KindTranscription errors.
func (s *Service) Transcribe(ctx context.Context, artifact normalize.Artifact) (string, error) {
	const op = "asr.transcribe"

	start := time.Now()
	text, err := s.provider.Transcribe(ctx, artifact.Path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindTranscription, op, "transcription service failed", err)
	}

	text = strings.TrimSpace(utils.RemoveControlCharacters(text))
	if text == "" {
		return "", apperrors.New(apperrors.KindTranscription, op, "transcription service returned no text")
	}

	s.logger.InfoTag("ASR", "%s transcribed %s in %s: %q",
		providers.NameOf(s.provider), filepath.Base(artifact.Path), time.Since(start).Round(time.Millisecond), text)
	return text, nil
}
