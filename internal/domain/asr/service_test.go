package asr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voice3d-server/internal/domain/normalize"
	apperrors "voice3d-server/internal/platform/errors"
)

type mockTranscriber struct {
	mock.Mock
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	args := m.Called(ctx, audioPath)
	return args.String(0), args.Error(1)
}

func TestService_Transcribe(t *testing.T) {
	provider := &mockTranscriber{}
	provider.On("Transcribe", mock.Anything, "/tmp/a_16k.wav").Return("  a red\x00 balloon \n", nil).Once()

	text, err := NewService(provider, nil).Transcribe(context.Background(), normalize.Artifact{Path: "/tmp/a_16k.wav"})
	require.NoError(t, err)
	assert.Equal(t, "a red balloon", text)
	provider.AssertExpectations(t)
}

func TestService_ProviderErrorNotRetried(t *testing.T) {
	provider := &mockTranscriber{}
	provider.On("Transcribe", mock.Anything, mock.Anything).Return("", errors.New("Invalid file format")).Once()

	_, err := NewService(provider, nil).Transcribe(context.Background(), normalize.Artifact{Path: "x.wav"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTranscription))
	assert.Contains(t, apperrors.Detail(err), "Invalid file format")
	provider.AssertNumberOfCalls(t, "Transcribe", 1)
}

func TestService_EmptyTranscript(t *testing.T) {
	provider := &mockTranscriber{}
	provider.On("Transcribe", mock.Anything, mock.Anything).Return(" \n ", nil)

	_, err := NewService(provider, nil).Transcribe(context.Background(), normalize.Artifact{Path: "x.wav"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTranscription))
}
