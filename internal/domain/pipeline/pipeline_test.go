package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "voice3d-server/internal/platform/errors"
	"voice3d-server/internal/utils"
)

type fakeOptimizer struct {
	out   string
	err   error
	calls int
	style string
}

func (f *fakeOptimizer) OptimizePrompt(_ context.Context, prompt, style string) (string, error) {
	f.calls++
	f.style = style
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return prompt + ", " + style, nil
}

type fakeImages struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeImages) GenerateImage(context.Context, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeModels struct {
	data     []byte
	err      error
	calls    int
	filename string
	image    []byte
}

func (f *fakeModels) GenerateModel(_ context.Context, image []byte, filename string) ([]byte, error) {
	f.calls++
	f.filename = filename
	f.image = image
	return f.data, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	version   string
	lookupErr error
	putErr    error
	puts      int
	priors    []string
}

func (f *fakeStore) Lookup(context.Context, string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return "", false, f.lookupErr
	}
	return f.version, f.version != "", nil
}

func (f *fakeStore) Put(_ context.Context, _ string, _ []byte, prior string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.priors = append(f.priors, prior)
	if f.putErr != nil {
		return "", f.putErr
	}
	f.version = "v" + string(rune('0'+f.puts))
	return f.version, nil
}

type fixture struct {
	dir       string
	optimizer *fakeOptimizer
	images    *fakeImages
	models    *fakeModels
	store     *fakeStore
	pipeline  *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:       t.TempDir(),
		optimizer: &fakeOptimizer{},
		images:    &fakeImages{data: []byte("\x89PNG fake")},
		models:    &fakeModels{data: []byte("glTF fake")},
		store:     &fakeStore{},
	}
	f.pipeline = New(Options{
		ArtifactDir:   f.dir,
		URLPrefix:     "/artifacts",
		StyleModifier: "low poly",
	}, f.optimizer, f.images, f.models, f.store, utils.NewWriterLogger(&bytes.Buffer{}, "DEBUG"))
	return f
}

func TestRun_PublishesOnce(t *testing.T) {
	f := newFixture(t)

	asset, err := f.pipeline.Run(context.Background(), "a friendly squirrel!!!", "")
	require.NoError(t, err)

	assert.Equal(t, "/artifacts/model_afriendlysquirrel.glb", asset.URL)
	assert.Equal(t, DefaultRemotePath, asset.RemotePath)
	assert.Equal(t, "", asset.PriorVersion)
	assert.Equal(t, "v1", asset.Version)
	assert.Equal(t, "a friendly squirrel!!!, low poly", asset.Refined)
	assert.Equal(t, "low poly", f.optimizer.style)

	assert.Equal(t, 1, f.store.puts)
	assert.Equal(t, "image_afriendlysquirrel.png", f.models.filename)
	assert.Equal(t, f.images.data, f.models.image)

	model, err := os.ReadFile(filepath.Join(f.dir, "model_afriendlysquirrel.glb"))
	require.NoError(t, err)
	assert.Equal(t, f.models.data, model)
	assert.FileExists(t, filepath.Join(f.dir, "image_afriendlysquirrel.png"))
}

func TestRun_AttachesPriorVersion(t *testing.T) {
	f := newFixture(t)
	f.store.version = "abc123"

	asset, err := f.pipeline.Run(context.Background(), "robot", "voxel")
	require.NoError(t, err)
	assert.Equal(t, "abc123", asset.PriorVersion)
	assert.Equal(t, []string{"abc123"}, f.store.priors)
	assert.Equal(t, "voxel", f.optimizer.style)
}

func TestRun_FailureStopsLaterStages(t *testing.T) {
	tests := []struct {
		name   string
		breaks func(f *fixture)
		kind   apperrors.Kind
		image  bool
		model  bool
	}{
		{
			name:   "optimizer",
			breaks: func(f *fixture) { f.optimizer.err = errors.New("rate limited (status 429)") },
			kind:   apperrors.KindPromptOptimization,
		},
		{
			name:   "image",
			breaks: func(f *fixture) { f.images.err = errors.New("content policy violation") },
			kind:   apperrors.KindImageGeneration,
		},
		{
			name:   "empty image",
			breaks: func(f *fixture) { f.images.data = nil },
			kind:   apperrors.KindImageGeneration,
		},
		{
			name:   "model",
			breaks: func(f *fixture) { f.models.err = errors.New("invalid image (status 400)") },
			kind:   apperrors.KindModelGeneration,
			image:  true,
		},
		{
			name:   "publish",
			breaks: func(f *fixture) { f.store.putErr = errors.New("conflict (status 409)") },
			kind:   apperrors.KindPublish,
			image:  true,
			model:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.breaks(f)

			asset, err := f.pipeline.Run(context.Background(), "a friendly squirrel", "")
			require.Error(t, err)
			assert.Nil(t, asset)
			assert.True(t, apperrors.IsKind(err, tt.kind), "got kind %s", apperrors.KindOf(err))

			switch tt.kind {
			case apperrors.KindPromptOptimization:
				assert.Zero(t, f.images.calls)
				assert.Zero(t, f.models.calls)
			case apperrors.KindImageGeneration:
				assert.Zero(t, f.models.calls)
			}
			if tt.kind != apperrors.KindPublish {
				assert.Zero(t, f.store.puts)
			}

			imagePath := filepath.Join(f.dir, "image_afriendlysquirrel.png")
			modelPath := filepath.Join(f.dir, "model_afriendlysquirrel.glb")
			if tt.image {
				assert.FileExists(t, imagePath)
			} else {
				assert.NoFileExists(t, imagePath)
			}
			if tt.model {
				assert.FileExists(t, modelPath)
			} else {
				assert.NoFileExists(t, modelPath)
			}
		})
	}
}

func TestRun_ServiceMessageSurfaces(t *testing.T) {
	f := newFixture(t)
	f.optimizer.err = errors.New("You exceeded your current quota (status 429)")

	_, err := f.pipeline.Run(context.Background(), "robot", "")
	require.Error(t, err)
	assert.Contains(t, apperrors.Detail(err), "You exceeded your current quota (status 429)")
}

func TestRun_CollisionOverwrites(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Run(context.Background(), "a friendly squirrel waving", "")
	require.NoError(t, err)

	f.models.data = []byte("glTF second")
	asset, err := f.pipeline.Run(context.Background(), "a friendly squirrel jumping", "")
	require.NoError(t, err)

	data, err := os.ReadFile(asset.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("glTF second"), data)
	assert.Equal(t, []string{"", "v1"}, f.store.priors)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Run(ctx, "robot", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPromptOptimization))
	assert.Zero(t, f.optimizer.calls)
}

func TestPublish_RequiresModel(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Publish(context.Background(), &Generation{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindPublish))
	assert.Zero(t, f.store.puts)
}
