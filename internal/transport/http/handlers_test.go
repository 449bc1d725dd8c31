package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voice3d-server/internal/domain/capture"
	"voice3d-server/internal/domain/pipeline"
	"voice3d-server/internal/domain/session"
	apperrors "voice3d-server/internal/platform/errors"
	"voice3d-server/internal/platform/observability"
	"voice3d-server/internal/utils"
)

type mockController struct {
	mock.Mock
}

func (m *mockController) Start(ctx context.Context) (capture.Session, error) {
	args := m.Called()
	return args.Get(0).(capture.Session), args.Error(1)
}

func (m *mockController) Stop(ctx context.Context) (*pipeline.PublishedAsset, error) {
	args := m.Called()
	asset, _ := args.Get(0).(*pipeline.PublishedAsset)
	return asset, args.Error(1)
}

func (m *mockController) Upload(ctx context.Context, audioPath, style string) (*pipeline.PublishedAsset, error) {
	args := m.Called(audioPath, style)
	asset, _ := args.Get(0).(*pipeline.PublishedAsset)
	return asset, args.Error(1)
}

func (m *mockController) Snapshot() session.Snapshot {
	return m.Called().Get(0).(session.Snapshot)
}

type fixedCount int

func (f fixedCount) Count() int { return int(f) }

type testEnv struct {
	engine      *gin.Engine
	controller  *mockController
	artifactDir string
	uploadDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		controller:  &mockController{},
		artifactDir: t.TempDir(),
		uploadDir:   t.TempDir(),
	}
	logger := utils.NewWriterLogger(&bytes.Buffer{}, "INFO")
	router, err := Build(Options{Logger: logger, ArtifactDir: env.artifactDir, ArtifactPrefix: "/artifacts"})
	require.NoError(t, err)

	NewHandler(env.controller, fixedCount(2), HandlerOptions{
		UploadDir:      env.uploadDir,
		MaxUploadBytes: 1 << 20,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("voice3d_commands_total 1\n"))
		}),
	}, logger).RegisterRoutes(router)
	env.engine = router.Engine
	return env
}

func (e *testEnv) do(req *http.Request) (*httptest.ResponseRecorder, APIResponse) {
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	var resp APIResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func multipartBody(t *testing.T, field, filename string, content []byte, style string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		part.Write(content)
	}
	if style != "" {
		require.NoError(t, w.WriteField("style", style))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestStart(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Start").Return(capture.Session{ID: "20250101-120000.000", StartedAt: time.Now()}, nil).Once()

	rec, resp := env.do(httptest.NewRequest(http.MethodPost, "/start", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Recording started", resp.Message)
}

func TestStart_AlreadyRecording(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Start").Return(capture.Session{},
		apperrors.New(apperrors.KindAlreadyRecording, "session.start", "recording already in progress")).Once()

	rec, resp := env.do(httptest.NewRequest(http.MethodPost, "/start", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "recording already in progress", resp.Message)
	assert.Equal(t, "already_recording", resp.Data.(map[string]any)["kind"])
}

func TestStop(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Stop").Return(&pipeline.PublishedAsset{URL: "/artifacts/model_fox.glb", Version: "v2"}, nil).Once()

	rec, resp := env.do(httptest.NewRequest(http.MethodPost, "/stop", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Recording stopped", resp.Message)
	assert.Equal(t, "/artifacts/model_fox.glb", resp.Data.(map[string]any)["url"])
}

func TestStop_NotRecording(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Stop").Return(nil, nil).Once()

	rec, resp := env.do(httptest.NewRequest(http.MethodPost, "/stop", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Not recording", resp.Message)
}

func TestStop_StageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Stop").Return(nil,
		apperrors.Wrap(apperrors.KindImageGeneration, "pipeline.generate_image", "generate_image failed",
			assert.AnError)).Once()

	rec, resp := env.do(httptest.NewRequest(http.MethodPost, "/stop", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, resp.Message, "generate_image failed")
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Upload", mock.MatchedBy(func(p string) bool {
		data, err := os.ReadFile(p)
		return err == nil && string(data) == "webm audio" && filepath.Dir(p) == env.uploadDir && filepath.Ext(p) == ".webm"
	}), "voxel").Return(&pipeline.PublishedAsset{URL: "/artifacts/model_fox.glb"}, nil).Once()

	body, ctype := multipartBody(t, "audio", "clip.webm", []byte("webm audio"), "voxel")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)

	rec, resp := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	env.controller.AssertExpectations(t)
}

func TestUpload_FileAlias(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Upload", mock.Anything, "").Return(&pipeline.PublishedAsset{URL: "/artifacts/model_x.glb"}, nil).Once()

	body, ctype := multipartBody(t, "file", "clip.wav", []byte("wav audio"), "")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)

	rec, _ := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		err    error
		status int
	}{
		{name: "missing field", field: "", status: http.StatusBadRequest},
		{name: "wrong field", field: "video", status: http.StatusBadRequest},
		{
			name:   "conversion failed",
			field:  "audio",
			err:    apperrors.New(apperrors.KindConversion, "normalize", "converter produced empty audio"),
			status: http.StatusBadRequest,
		},
		{
			name:   "busy",
			field:  "audio",
			err:    apperrors.New(apperrors.KindAlreadyRecording, "session.upload", "session busy"),
			status: http.StatusInternalServerError,
		},
		{
			name:   "transcription failed",
			field:  "audio",
			err:    apperrors.New(apperrors.KindTranscription, "asr.transcribe", "transcription service failed"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.err != nil {
				env.controller.On("Upload", mock.Anything, "").Return(nil, tt.err).Once()
			}

			body, ctype := multipartBody(t, tt.field, "clip.wav", []byte("audio"), "")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ctype)

			rec, resp := env.do(req)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			if tt.err == nil {
				env.controller.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestUpload_BusyRemovesFile(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Upload", mock.Anything, "").
		Return(nil, apperrors.New(apperrors.KindAlreadyRecording, "session.upload", "session busy")).Once()

	body, ctype := multipartBody(t, "audio", "clip.wav", []byte("audio"), "")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	env.do(req)

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	body, ctype := multipartBody(t, "audio", "clip.wav", bytes.Repeat([]byte("a"), 2<<20), "")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)

	rec, _ := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusHealthMetricsAndArtifacts(t *testing.T) {
	env := newTestEnv(t)
	env.controller.On("Snapshot").Return(session.Snapshot{State: session.StateGenerating, SessionID: "s1"}).Once()
	require.NoError(t, os.WriteFile(filepath.Join(env.artifactDir, "model_fox.glb"), []byte("glTF"), 0o644))

	rec, resp := env.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "generating", data["state"])
	assert.Equal(t, float64(2), data["observers"])

	rec, _ = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec, _ = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "voice3d_commands_total")

	rec, _ = env.do(httptest.NewRequest(http.MethodGet, "/artifacts/model_fox.glb", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "glTF", rec.Body.String())
}

func TestBuild_RequiresArtifactDir(t *testing.T) {
	_, err := Build(Options{})
	assert.Error(t, err)
}

type stageNames struct {
	seen map[string]int
}

func (s *stageNames) RecordStage(stage string, _ time.Duration, _ string) {
	s.seen[stage]++
}

func TestObservabilityMiddleware_UnmatchedPathsShareOneName(t *testing.T) {
	rec := &stageNames{seen: map[string]int{}}
	shutdown, err := observability.Setup(context.Background(), observability.Config{
		StageComponents: []string{"http.server"},
	}, nil, rec)
	require.NoError(t, err)
	defer shutdown(context.Background())

	env := newTestEnv(t)
	env.controller.On("Snapshot").Return(session.Snapshot{State: session.StateIdle})

	env.do(httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/.env", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/artifacts/missing.glb", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, map[string]int{"http unmatched": 3, "http /status": 1}, rec.seen)
}
