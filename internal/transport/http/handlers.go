package httptransport

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voice3d-server/internal/domain/capture"
	"voice3d-server/internal/domain/pipeline"
	"voice3d-server/internal/domain/session"
	apperrors "voice3d-server/internal/platform/errors"
	"voice3d-server/internal/utils"
)

const defaultMaxUpload = 50 << 20

// uploadFields are accepted in order.
var uploadFields = []string{"audio", "file"}

// Controller is the command side of the session state machine.
type Controller interface {
	Start(ctx context.Context) (capture.Session, error)
	Stop(ctx context.Context) (*pipeline.PublishedAsset, error)
	Upload(ctx context.Context, audioPath, style string) (*pipeline.PublishedAsset, error)
	Snapshot() session.Snapshot
}

// ObserverCounter reports connected websocket observers.
type ObserverCounter interface {
	Count() int
}

type HandlerOptions struct {
	UploadDir      string
	MaxUploadBytes int64
	WebsocketPath  string
	Websocket      http.HandlerFunc
	Metrics        http.Handler
	MetricsPath    string
}

// Handler exposes the recording commands over HTTP.
type Handler struct {
	controller Controller
	observers  ObserverCounter
	opts       HandlerOptions
	logger     *utils.Logger
}

func NewHandler(controller Controller, observers ObserverCounter, opts HandlerOptions, logger *utils.Logger) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	if opts.WebsocketPath == "" {
		opts.WebsocketPath = "/ws"
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Handler{controller: controller, observers: observers, opts: opts, logger: logger}
}

func (h *Handler) RegisterRoutes(router *Router) {
	r := router.Engine
	r.POST("/start", h.Start)
	r.POST("/stop", h.Stop)
	r.POST("/upload", h.Upload)
	r.GET("/status", h.Status)
	r.GET("/healthz", h.Health)
	if h.opts.Websocket != nil {
		r.GET(h.opts.WebsocketPath, gin.WrapF(h.opts.Websocket))
	}
	if h.opts.Metrics != nil {
		r.GET(h.opts.MetricsPath, gin.WrapH(h.opts.Metrics))
	}
}

func (h *Handler) Start(c *gin.Context) {
	sess, err := h.controller.Start(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{
		"session_id": sess.ID,
		"started_at": sess.StartedAt,
	}, "Recording started")
}

// Stop waits for the chain the stop launches, so a stage failure reaches
// the caller.
func (h *Handler) Stop(c *gin.Context) {
	asset, err := h.controller.Stop(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	if asset == nil {
		RespondSuccess(c, http.StatusOK, nil, "Not recording")
		return
	}
	RespondSuccess(c, http.StatusOK, asset, "Recording stopped")
}

func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)

	file, err := formFile(c)
	if err != nil {
		h.logger.WarnTag("HTTP", "upload rejected: %v", err)
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	path, err := h.save(c, file)
	if err != nil {
		h.logger.ErrorTag("HTTP", "store upload: %v", err)
		RespondError(c, http.StatusInternalServerError, "could not store upload", nil)
		return
	}

	asset, err := h.controller.Upload(c.Request.Context(), path, strings.TrimSpace(c.PostForm("style")))
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindAlreadyRecording) {
			os.Remove(path)
		}
		status := http.StatusInternalServerError
		if apperrors.IsKind(err, apperrors.KindConversion) {
			status = http.StatusBadRequest
		}
		h.fail(c, status, err)
		return
	}
	RespondSuccess(c, http.StatusOK, asset, "Upload processed")
}

func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	for _, field := range uploadFields {
		file, err := c.FormFile(field)
		if err == nil {
			return file, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
	}
	return nil, fmt.Errorf("missing form field %q", uploadFields[0])
}

func (h *Handler) save(c *gin.Context, file *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(h.opts.UploadDir, 0o755); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".bin"
	}
	dst := filepath.Join(h.opts.UploadDir, "upload-"+uuid.NewString()+ext)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	session.Snapshot
	Observers int `json:"observers"`
}

func (h *Handler) Status(c *gin.Context) {
	resp := StatusResponse{Snapshot: h.controller.Snapshot()}
	if h.observers != nil {
		resp.Observers = h.observers.Count()
	}
	RespondSuccess(c, http.StatusOK, resp, "")
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) fail(c *gin.Context, status int, err error) {
	h.logger.ErrorTag("HTTP", "%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	RespondFailure(c, status, err)
}
