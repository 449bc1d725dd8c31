package httptransport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"voice3d-server/internal/platform/observability"
	"voice3d-server/internal/utils"
)

type Options struct {
	Logger *utils.Logger
	Debug  bool
	// StaticRoot serves the front-end at "/". Empty disables it.
	StaticRoot     string
	ArtifactDir    string
	ArtifactPrefix string
}

// Router wraps the gin engine.
type Router struct {
	Engine *gin.Engine
}

// Build constructs a gin engine with recovery, logging, CORS, span
// middleware and the static file mounts.
func Build(opts Options) (*Router, error) {
	if opts.ArtifactDir == "" {
		return nil, fmt.Errorf("http router requires an artifact dir")
	}
	prefix := "/" + strings.Trim(opts.ArtifactPrefix, "/")
	if prefix == "/" {
		prefix = "/artifacts"
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(opts.Logger))
	engine.Use(observabilityMiddleware())

	engine.SetTrustedProxies(nil)

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Client-Id"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	engine.Use(static.Serve(prefix, static.LocalFile(opts.ArtifactDir, false)))
	if opts.StaticRoot != "" {
		engine.Use(static.Serve("/", static.LocalFile(opts.StaticRoot, true)))
	}

	return &Router{Engine: engine}, nil
}

func loggingMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(
			"[HTTP] %s %s -> %d (%s)",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

func observabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// unmatched requests share one name so raw URLs never become labels
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		reqCtx, spanEnd := observability.StartSpan(c.Request.Context(), "http.server", "http "+path)
		c.Request = c.Request.WithContext(reqCtx)

		c.Next()

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = c.Errors.Last().Err
		} else if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("status %d", status)
		}
		spanEnd(spanErr)
	}
}
