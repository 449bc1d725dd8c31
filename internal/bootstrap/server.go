package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	httptransport "voice3d-server/internal/transport/http"
	"voice3d-server/internal/transport/ws"
)

func buildRouter(ctx context.Context, state *appState) (*httptransport.Router, error) {
	cfg := state.config
	logger := state.logger

	router, err := httptransport.Build(httptransport.Options{
		Logger:         logger,
		Debug:          strings.EqualFold(cfg.Log.Level, "debug"),
		StaticRoot:     cfg.Web.StaticDir,
		ArtifactDir:    cfg.Web.ArtifactDir,
		ArtifactPrefix: cfg.Web.ArtifactPrefix,
	})
	if err != nil {
		return nil, err
	}

	wsRouter := ws.NewRouter(ctx, state.hub, logger, ws.RouterOptions{})
	handlerOpts := httptransport.HandlerOptions{
		UploadDir:      cfg.Web.UploadDir,
		MaxUploadBytes: cfg.Web.MaxUploadBytes,
		WebsocketPath:  cfg.Web.WebsocketPath,
		Websocket:      wsRouter.Handle,
	}
	if state.metrics != nil {
		handlerOpts.Metrics = state.metrics.Handler()
		handlerOpts.MetricsPath = cfg.Metrics.Path
	}
	httptransport.NewHandler(state.controller, state.hub, handlerOpts, logger).RegisterRoutes(router)

	router.Engine.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "not found", gin.H{})
	})
	return router, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	cfg := state.config
	logger := state.logger

	router, err := buildRouter(groupCtx, state)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.IP, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", httpServer.Addr)
		logger.InfoTag("HTTP", "websocket observers at ws://%s%s", httpServer.Addr, cfg.Web.WebsocketPath)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), state.shutdownTimeout())
			defer cancel()

			state.hub.CloseAll(ws.ErrSessionShutdown)
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// waitForShutdown blocks until a signal arrives or a service fails, then
// waits for the group within the shutdown timeout.
func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	state *appState,
	g *errgroup.Group,
) error {
	logger := state.logger

	select {
	case <-signalCtx.Done():
		logger.InfoTag("Bootstrap", "shutdown requested: %v", context.Cause(signalCtx))
	case <-groupCtx.Done():
		logger.WarnTag("Bootstrap", "service exited: %v", context.Cause(groupCtx))
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	timeout := state.shutdownTimeout()
	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "shutdown with error: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "all services stopped")
	case <-time.After(timeout):
		logger.ErrorTag("Bootstrap", "shutdown timed out after %s", timeout)
		return errors.New("shutdown timed out")
	}
	return nil
}
