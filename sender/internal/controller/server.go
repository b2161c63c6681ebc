package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledMatrix/sender/internal/framer"
)

const shutdownTimeout = 5 * time.Second

type Runner interface {
	Switch(name string) error
	Current() string
}

type Sources interface {
	Names() []string
}

type Stats interface {
	Sent() int64
	Failed() int64
}

type Deps struct {
	Runner  Runner
	Sources Sources
	Stats   Stats
}

type Server struct {
	deps   Deps
	server *http.Server
	logger *zap.Logger
}

func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	r := &Server{
		deps:   deps,
		logger: logger.Named("api"),
	}
	r.server = &http.Server{
		Addr:              addr,
		Handler:           r.newAPI(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return r
}

func (r *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.server.Addr, err)
	}

	return r.Serve(ctx, ln)
}

// Serve runs until ctx is done and then gives in-flight requests
// shutdownTimeout to finish.
func (r *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.server.Serve(ln)
	}()

	r.logger.Info("api listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := r.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	r.logger.Info("api stopped")

	return nil
}

func (r *Server) newAPI() *gin.Engine {
	eng := gin.New()
	eng.Use(gin.Recovery())

	apiV1 := eng.Group("/v1")
	apiV1.GET("/health", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	apiV1.GET("/status", r.status)
	apiV1.POST("/source", r.setSource)

	return eng
}

type statusResponse struct {
	Source  string   `json:"source"`
	Sources []string `json:"sources"`
	Sent    int64    `json:"sent"`
	Failed  int64    `json:"failed"`
}

func (r *Server) status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, statusResponse{
		Source:  r.deps.Runner.Current(),
		Sources: r.deps.Sources.Names(),
		Sent:    r.deps.Stats.Sent(),
		Failed:  r.deps.Stats.Failed(),
	})
}

type sourceRequest struct {
	Source string `json:"source" binding:"required"`
}

func (r *Server) setSource(ctx *gin.Context) {
	var req sourceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := r.deps.Runner.Switch(req.Source); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, framer.ErrUnknownSource) {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, gin.H{"error": err.Error(), "sources": r.deps.Sources.Names()})
		return
	}

	r.logger.Info("source change requested", zap.String("source", req.Source))
	ctx.JSON(http.StatusAccepted, gin.H{"source": req.Source})
}
