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

	"ledMatrix/display/internal/entity"
	"ledMatrix/display/internal/loop"
	"ledMatrix/display/internal/selector"
	"ledMatrix/display/internal/subscription"
	"ledMatrix/display/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

type Selector interface {
	RequestChange(address string)
	Snapshot() selector.Snapshot
}

type Subscriptions interface {
	State() subscription.State
}

type Phases interface {
	Phase() loop.Phase
}

type Telemetry interface {
	Snapshot() telemetry.Snapshot
}

// Sources resolves a source name to its configured address.
type Sources interface {
	Address(source entity.Source) (string, bool)
}

type Deps struct {
	Selector      Selector
	Subscriptions Subscriptions
	Phases        Phases
	Telemetry     Telemetry
	Sources       Sources
}

type Server struct {
	addr   string
	deps   Deps
	server *http.Server
	logger *zap.Logger
}

func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	r := &Server{
		addr:   addr,
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

// Start serves until ctx is done, then shuts the server down gracefully.
func (r *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.addr, err)
	}

	return r.Serve(ctx, ln)
}

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
	apiV1.GET("/health", r.health)
	apiV1.GET("/status", r.status)

	apiV1.POST("/source", r.setSource)

	return eng
}

func (r *Server) health(ctx *gin.Context) {
	ctx.Status(http.StatusOK)
}

type subscriptionStatus struct {
	State   string `json:"state"`
	Address string `json:"address,omitempty"`
	Session string `json:"session,omitempty"`
}

type statusResponse struct {
	Phase        string             `json:"phase"`
	Subscription subscriptionStatus `json:"subscription"`
	Request      selector.Snapshot  `json:"request"`
	Telemetry    telemetry.Snapshot `json:"telemetry"`
}

func (r *Server) status(ctx *gin.Context) {
	resp := statusResponse{
		Phase:     r.deps.Phases.Phase().String(),
		Request:   r.deps.Selector.Snapshot(),
		Telemetry: r.deps.Telemetry.Snapshot(),
	}

	switch s := r.deps.Subscriptions.State().(type) {
	case subscription.Connected:
		resp.Subscription = subscriptionStatus{
			State:   "connected",
			Address: s.Address,
			Session: s.Session.String(),
		}
	default:
		resp.Subscription = subscriptionStatus{State: "disconnected"}
	}

	ctx.JSON(http.StatusOK, resp)
}

type sourceRequest struct {
	Source entity.Source `json:"source" binding:"required"`
}

func (r *Server) setSource(ctx *gin.Context) {
	var req sourceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	address, ok := r.deps.Sources.Address(req.Source)
	if !ok {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown source %q", req.Source)})
		return
	}

	r.deps.Selector.RequestChange(address)
	r.logger.Info("source change requested", zap.String("source", string(req.Source)), zap.String("address", address))

	ctx.JSON(http.StatusAccepted, gin.H{"source": req.Source, "address": address})
}
