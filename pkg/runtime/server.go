package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Request is the body of POST /mcp. Value is the wei to send with a payable
// method; it travels beside params so it cannot collide with an input name.
type Request struct {
	Method  string          `json:"method" binding:"required"`
	Params  Args            `json:"params"`
	Value   json.RawMessage `json:"value,omitempty"`
	Context map[string]any  `json:"context,omitempty"`
}

// Response is the body returned by POST /mcp. Context echoes the request's.
type Response struct {
	Result  Result         `json:"result"`
	Context map[string]any `json:"context,omitempty"`
}

// Server exposes a Registry over HTTP.
type Server struct {
	name     string
	state    *State
	registry Registry
	logger   *zap.Logger
	engine   *gin.Engine
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewServer creates a Server for the named contract.
func NewServer(name string, st *State, reg Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	registry := prometheus.NewRegistry()
	s := &Server{
		name:     name,
		state:    st,
		registry: reg,
		logger:   logger,
		engine:   gin.New(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparkmango",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Method invocations by method and status.",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sparkmango",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Method invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	registry.MustRegister(s.requests, s.duration)

	s.engine.Use(gin.Recovery())
	s.engine.POST("/mcp", s.handleInvoke)
	s.engine.GET("/methods", s.handleMethods)
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "contract": s.name})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("contract server listening", zap.String("addr", addr), zap.String("contract", s.name))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleInvoke(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log := s.logger.With(zap.String("method", req.Method))

	if _, ok := s.registry[req.Method]; !ok {
		s.requests.WithLabelValues("unknown", "not_found").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "method " + req.Method + " not found"})
		return
	}

	if len(req.Value) > 0 {
		if req.Params == nil {
			req.Params = Args{}
		}
		req.Params[ValueKey] = req.Value
	}

	start := time.Now()
	result, err := s.registry.Invoke(c.Request.Context(), req.Method, s.state, req.Params)
	s.duration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		s.requests.WithLabelValues(req.Method, "error").Inc()
		log.Error("method failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.requests.WithLabelValues(req.Method, "ok").Inc()
	log.Debug("method executed")
	c.JSON(http.StatusOK, Response{Result: result, Context: req.Context})
}

func (s *Server) handleMethods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contract": s.name, "methods": s.registry.Names()})
}
