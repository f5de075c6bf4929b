package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

const shutdownTimeout = 15 * time.Second

// ServerConfig configures the API listener.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the API HTTP server.
type Server struct {
	srv    *http.Server
	logger logger.LoggerInterface
}

// NewRouter builds the gin engine serving h under /v1.
func NewRouter(h *Handler, log logger.LoggerInterface) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error(c.Request.Context(), "panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path)
		appErr := apperror.New(apperror.CodeInternalError, apperror.WithContext(fmt.Sprint(recovered)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToResponse())
	}))
	r.Use(loggingMiddleware(log))

	h.RegisterRoutes(r.Group("/v1"))
	return r
}

func loggingMiddleware(log logger.LoggerInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Error(c.Request.Context(), "request completed", args...)
		case status >= 400:
			log.Warn(c.Request.Context(), "request completed", args...)
		default:
			log.Info(c.Request.Context(), "request completed", args...)
		}
	}
}

// NewServer creates a Server for router.
func NewServer(cfg ServerConfig, router http.Handler, log logger.LoggerInterface) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           otelhttp.NewHandler(router, "arbguard-api"),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		},
		logger: log,
	}
}

// Start listens and serves in the background. Listen errors are returned
// synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", s.srv.Addr, err)
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), "api server stopped", "error", err)
		}
	}()

	s.logger.Info(context.Background(), "api server listening", "addr", ln.Addr().String())
	return nil
}

// Close drains in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
