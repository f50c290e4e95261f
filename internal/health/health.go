// Package health serves liveness and metrics endpoints and optionally pings
// an external URL to keep a hosted instance awake.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	AliveText       = "PureFact bot alive and healthy"
	shutdownTimeout = 5 * time.Second
)

// Router builds the gin engine. gatherer may be nil to omit /metrics.
func Router(gatherer prometheus.Gatherer, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).Msg("handler panic")
		c.AbortWithStatus(http.StatusInternalServerError)
	}))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, AliveText)
	})
	r.HEAD("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Server is the liveness HTTP server.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

func NewServer(addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           Router(gatherer, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("liveness server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("liveness server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("liveness shutdown: %w", err)
	}
	return nil
}

// Pinger requests URL every Interval until its context ends. Failures are
// logged only.
type Pinger struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Logger   zerolog.Logger
}

func (p *Pinger) Run(ctx context.Context) {
	if p.URL == "" || p.Interval <= 0 {
		return
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ping(ctx, client); err != nil {
				p.Logger.Warn().Err(err).Str("url", p.URL).Msg("keep-alive ping failed")
			} else {
				p.Logger.Debug().Str("url", p.URL).Msg("keep-alive ping")
			}
		}
	}
}

func (p *Pinger) ping(ctx context.Context, client *http.Client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
