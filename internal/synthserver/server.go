// Package synthserver serves the synthesis endpoint consumed by the remote
// narration backend.
package synthserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lessonshelf/lectern/tts/engines/remote"
)

// Routes served by the router.
const (
	SynthesisPath = "/api/text-to-speech"
	DebugPath     = "/api/debug-tts"
)

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config configures a Server.
type Config struct {
	Addr           string
	AllowedOrigins []string            // "*" allows any origin
	Getenv         func(string) string // Environment lookup for the debug report
}

// Server is the synthesis HTTP server.
type Server struct {
	http   *http.Server
	logger *log.Logger
}

// New creates a server backed by synth.
func New(synth Synthesizer, cfg Config) *Server {
	logger := log.WithPrefix("serve")
	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(synth, cfg, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", s.http.Addr)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// NewRouter builds the gin router.
func NewRouter(synth Synthesizer, cfg Config, logger *log.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(cfg.AllowedOrigins))

	h := &handler{synth: synth, getenv: cfg.Getenv, logger: logger}
	r.POST(SynthesisPath, h.synthesize)
	r.GET(DebugPath, h.debug)
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

type handler struct {
	synth  Synthesizer
	getenv func(string) string
	logger *log.Logger
}

func (h *handler) synthesize(c *gin.Context) {
	var req remote.Request
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, remote.Response{Error: "text is required"})
		return
	}

	audio, err := h.synth.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		h.logger.Error("Synthesis failed", "chars", len([]rune(req.Text)), "err", err)
		c.JSON(http.StatusInternalServerError, remote.Response{
			Error:   "text-to-speech conversion failed",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, remote.Response{
		Success: true,
		Audio:   base64.StdEncoding.EncodeToString(audio),
		Format:  "mp3",
	})
}
