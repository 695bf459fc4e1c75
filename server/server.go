// Package server - HTTP API for running detections.
package server

import (
	"context"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/model/preprocess"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// DefaultMaxImageBytes caps the size of an uploaded image.
	DefaultMaxImageBytes = 16 << 20
	// ImageField is the multipart form field holding the image.
	ImageField = "image"

	requestIDKey = "request_id"
)

// ErrBadImage is returned for request bodies that are not a decodable image.
var ErrBadImage = errors.New("bad image")

// Detector runs detection on a decoded image. *inference.Engine implements it.
type Detector interface {
	DetectScaled(ctx context.Context, img image.Image) ([]postprocess.Result, error)
	Options() model.Config
}

// DetectResponse is the body of a successful POST /v1/detect.
type DetectResponse struct {
	RequestID  string                  `json:"request_id"`
	Width      int                     `json:"width"`
	Height     int                     `json:"height"`
	Detections []postprocess.Detection `json:"detections"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// Server serves the detection API.
type Server struct {
	detector      Detector
	log           *zap.Logger
	profiler      *profiler.StageProfiler
	maxImageBytes int64
	router        *gin.Engine
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithProfiler exposes the profiler's statistics on GET /v1/stats.
func WithProfiler(p *profiler.StageProfiler) Option {
	return func(s *Server) {
		s.profiler = p
	}
}

// WithMaxImageBytes limits the accepted upload size.
func WithMaxImageBytes(n int64) Option {
	return func(s *Server) {
		s.maxImageBytes = n
	}
}

// New creates a server for detector.
//
// Arguments:
//   - detector: The detector that handles POST /v1/detect.
//   - opts: Optional settings.
//
// Returns:
//   - *Server: The server. Use Handler or Run to serve it.
func New(detector Detector, opts ...Option) *Server {
	s := &Server{
		detector:      detector,
		log:           zap.NewNop(),
		maxImageBytes: DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(requestID(), requestLogger(s.log), gin.Recovery())
	r.GET("/healthz", s.health)
	r.GET("/v1/classes", s.classes)
	r.GET("/v1/stats", s.stats)
	r.POST("/v1/detect", s.detect)
	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) classes(c *gin.Context) {
	cfg := s.detector.Options()
	set, err := cfg.ClassSet()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"family": set.Style, "classes": set.Names()})
}

func (s *Server) stats(c *gin.Context) {
	if s.profiler == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{RequestID: c.GetString(requestIDKey), Error: "profiling disabled"})
		return
	}
	c.JSON(http.StatusOK, s.profiler.Stats())
}

func (s *Server) detect(c *gin.Context) {
	img, err := s.readImage(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	results, err := s.detector.DetectScaled(c.Request.Context(), img)
	if err != nil {
		s.fail(c, err)
		return
	}

	b := img.Bounds()
	c.JSON(http.StatusOK, DetectResponse{
		RequestID:  c.GetString(requestIDKey),
		Width:      b.Dx(),
		Height:     b.Dy(),
		Detections: postprocess.Detections(results),
	})
}

// readImage decodes the multipart "image" field, or the raw body for any
// other content type.
func (s *Server) readImage(c *gin.Context) (image.Image, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxImageBytes)

	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile(ImageField)
		if err != nil {
			return nil, errors.Wrapf(ErrBadImage, "missing form field %q: %v", ImageField, err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrapf(ErrBadImage, "open upload: %v", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(ErrBadImage, "read body: %v", err)
	}
	img, err := images.Decode(data)
	if err != nil {
		return nil, errors.Wrap(ErrBadImage, err.Error())
	}
	return img, nil
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadImage), errors.Is(err, preprocess.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Checked ahead of backend errors, which wrap the context error.
		return http.StatusServiceUnavailable
	case inference.IsBackendError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	id := c.GetString(requestIDKey)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String(requestIDKey, id), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: id, Error: err.Error()})
}

// requestID reuses the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String(requestIDKey, c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
