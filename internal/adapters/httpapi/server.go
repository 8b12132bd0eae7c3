// Package httpapi exposes core.Service over a JSON and multipart HTTP API.
package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/internal/core"
	"github.com/nrzngr/exvoria-strat-management/internal/media"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

const (
	// DefaultMaxMultipartBytes bounds the in-memory part of multipart parsing.
	DefaultMaxMultipartBytes = 32 << 20
	// DefaultMaxRequestBytes bounds every request body.
	DefaultMaxRequestBytes = 64 << 20
)

// Server routes HTTP requests to a core.Service.
type Server struct {
	svc          *core.Service
	logger       *zap.Logger
	gatherer     prometheus.Gatherer
	maxMultipart int64
	maxRequest   int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer sets the registry served at /metrics. Without one the route
// is not mounted.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithMaxMultipartBytes overrides DefaultMaxMultipartBytes.
func WithMaxMultipartBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxMultipart = n
		}
	}
}

// WithMaxRequestBytes overrides DefaultMaxRequestBytes.
func WithMaxRequestBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxRequest = n
		}
	}
}

// New constructs a Server.
func New(svc *core.Service, opts ...Option) *Server {
	s := &Server{
		svc:          svc,
		logger:       zap.NewNop(),
		maxMultipart: DefaultMaxMultipartBytes,
		maxRequest:   DefaultMaxRequestBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine serving every route.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = s.maxMultipart
	r.Use(gin.Recovery(), s.accessLog(), s.limitBody())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	maps := api.Group("/maps")
	maps.GET("", s.listMaps)
	maps.POST("", s.createMap)
	maps.GET("/:mapID", s.getMap)
	maps.PUT("/:mapID", s.updateMap)
	maps.DELETE("/:mapID", s.deleteMap)
	maps.POST("/:mapID/thumbnail", s.setThumbnail)
	maps.GET("/:mapID/strategies", s.listMapStrategies)

	strategies := api.Group("/strategies")
	strategies.GET("", s.searchStrategies)
	strategies.POST("", s.createStrategy)
	strategies.GET("/:strategyID", s.getStrategy)
	strategies.PUT("/:strategyID", s.updateStrategy)
	strategies.DELETE("/:strategyID", s.deleteStrategy)
	strategies.GET("/:strategyID/versions", s.listVersions)
	strategies.GET("/:strategyID/versions/:number", s.getVersion)
	strategies.POST("/:strategyID/images", s.uploadImages)

	images := api.Group("/images")
	images.PATCH("/:imageID", s.updateImage)
	images.DELETE("/:imageID", s.deleteImage)

	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxRequest)
		}
		c.Next()
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var ve domain.ValidationError
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, new(*media.UploadError)):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	s.failWith(c, err, nil)
}

// failWith is fail for operations that may have committed a strategy before
// an upload stopped; detail is echoed back in that case.
func (s *Server) failWith(c *gin.Context, err error, detail *domain.StrategyDetail) {
	status := statusFor(err)
	var ue *media.UploadError
	if status == http.StatusBadGateway && errors.As(err, &ue) {
		s.uploadFailed(c, ue, detail)
		return
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

type uploadFailure struct {
	Error    string                 `json:"error"`
	Failed   string                 `json:"failed"`
	Stored   []string               `json:"stored"`
	Rejected []rejectedFile         `json:"rejected"`
	Strategy *domain.StrategyDetail `json:"strategy,omitempty"`
}

// uploadFailed reports a batch stopped by a storage error. Files stored
// before it were committed and are listed next to the rejects.
func (s *Server) uploadFailed(c *gin.Context, ue *media.UploadError, detail *domain.StrategyDetail) {
	s.logger.Error("upload failed",
		zap.String("path", c.FullPath()),
		zap.String("file", ue.File),
		zap.Error(ue.Err))
	stored := make([]string, 0, len(ue.Report.Uploaded))
	for _, up := range ue.Report.Uploaded {
		stored = append(stored, up.Name)
	}
	c.AbortWithStatusJSON(http.StatusBadGateway, uploadFailure{
		Error:    fmt.Sprintf("storing %s failed; files before it were saved", ue.File),
		Failed:   ue.File,
		Stored:   stored,
		Rejected: rejectedFiles(ue.Report),
		Strategy: detail,
	})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// badInput is badRequest for body read errors; an exhausted body limit is 413.
func (s *Server) badInput(c *gin.Context, msg string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
			errorResponse{Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
		return
	}
	s.badRequest(c, msg+": "+err.Error())
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// readParts loads the parts into memory, at most limit+1 bytes each. Parts
// declared larger than limit are not read; their size alone gets them
// rejected.
func readParts(headers []*multipart.FileHeader, limit int64) ([]media.File, error) {
	files := make([]media.File, 0, len(headers))
	for _, fh := range headers {
		if limit > 0 && fh.Size > limit {
			files = append(files, media.File{Name: fh.Filename, Size: fh.Size})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		var r io.Reader = f
		if limit > 0 {
			r = io.LimitReader(f, limit+1)
		}
		data, err := io.ReadAll(r)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, media.File{Name: fh.Filename, Data: data, Size: fh.Size})
	}
	return files, nil
}

func (s *Server) readFiles(headers []*multipart.FileHeader) ([]media.File, error) {
	return readParts(headers, s.svc.UploadConstraints().MaxBytes)
}

type rejectedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func rejectedFiles(report media.Report) []rejectedFile {
	out := make([]rejectedFile, 0, len(report.Rejected))
	for _, r := range report.Rejected {
		out = append(out, rejectedFile{Name: r.Name, Error: r.Err.Error()})
	}
	return out
}
