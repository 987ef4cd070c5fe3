package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/krau/emotagger/config"
	"github.com/krau/emotagger/hub"
	"github.com/krau/emotagger/service"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// NewResolver wires the configured model source to the ONNX loader.
func NewResolver(c config.Config) *service.Resolver {
	src := service.Source{LocalDir: c.ModelDir, Repo: c.HFRepo}
	var fetcher service.Fetcher
	if c.ModelDir == "" && c.HFRepo != "" {
		fetcher = hub.NewFetcher(c.HFRepo, c.CacheDir, c.HFToken, c.FetchRetries)
	}
	loader := service.ONNXLoader{
		SeqLen:       c.MaxSeqLen,
		PoolSize:     c.PoolSize,
		IntraThreads: c.IntraThreads,
	}
	return service.NewResolver(src, fetcher, loader, c.LoadTimeout.Duration)
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	r.GET("/", h.Root)
	r.GET("/health", HealthHandler)
	r.POST("/predict", h.Predict)
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("Request",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}
