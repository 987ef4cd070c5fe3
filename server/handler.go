package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/krau/emotagger/service"
)

type PredictRequest struct {
	Text string `json:"text"`
	TopK *int   `json:"top_k"`
}

type Handler struct {
	resolver    *service.Resolver
	defaultTopK int
	repo        string
	modelDir    string
}

func NewHandler(resolver *service.Resolver, defaultTopK int, repo, modelDir string) *Handler {
	return &Handler{
		resolver:    resolver,
		defaultTopK: defaultTopK,
		repo:        repo,
		modelDir:    modelDir,
	}
}

func (h *Handler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindMessage(err)})
		return
	}

	topK := h.defaultTopK
	if req.TopK != nil {
		switch {
		case *req.TopK < 0:
			c.JSON(http.StatusBadRequest, gin.H{"error": topKMessage})
			return
		case *req.TopK > 0:
			topK = *req.TopK
		}
	}

	resp, err := service.ModelPredict(c.Request.Context(), h.resolver, req.Text, topK)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Prediction failed",
				slog.String("request_id", c.GetString(requestIDKey)),
				slog.String("error", err.Error()))
		}
		c.JSON(status, gin.H{"error": message(err)})
		return
	}

	c.JSON(http.StatusOK, resp)
}

const topKMessage = "'top_k' must be a positive integer"

// bindMessage names top_k when it is the field that failed to decode.
func bindMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field == "top_k" {
		return topKMessage
	}
	return "Missing 'text' as string"
}

func statusFor(err error) int {
	if errors.Is(err, service.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func message(err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return err.Error()
	case errors.Is(err, service.ErrConfiguration), errors.Is(err, service.ErrModelLoad):
		return "Model load error: " + strings.TrimPrefix(err.Error(), service.ErrModelLoad.Error()+": ")
	default:
		return "Inference error: " + strings.TrimPrefix(err.Error(), service.ErrInference.Error()+": ")
	}
}

// Root reports the configured source and whether labels are loaded.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"repo":      h.repo,
		"model_dir": h.modelDir,
		"labels":    len(h.resolver.Labels()) > 0,
		"ready":     h.resolver.Loaded(),
	})
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
