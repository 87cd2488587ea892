package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/snapgate/snapgate/internal/cache"
	"github.com/snapgate/snapgate/internal/renderer"
	"github.com/snapgate/snapgate/pkg/models"
	"github.com/snapgate/snapgate/pkg/shared"
)

func (s *Server) screenshotQuery(c *gin.Context) {
	var req models.ScreenshotRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	s.serveScreenshot(c, req)
}

func (s *Server) screenshot(c *gin.Context) {
	var req models.ScreenshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	s.serveScreenshot(c, req)
}

func (s *Server) serveScreenshot(c *gin.Context, req models.ScreenshotRequest) {
	opts := req.Options()
	if err := shared.ValidateCaptureOptions(opts); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	fingerprint, err := opts.Fingerprint()
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to fingerprint request"})
		return
	}

	artifact, hit, err := s.cache.GetOrCompute(c.Request.Context(), fingerprint, s.cacheTTL, s.captureProducer(opts))
	if err != nil {
		s.captureError(c, err)
		return
	}

	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Data(200, artifact.ContentType, artifact.Data)
}

func (s *Server) batchScreenshot(c *gin.Context) {
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if len(req.URLs) == 0 {
		c.JSON(400, gin.H{"error": "urls is required"})
		return
	}
	if len(req.URLs) > shared.MaxBatchURLs {
		c.JSON(400, gin.H{"error": fmt.Sprintf("batch is limited to %d urls", shared.MaxBatchURLs)})
		return
	}

	results := make([]models.BatchItemResult, 0, len(req.URLs))
	for _, url := range req.URLs {
		itemReq := req.Settings
		itemReq.URL = url
		results = append(results, s.batchItem(c.Request.Context(), itemReq))
	}

	c.JSON(200, models.BatchResponse{
		Total:   len(results),
		Results: results,
	})
}

func (s *Server) batchItem(ctx context.Context, req models.ScreenshotRequest) models.BatchItemResult {
	opts := req.Options()
	if err := shared.ValidateCaptureOptions(opts); err != nil {
		return models.BatchItemResult{URL: req.URL, Status: "error", Message: err.Error()}
	}

	fingerprint, err := opts.Fingerprint()
	if err != nil {
		return models.BatchItemResult{URL: req.URL, Status: "error", Message: "failed to fingerprint request"}
	}

	artifact, _, err := s.cache.GetOrCompute(ctx, fingerprint, s.cacheTTL, s.captureProducer(opts))
	if err != nil {
		return models.BatchItemResult{URL: req.URL, Status: "error", Message: err.Error()}
	}

	return models.BatchItemResult{
		URL:    req.URL,
		Status: "success",
		Data: fmt.Sprintf("data:%s;base64,%s", artifact.ContentType,
			base64.StdEncoding.EncodeToString(artifact.Data)),
	}
}

func (s *Server) captureProducer(opts shared.CaptureOptions) cache.Producer {
	return func(ctx context.Context) (cache.Artifact, error) {
		captureCtx, cancel := context.WithTimeout(ctx, s.captureTimeout)
		defer cancel()

		result, err := s.renderer.Capture(captureCtx, opts)
		if err != nil {
			return cache.Artifact{}, err
		}
		return cache.Artifact{Data: result.Data, ContentType: result.ContentType}, nil
	}
}

func (s *Server) captureError(c *gin.Context, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(400, gin.H{"error": verr.Error()})
	case errors.Is(err, renderer.ErrCaptureTimeout):
		c.JSON(504, gin.H{"error": "capture timed out"})
	case errors.Is(err, context.Canceled):
		c.JSON(499, gin.H{"error": "request cancelled"})
	default:
		var cerr *renderer.CaptureError
		if errors.As(err, &cerr) {
			c.JSON(502, gin.H{"error": cerr.Message})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
	}
}
