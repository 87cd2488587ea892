package api

import (
	"encoding/base64"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/snapgate/snapgate/internal/compare"
	"github.com/snapgate/snapgate/pkg/models"
	"github.com/snapgate/snapgate/pkg/shared"
)

const defaultThreshold = 0.02

func (s *Server) compareScreenshots(c *gin.Context) {
	var req models.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if req.Baseline == "" {
		c.JSON(400, gin.H{"error": "baseline is required"})
		return
	}

	threshold := defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	candidate, err := s.candidateBytes(c, req)
	if err != nil {
		return // candidateBytes already wrote the response
	}

	result, diffKey, err := s.comparer.CompareWithBaseline(c.Request.Context(), req.Baseline, candidate, threshold)
	if err != nil {
		s.compareError(c, err)
		return
	}

	c.JSON(200, models.CompareResponse{
		Passed:          result.Passed,
		DifferenceRatio: result.DifferenceRatio,
		DiffPixels:      result.DiffPixels,
		TotalPixels:     result.TotalPixels,
		Threshold:       threshold,
		DiffKey:         diffKey,
	})
}

// candidateBytes resolves the comparison candidate from either inline
// base64 bytes or a fresh capture. It writes the error response itself
// and returns a non-nil error to signal the caller to stop.
func (s *Server) candidateBytes(c *gin.Context, req models.CompareRequest) ([]byte, error) {
	if req.Candidate != "" {
		data, err := base64.StdEncoding.DecodeString(req.Candidate)
		if err != nil {
			c.JSON(400, gin.H{"error": "candidate must be base64-encoded image bytes"})
			return nil, err
		}
		return data, nil
	}

	if req.URL == "" {
		err := errors.New("either candidate or url is required")
		c.JSON(400, gin.H{"error": err.Error()})
		return nil, err
	}

	captureReq := models.ScreenshotRequest{URL: req.URL}
	if req.CaptureParams != nil {
		captureReq = *req.CaptureParams
		captureReq.URL = req.URL
	}
	captureReq.Format = "png"

	opts := captureReq.Options()
	if err := shared.ValidateCaptureOptions(opts); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return nil, err
	}

	fingerprint, err := opts.Fingerprint()
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to fingerprint request"})
		return nil, err
	}

	artifact, _, err := s.cache.GetOrCompute(c.Request.Context(), fingerprint, s.cacheTTL, s.captureProducer(opts))
	if err != nil {
		s.captureError(c, err)
		return nil, err
	}
	return artifact.Data, nil
}

func (s *Server) createBaseline(c *gin.Context) {
	var req models.BaselineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if req.Name == "" {
		c.JSON(400, gin.H{"error": "name is required"})
		return
	}

	var data []byte
	switch {
	case req.Image != "":
		decoded, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			c.JSON(400, gin.H{"error": "image must be base64-encoded image bytes"})
			return
		}
		data = decoded
	case req.URL != "":
		compareReq := models.CompareRequest{URL: req.URL, CaptureParams: req.CaptureParams}
		captured, err := s.candidateBytes(c, compareReq)
		if err != nil {
			return
		}
		data = captured
	default:
		c.JSON(400, gin.H{"error": "either image or url is required"})
		return
	}

	if err := s.comparer.SaveBaseline(c.Request.Context(), req.Name, data); err != nil {
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			c.JSON(400, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(201, models.BaselineResponse{Name: req.Name})
}

func (s *Server) getBaseline(c *gin.Context) {
	data, err := s.comparer.Baseline(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, compare.ErrBaselineNotFound) {
			c.JSON(404, gin.H{"error": "baseline not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.Data(200, "image/png", data)
}

func (s *Server) getComparisonDiff(c *gin.Context) {
	data, err := s.comparer.Diff(c.Request.Context(), "comparisons/"+c.Param("id"))
	if err != nil {
		c.JSON(404, gin.H{"error": "comparison not found"})
		return
	}

	c.Data(200, "image/png", data)
}

func (s *Server) compareError(c *gin.Context, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.Is(err, compare.ErrBaselineNotFound):
		c.JSON(404, gin.H{"error": "baseline not found"})
	case errors.Is(err, compare.ErrDimensionMismatch):
		c.JSON(422, gin.H{"error": err.Error()})
	case errors.As(err, &verr):
		c.JSON(400, gin.H{"error": verr.Error()})
	default:
		c.JSON(500, gin.H{"error": err.Error()})
	}
}
