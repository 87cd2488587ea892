package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/snapgate/snapgate/internal/cache"
	"github.com/snapgate/snapgate/internal/jobs"
	"github.com/snapgate/snapgate/pkg/models"
	"github.com/snapgate/snapgate/pkg/shared"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) asyncScreenshot(c *gin.Context) {
	var req models.AsyncScreenshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	opts := req.Options()
	if err := shared.ValidateCaptureOptions(opts); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.WebhookURL != "" {
		if err := shared.ValidateURL(req.WebhookURL); err != nil {
			c.JSON(400, gin.H{"error": "webhook_url: " + err.Error()})
			return
		}
	}

	jobID, err := s.orchestrator.Submit(c.Request.Context(), opts, req.WebhookURL, req.WebhookSecret)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			c.Header("Retry-After", "5")
			c.JSON(503, gin.H{"error": "job queue is full"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(202, models.AsyncScreenshotResponse{
		JobID:     jobID,
		Status:    string(jobs.StatusPending),
		StatusURL: "/jobs/" + jobID,
	})
}

func (s *Server) getJob(c *gin.Context) {
	rec, err := s.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(404, gin.H{"error": "job not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, rec)
}

func (s *Server) getJobArtifact(c *gin.Context) {
	rec, err := s.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(404, gin.H{"error": "job not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	if rec.Status != jobs.StatusCompleted || rec.Result == nil {
		c.JSON(409, gin.H{"error": "job has no artifact", "status": rec.Status})
		return
	}

	data, contentType, err := s.orchestrator.Artifact(c.Request.Context(), rec.Result.ArtifactKey)
	if err != nil {
		if errors.Is(err, cache.ErrBlobNotFound) {
			c.JSON(404, gin.H{"error": "artifact expired"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.Data(200, contentType, data)
}

// watchJob streams job record snapshots over a WebSocket until the job
// reaches a terminal state or the client disconnects.
func (s *Server) watchJob(c *gin.Context) {
	jobID := c.Param("id")

	updates, cancel, err := s.orchestrator.Watch(jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(404, gin.H{"error": "job not found"})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	defer cancel()

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade job watch connection: %v", err)
		return
	}
	defer conn.Close()

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			return
		case rec, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
			if rec.Status.Terminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(rec.Status)))
				return
			}
		}
	}
}
