package api

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/snapgate/snapgate/pkg/shared"
)

const credentialKey = "credential"

// authMiddleware resolves the caller's API key to a credential identity.
// Keys are accepted from the X-API-Key header or the api_key query
// parameter; only SHA-256 digests are kept server side.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = c.Query("api_key")
		}
		if key == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing API key"})
			return
		}

		digest := shared.SHA256Hex([]byte(key))
		if _, ok := s.apiKeys[digest]; !ok {
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(credentialKey, digest)
		c.Next()
	}
}

// rateLimitMiddleware admits or denies the request under the caller's
// sliding windows. Denials are 429 responses with a retry hint, never
// errors.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := c.GetString(credentialKey)

		decision, err := s.governor.Admit(c.Request.Context(), credential)
		if err != nil {
			c.AbortWithStatusJSON(500, gin.H{"error": "rate limit check failed"})
			return
		}

		c.Header("X-RateLimit-Remaining-Minute", strconv.Itoa(decision.RemainingMinute))
		c.Header("X-RateLimit-Remaining-Hour", strconv.Itoa(decision.RemainingHour))

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(429, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
