package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nijenhuis/api-guard/internal/models"
	"go.uber.org/zap"
)

// loggerMiddleware logs HTTP requests
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		method := c.Request.Method
		clientIP := c.ClientIP()

		s.logger.Info("HTTP Request",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("client_ip", clientIP),
		)
	}
}

// corsMiddleware handles CORS
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range s.cfg.Security.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin != "" {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			}
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-API-Key, X-Admin-Token")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// securityMiddleware runs the full decision chain for one request:
// IP blocking, rate limiting, then authentication. The rate-limit slot
// is charged whether or not authentication later succeeds.
func (s *Server) securityMiddleware(required models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		apiKey := extractAPIKey(c)
		identifier := clientIP + ":" + keyPrefix(apiKey)

		if ok, reason := s.sec.CheckIPBlocking(clientIP); !ok {
			s.sec.RecordRequest(false)
			c.JSON(403, gin.H{"error": reason})
			c.Abort()
			return
		}

		if ok, reason := s.sec.CheckRateLimit(identifier, apiKey); !ok {
			s.sec.RecordRequest(false)
			c.JSON(429, gin.H{"error": reason})
			c.Abort()
			return
		}

		if ok, reason := s.sec.Authenticate(apiKey, required); !ok {
			s.sec.RecordFailedAttempt(identifier, clientIP)
			s.sec.RecordRequest(false)
			s.logger.Warn("Authentication failed",
				zap.String("key_prefix", maskAPIKey(apiKey)),
				zap.String("client_ip", clientIP),
				zap.String("reason", reason))
			c.JSON(401, gin.H{"error": reason})
			c.Abort()
			return
		}

		s.sec.ResetFailures(identifier)
		s.sec.RecordRequest(true)

		c.Set("api_key", apiKey)
		c.Next()
	}
}

// adminAuthMiddleware checks admin authentication
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")

		if token == "" {
			c.JSON(401, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		expectedToken := adminToken(s.cfg.Security.AdminPassword)
		if token != expectedToken {
			s.logger.Warn("Invalid admin token attempt",
				zap.String("client_ip", c.ClientIP()))
			c.JSON(401, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractAPIKey reads the key from X-API-Key or an Authorization bearer
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}

	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return authHeader
}

// keyPrefix returns the identifier component derived from the API key,
// so distinct keys behind one IP get separate rate windows
func keyPrefix(key string) string {
	if key == "" {
		return "anonymous"
	}
	if len(key) <= 10 {
		return key
	}
	return key[:10]
}

// maskAPIKey returns a masked version of the API key for logging
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
