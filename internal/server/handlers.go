package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/nijenhuis/api-guard/internal/models"
	"github.com/nijenhuis/api-guard/internal/security"
	"go.uber.org/zap"
)

// ==================== Chat ====================

func (s *Server) chat(c *gin.Context) {
	var req struct {
		Message  string `json:"message" binding:"required"`
		Language string `json:"language"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}
	if req.Language == "" {
		req.Language = "nl"
	}

	// Degraded connection: try one bounded reconnection, then serve the
	// localized fallback instead of the business logic
	if !s.monitor.IsHealthy() {
		if !s.monitor.AttemptReconnection(c.Request.Context()) {
			c.JSON(200, gin.H{
				"response": s.monitor.GetFallbackResponse(req.Language, "offline"),
				"fallback": true,
				"status":   s.monitor.Status().Status,
			})
			return
		}
	}

	response, err := s.responder.Respond(c.Request.Context(), req.Message, req.Language)
	if err != nil {
		s.logger.Error("Responder failed", zap.Error(err))
		s.monitor.UpdateHealth(false)
		c.JSON(200, gin.H{
			"response": s.monitor.GetFallbackResponse(req.Language, "error"),
			"fallback": true,
			"status":   s.monitor.Status().Status,
		})
		return
	}

	s.monitor.UpdateHealth(true)
	c.JSON(200, gin.H{
		"response": response,
		"fallback": false,
	})
}

// ==================== Tokens ====================

func (s *Server) issueToken(c *gin.Context) {
	apiKey := c.GetString("api_key")

	key, ok := s.sec.LookupKey(apiKey)
	if !ok {
		c.JSON(401, gin.H{"error": "Invalid API key"})
		return
	}

	token, err := s.sec.IssueToken(apiKey, key.Permissions)
	if err != nil {
		s.logger.Error("Failed to issue token", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(200, gin.H{"token": token})
}

func (s *Server) verifyToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	claims, err := s.sec.VerifyToken(req.Token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			c.JSON(401, gin.H{"valid": false, "error": "Token expired"})
			return
		}
		c.JSON(401, gin.H{"valid": false, "error": "Token invalid"})
		return
	}

	c.JSON(200, gin.H{
		"valid":       true,
		"apiKey":      maskAPIKey(claims.APIKey),
		"permissions": claims.Permissions,
		"expiresAt":   claims.ExpiresAt.Unix(),
	})
}

// ==================== Admin: authentication ====================

func (s *Server) adminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	if req.Password != s.cfg.Security.AdminPassword {
		s.logger.Warn("Failed admin login attempt", zap.String("client_ip", c.ClientIP()))
		c.JSON(401, gin.H{"error": "Invalid password"})
		return
	}

	s.logger.Info("Admin logged in successfully")
	c.JSON(200, gin.H{
		"success": true,
		"token":   adminToken(req.Password),
	})
}

// ==================== Admin: key management ====================

func (s *Server) listKeys(c *gin.Context) {
	keys := s.sec.ListKeys()

	// Never return the plaintext key material
	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		out = append(out, gin.H{
			"keyPreview":        maskAPIKey(k.Key),
			"name":              k.Name,
			"permissions":       k.Permissions,
			"rateLimitOverride": k.RateLimitOverride,
			"createdAt":         k.CreatedAt,
			"lastUsed":          k.LastUsed,
			"usageCount":        k.UsageCount,
		})
	}

	c.JSON(200, gin.H{"keys": out})
}

func (s *Server) createKey(c *gin.Context) {
	var req struct {
		Name              string              `json:"name" binding:"required"`
		Permissions       []models.Permission `json:"permissions" binding:"required"`
		RateLimitOverride *int                `json:"rateLimitOverride"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	key, err := s.sec.CreateKey(req.Name, req.Permissions, req.RateLimitOverride)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	// Plaintext is returned exactly once
	c.JSON(200, gin.H{"key": key, "name": req.Name})
}

func (s *Server) revokeKey(c *gin.Context) {
	key := c.Param("key")

	if !s.sec.RevokeKey(key) {
		c.JSON(404, gin.H{"error": "Key not found"})
		return
	}

	c.JSON(200, gin.H{"success": true})
}

// ==================== Admin: monitoring ====================

func (s *Server) securityStats(c *gin.Context) {
	c.JSON(200, s.sec.Stats())
}

func (s *Server) connectionStatus(c *gin.Context) {
	c.JSON(200, s.monitor.Status())
}

func (s *Server) reconnect(c *gin.Context) {
	ok := s.monitor.AttemptReconnection(c.Request.Context())
	c.JSON(200, gin.H{
		"success": ok,
		"status":  s.monitor.Status().Status,
	})
}

func (s *Server) getLogs(c *gin.Context) {
	c.JSON(200, gin.H{"logs": s.logBuffer.Recent(200)})
}

func (s *Server) clearLogs(c *gin.Context) {
	s.logBuffer.Clear()
	c.JSON(200, gin.H{"success": true})
}

// ==================== Helpers ====================

// adminToken derives the admin session token from the password with a
// fixed salt so it survives restarts
func adminToken(password string) string {
	h := sha256.New()
	h.Write([]byte("apiguard-admin-" + password))
	return hex.EncodeToString(h.Sum(nil))
}
