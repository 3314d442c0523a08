package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/auth"
	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = auth.ContextUserID
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = auth.ContextUserRole
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = auth.ContextUserEmail
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "Unauthorized")
			c.Abort()
			return
		}
		if !authenticate(c, jwtService, header) {
			return
		}
		c.Next()
	}
}

// OptionalJWT lets anonymous requests through. A request that does carry a bearer token must carry a valid one.
func OptionalJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !authenticate(c, jwtService, header) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtService *auth.JWTService, header string) bool {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		response.Unauthorized(c, "invalid authorization header")
		c.Abort()
		return false
	}
	claims, err := jwtService.Validate(strings.TrimSpace(parts[1]))
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		c.Abort()
		return false
	}
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUserRole, claims.Role)
	c.Set(ContextUserEmail, claims.Email)
	return true
}

// Identity returns the caller identity set by JWT or OptionalJWT, or nil for anonymous requests.
func Identity(c *gin.Context) *models.Identity {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &models.Identity{UserID: id, Role: models.Role(c.GetString(ContextUserRole))}
}
