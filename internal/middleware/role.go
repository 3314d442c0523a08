package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
	"github.com/inquiro/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		id := Identity(c)
		if id == nil {
			response.Error(c, apperr.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[id.Role]; !ok {
			if len(roles) == 1 && roles[0] == models.RoleCreator {
				response.Error(c, apperr.ErrCreatorOnly)
			} else {
				response.Error(c, apperr.ErrAccessDenied)
			}
			c.Abort()
			return
		}
		c.Next()
	}
}
