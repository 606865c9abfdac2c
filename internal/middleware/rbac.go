package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
	"github.com/noah-isme/bprnd-credit-api/pkg/response"
)

// RequireRoles rejects requests whose actor holds none of roles. The services
// repeat the check; this only stops obviously misrouted callers early.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
