package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bprnd-credit-api/internal/middleware"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
	"github.com/noah-isme/bprnd-credit-api/pkg/middleware/requestid"
)

// sessionFromContext converts the verified token claims into the session the
// services expect.
func sessionFromContext(c *gin.Context) (models.Session, error) {
	claims := middleware.CurrentClaims(c)
	if claims == nil || claims.UserID == "" {
		return models.Session{}, appErrors.ErrUnauthorized
	}
	return models.Session{
		Actor:     models.Actor{ID: claims.UserID, Role: claims.Role},
		RequestID: requestid.Value(c),
	}, nil
}

func bindJSON(c *gin.Context, dest interface{}) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
	}
	return nil
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
