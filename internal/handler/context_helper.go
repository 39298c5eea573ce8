package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/afterschool-roster-api/internal/middleware"
	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext returns the identity written to audit entries.
func actorFromContext(c *gin.Context) string {
	return claimsFromContext(c).Actor()
}

func pageParams(c *gin.Context, defaultSize int) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSize)))
	if err != nil || size < 1 {
		size = defaultSize
	}
	return page, size
}
