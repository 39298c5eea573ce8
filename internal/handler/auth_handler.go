package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
	"github.com/noah-isme/afterschool-roster-api/pkg/response"
)

// AuthHandler reports the identity behind the current bearer token.
type AuthHandler struct{}

// NewAuthHandler creates a new handler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me godoc
// @Summary Current allow-listed identity
// @Description Returns the email and role resolved from the bearer token and the allow-list
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"email": claims.Email,
		"name":  claims.FullName,
		"role":  claims.Role,
	}, nil)
}
