package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the bearer token payload issued by the identity provider.
type JWTClaims struct {
	Email    string   `json:"email"`
	FullName string   `json:"name,omitempty"`
	Role     UserRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the identity recorded on audit entries.
func (c *JWTClaims) Actor() string {
	if c == nil {
		return ""
	}
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}
