package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type portalUserReader interface {
	FindByEmail(ctx context.Context, email string) (*models.PortalUser, error)
}

// AuthConfig defines how bearer tokens are verified.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

// AuthService verifies identity-provider tokens and checks the portal allow-list.
type AuthService struct {
	users  portalUserReader
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users portalUserReader, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, logger: logger, config: config}
}

// Authenticate validates the token and resolves the caller against the allow-list.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return s.Authorize(ctx, claims)
}

// ValidateToken parses and validates a HS256 bearer token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if !s.audienceAllowed(claims.Audience) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token audience not accepted")
	}
	return claims, nil
}

// Authorize looks the caller up in portal_users. Unknown or disabled accounts are rejected and
// the stored role replaces whatever role the token carried.
func (s *AuthService) Authorize(ctx context.Context, claims *models.JWTClaims) (*models.JWTClaims, error) {
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no email claim")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("rejected caller outside allow-list", zap.String("email", email))
			return nil, appErrors.ErrNotAllowListed
		}
		return nil, appErrors.Internal(err, "failed to check allow-list")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrNotAllowListed, "portal account is disabled")
	}

	resolved := *claims
	resolved.Email = user.Email
	resolved.Role = user.Role
	if resolved.FullName == "" {
		resolved.FullName = user.FullName
	}
	return &resolved, nil
}

func (s *AuthService) audienceAllowed(aud jwt.ClaimStrings) bool {
	if len(s.config.Audience) == 0 {
		return true
	}
	for _, want := range s.config.Audience {
		for _, got := range aud {
			if want == got {
				return true
			}
		}
	}
	return false
}
