package service

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/config"
)

// TokenService validates access tokens issued by the identity provider.
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService constructs a TokenService from JWT configuration.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{secret: []byte(cfg.Secret), issuer: strings.TrimSpace(cfg.Issuer)}
}

// ValidateToken parses an HS256 token and returns its claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token subject is required")
	}
	return claims, nil
}

// Issue signs claims with the configured secret. Used by tooling and tests.
func (s *TokenService) Issue(claims *models.JWTClaims) (string, error) {
	if s.issuer != "" && claims.Issuer == "" {
		claims.Issuer = s.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", appErrors.Internal(err, "failed to sign token")
	}
	return signed, nil
}
