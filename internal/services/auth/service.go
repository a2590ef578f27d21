// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fintrust/internal/models"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type Service interface {
	Verify(ctx context.Context, token string) (*models.IdentityClaims, error)
}

// Config for token verification. Empty Audience or Issuer disables that check.
type Config struct {
	Audience string
	Issuer   string
	Leeway   time.Duration
}

type service struct {
	keys   *KeySet
	parser *jwt.Parser
}

func NewService(keys *KeySet, cfg Config) Service {
	if keys == nil {
		panic("keyset is required")
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &service{keys: keys, parser: jwt.NewParser(opts...)}
}

func (s *service) Verify(ctx context.Context, token string) (*models.IdentityClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	claims := &models.IdentityClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid in token")
		}
		return s.keys.Key(ctx, kid)
	})
	if err != nil || !parsed.Valid {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, errors.Join(ErrInvalidToken, errors.New("subject claim missing"))
	}
	return claims, nil
}
