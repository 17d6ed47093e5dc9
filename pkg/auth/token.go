package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/retroquest/storefront-backend/pkg/config"
)

// clock skew tolerated between the identity service and this api
const leeway = 30 * time.Second

var (
	ErrTokenExpired = errors.New("access token expired")
	ErrTokenInvalid = errors.New("access token invalid")
)

// Keys signs and verifies HS256 access tokens for one issuer.
type Keys struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewKeys(cfg config.JWTConfig) (*Keys, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, errors.New("jwt expiration minutes must be positive")
	}
	return &Keys{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(leeway),
		),
	}, nil
}

// Mint issues a token for payload valid from now for the configured TTL.
func (k *Keys) Mint(now time.Time, payload AccessTokenPayload) (string, error) {
	if payload.UserID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", payload.Role)
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    k.issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry. Failures wrap ErrTokenExpired
// or ErrTokenInvalid.
func (k *Keys) Verify(raw string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	_, err := k.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return k.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	case claims.UserID == uuid.Nil:
		return nil, fmt.Errorf("%w: no user id", ErrTokenInvalid)
	case !claims.Role.IsValid():
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}

// MintAccessToken is Mint with keys built from cfg, for tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	keys, err := NewKeys(cfg)
	if err != nil {
		return "", err
	}
	return keys.Mint(now, payload)
}

// ParseAccessToken is Verify with keys built from cfg.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	keys, err := NewKeys(cfg)
	if err != nil {
		return nil, err
	}
	return keys.Verify(raw)
}
