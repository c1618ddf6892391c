package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

var ErrInvalidToken = errors.New("invalid auth token")

type claims struct {
	jwt.RegisteredClaims
	StoreID string     `json:"store_id"`
	Role    model.Role `json:"role"`
}

// JWTStrategy issues and verifies HS256 session tokens carrying the operator identity.
type JWTStrategy struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTStrategy builds JWTStrategy with provided secret and options.
func NewJWTStrategy(secret string, opts Options) *JWTStrategy {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTStrategy{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for the actor.
func (s *JWTStrategy) IssueToken(actor model.Actor) (string, error) {
	if actor.UserID == "" || actor.StoreID == "" {
		return "", fmt.Errorf("issue token: user and store are required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		StoreID: actor.StoreID,
		Role:    actor.Role,
	})
	return token.SignedString(s.secret)
}

// ParseToken validates token and returns the encoded actor.
func (s *JWTStrategy) ParseToken(token string) (model.Actor, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return model.Actor{}, ErrInvalidToken
	}
	if c.Subject == "" || c.StoreID == "" {
		return model.Actor{}, ErrInvalidToken
	}
	switch c.Role {
	case model.RoleClerk, model.RoleManager:
	default:
		return model.Actor{}, ErrInvalidToken
	}
	return model.Actor{UserID: c.Subject, StoreID: c.StoreID, Role: c.Role}, nil
}

func (s *JWTStrategy) Name() string {
	return "jwt"
}
