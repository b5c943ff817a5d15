package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-booking/internal/identity"
)

var ErrBadToken = errors.New("invalid token")

type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// MakeToken mints a bearer token for an actor. The booking service itself
// never mints tokens; this exists for the seed tool and tests.
func MakeToken(user identity.User, secret string, ttl time.Duration) (string, error) {
	c := Claims{
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// ParseActor verifies a raw token and returns the actor it describes.
func ParseActor(raw, secret string) (identity.Actor, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return identity.Actor{}, err
	}

	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return identity.Actor{}, ErrBadToken
	}

	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return identity.Actor{}, ErrBadToken
	}
	role, err := identity.ParseRole(c.Role)
	if err != nil {
		return identity.Actor{}, ErrBadToken
	}

	return identity.Actor{
		ID:       id,
		Username: c.Username,
		Role:     role,
	}, nil
}
