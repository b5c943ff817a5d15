package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinic-booking/internal/identity"
)

func TestMakeAndParseActor(t *testing.T) {
	user := identity.User{
		ID:       uuid.New(),
		Username: "dr-grey",
		Role:     identity.RoleDoctor,
	}

	raw, err := MakeToken(user, "secret", time.Hour)
	require.NoError(t, err)

	actor, err := ParseActor(raw, "secret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.ID)
	assert.Equal(t, "dr-grey", actor.Username)
	assert.Equal(t, identity.RoleDoctor, actor.Role)
}

func TestParseActor_WrongSecret(t *testing.T) {
	raw, err := MakeToken(identity.User{ID: uuid.New(), Username: "ana", Role: identity.RolePatient}, "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseActor(raw, "other-secret")
	assert.Error(t, err)
}

func TestParseActor_Expired(t *testing.T) {
	raw, err := MakeToken(identity.User{ID: uuid.New(), Username: "ana", Role: identity.RolePatient}, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseActor(raw, "secret")
	assert.Error(t, err)
}

func TestParseActor_RejectsUnsignedToken(t *testing.T) {
	c := Claims{
		UserID:   uuid.NewString(),
		Username: "ana",
		Role:     "patient",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseActor(raw, "secret")
	assert.Error(t, err)
}

func TestParseActor_RejectsUnknownRole(t *testing.T) {
	c := Claims{
		UserID:   uuid.NewString(),
		Username: "ana",
		Role:     "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ParseActor(raw, "secret")
	assert.Error(t, err)
}
