package operators

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, expires, err := issuer.Issue(Operator{ID: 7, Username: "alice", Role: RoleOperator})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.Equal(t, "7", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.False(t, claims.IsAdmin())
}

func TestTokenIssuer_RejectsExpiredAndForeignTokens(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	token, _, err := issuer.Issue(Operator{ID: 1, Username: "root", Role: RoleAdmin})
	require.NoError(t, err)

	later := NewTokenIssuer("secret", time.Minute)
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = later.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenIssuer("other", time.Minute).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"username": "root", "role": "admin", "iss": tokenIssuer})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsUnknownRole(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	token, _, err := issuer.Issue(Operator{ID: 3, Username: "eve", Role: Role("superuser")})
	require.NoError(t, err)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_DisabledWithoutSecret(t *testing.T) {
	issuer := NewTokenIssuer("", time.Minute)
	_, _, err := issuer.Issue(Operator{Username: "a", Role: RoleAdmin})
	assert.ErrorIs(t, err, ErrAuthDisabled)
	_, err = issuer.Parse("x.y.z")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}
