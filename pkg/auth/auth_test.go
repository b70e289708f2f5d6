package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenovalaw/xenova/pkg/licensing"
)

func TestPasswordRoundTrip(t *testing.T) {
	BcryptCost = bcrypt.MinCost
	t.Cleanup(func() { BcryptCost = 12 })

	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("correct horse battery", hash))
	assert.False(t, CheckPasswordHash("wrong password!", hash))
}

func TestValidatePasswordComplexity(t *testing.T) {
	assert.Error(t, ValidatePasswordComplexity("short"))
	assert.NoError(t, ValidatePasswordComplexity("long enough password"))
}

func TestSessionIssueAndVerify(t *testing.T) {
	m, err := NewSessionManager("test-secret", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := m.Issue("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	userID, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestSessionVerifyRejects(t *testing.T) {
	m, err := NewSessionManager("test-secret", time.Hour)
	require.NoError(t, err)
	token, _, err := m.Issue("user-1")
	require.NoError(t, err)

	t.Run("wrong_secret", func(t *testing.T) {
		other, _ := NewSessionManager("other-secret", time.Hour)
		_, err := other.Verify(token)
		assert.True(t, errors.Is(err, ErrInvalidSession))
	})

	t.Run("expired", func(t *testing.T) {
		later, _ := NewSessionManager("test-secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Verify(token)
		assert.True(t, errors.Is(err, ErrInvalidSession))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify("not-a-token")
		assert.True(t, errors.Is(err, ErrInvalidSession))
	})

	t.Run("other_algorithm", func(t *testing.T) {
		claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    SessionIssuer,
			Audience:  jwt.ClaimStrings{SessionAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Verify(unsigned)
		assert.True(t, errors.Is(err, ErrInvalidSession))
	})
}

func TestNewSessionManagerRequiresSecret(t *testing.T) {
	_, err := NewSessionManager("", time.Hour)
	assert.Error(t, err)
}

func TestUserContext(t *testing.T) {
	ctx := WithUser(context.Background(), "u-9")
	assert.Equal(t, "u-9", GetUser(ctx))
	assert.Equal(t, "", GetUser(context.Background()))
}

func TestRoleVisibility(t *testing.T) {
	tests := []struct {
		role     Role
		category licensing.Category
		want     bool
	}{
		{RoleOwner, licensing.CategoryAdmin, true},
		{RoleAdmin, licensing.CategoryAI, true},
		{RoleLawyer, licensing.CategoryAI, true},
		{RoleLawyer, licensing.CategoryBilling, false},
		{RoleLawyer, licensing.CategoryAdmin, false},
		{RoleAssistant, licensing.CategoryBilling, true},
		{RoleAssistant, licensing.CategoryAI, false},
		{RoleAssistant, licensing.CategoryCore, true},
		{Role("intern"), licensing.CategoryCore, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+string(tt.category), func(t *testing.T) {
			assert.Equal(t, tt.want, CanSeeCategory(tt.role, tt.category))
		})
	}
}

func TestCanAssignRole(t *testing.T) {
	assert.True(t, CanAssignRole(RoleOwner, RoleAdmin))
	assert.True(t, CanAssignRole(RoleAdmin, RoleAssistant))
	assert.False(t, CanAssignRole(RoleAdmin, RoleOwner))
	assert.False(t, CanAssignRole(RoleAdmin, RoleAdmin))
	assert.False(t, CanAssignRole(RoleLawyer, RoleAssistant))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Lawyer ")
	require.NoError(t, err)
	assert.Equal(t, RoleLawyer, role)

	_, err = ParseRole("partner")
	assert.Error(t, err)
}
