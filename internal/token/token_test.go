package token

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsignedToken(t *testing.T, payload map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

func TestDecode_LongFormClaims(t *testing.T) {
	tok := unsignedToken(t, map[string]any{
		ClaimUserID:    "42",
		ClaimEmail:     "staff@sapls.dev",
		ClaimFullName:  "张伟",
		ClaimRole:      "Admin",
		ClaimAdminRole: "SuperAdmin",
		"exp":          1700000000,
		"iss":          "sapls",
		"aud":          "sapls-clients",
	})

	claims, err := Decode(tok)

	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "staff@sapls.dev", claims.Email)
	assert.Equal(t, "张伟", claims.FullName)
	assert.Equal(t, "Admin", claims.Role)
	assert.Equal(t, "SuperAdmin", claims.AdminRole)
	assert.Equal(t, "sapls", claims.Issuer)
	assert.Equal(t, []string{"sapls-clients"}, claims.Audience)
	assert.Equal(t, int64(1700000000), claims.ExpiresAt.Unix())
}

func TestDecode_FallbackKeys(t *testing.T) {
	tok := unsignedToken(t, map[string]any{
		ClaimUserID: "",
		"nameid":    "legacy-id",
		"sub":       "sub-id",
		"email":     "legacy@sapls.dev",
		"role":      []string{"Staff", "User"},
	})

	claims, err := Decode(tok)

	require.NoError(t, err)
	assert.Equal(t, "legacy-id", claims.UserID, "空值不算命中，继续尝试下一个候选键")
	assert.Equal(t, "legacy@sapls.dev", claims.Email)
	assert.Equal(t, "Staff", claims.Role)
	assert.True(t, claims.ExpiresAt.IsZero())
}

func TestDecode_LongFormWinsOverShortKeys(t *testing.T) {
	tok := unsignedToken(t, map[string]any{
		ClaimRole: "Staff",
		"role":    "User",
	})

	claims, err := Decode(tok)

	require.NoError(t, err)
	assert.Equal(t, "Staff", claims.Role)
}

func TestDecode_TwoSegmentsAreEnough(t *testing.T) {
	body := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"7"}`))

	claims, err := Decode("header." + body)

	require.NoError(t, err)
	assert.Equal(t, "7", claims.UserID)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"single segment", "not-a-jwt"},
		{"bad base64", "a.%%%.c"},
		{"not json", "a." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".c"},
		{"bad exp", "a." + base64.RawURLEncoding.EncodeToString([]byte(`{"exp":"soon"}`)) + ".c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Decode(tt.token)
			assert.ErrorIs(t, err, ErrMalformedToken)
			assert.Nil(t, claims)
		})
	}
}

func newTestIssuer(t *testing.T, secret, audience string) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(secret, "sapls", audience)
	require.NoError(t, err)
	return issuer
}

func TestNewIssuer_RejectsEmptySecret(t *testing.T) {
	issuer, err := NewIssuer("", "sapls", "sapls-clients")

	assert.ErrorIs(t, err, ErrEmptySecret)
	assert.Nil(t, issuer)
}

func TestIssuer_SignAndVerify(t *testing.T) {
	issuer := newTestIssuer(t, "test-secret", "sapls-clients")
	user := &domain.User{
		ID:        "u-1",
		Email:     "admin@sapls.dev",
		FullName:  "管理员",
		Role:      domain.RoleStaff,
		AdminRole: "SuperAdmin",
	}

	ss, exp, err := issuer.Sign(user, 15*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	verified, err := issuer.Verify(ss)
	require.NoError(t, err)
	assert.Equal(t, "u-1", verified.UserID)
	assert.Equal(t, "admin@sapls.dev", verified.Email)
	assert.Equal(t, "staff", verified.Role)
	assert.Equal(t, "SuperAdmin", verified.AdminRole)
	assert.True(t, domain.HasPermission(verified, []domain.Role{domain.RoleAdmin}))

	// 客户端无需密钥也能解出同样的信息
	decoded, err := Decode(ss)
	require.NoError(t, err)
	assert.Equal(t, verified, decoded)
}

func TestIssuer_VerifyRejects(t *testing.T) {
	issuer := newTestIssuer(t, "test-secret", "sapls-clients")
	user := &domain.User{ID: "u-1", Role: domain.RoleUser}

	t.Run("wrong secret", func(t *testing.T) {
		other := newTestIssuer(t, "other-secret", "sapls-clients")
		ss, _, err := other.Sign(user, time.Minute)
		require.NoError(t, err)

		_, err = issuer.Verify(ss)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := newTestIssuer(t, "test-secret", "someone-else")
		ss, _, err := other.Sign(user, time.Minute)
		require.NoError(t, err)

		_, err = issuer.Verify(ss)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		ss, _, err := issuer.Sign(user, -time.Minute)
		require.NoError(t, err)

		_, err = issuer.Verify(ss)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Verify("garbage")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
