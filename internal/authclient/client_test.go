package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Login_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "staff@sapls.dev", body["email"])
		assert.Equal(t, "secret", body["password"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"a.b.c","refreshToken":"r-1","tokenType":"Bearer","expiresAt":"2024-01-01T00:15:00Z"}`))
	}))
	defer server.Close()

	client := New(server.URL+"/api/auth/", 5*time.Second)

	pair, err := client.Login(context.Background(), "staff@sapls.dev", "secret")

	require.NoError(t, err)
	assert.Equal(t, "a.b.c", pair.AccessToken)
	assert.Equal(t, "r-1", pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC), pair.ExpiresAt.UTC())
}

func TestClient_Login_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", http.StatusUnauthorized, `{"message":"邮箱或密码错误"}`, "邮箱或密码错误"},
		{"error field", http.StatusBadRequest, `{"error":"invalid request"}`, "invalid request"},
		{"message wins over error", http.StatusUnauthorized, `{"message":"m","error":"e"}`, "m"},
		{"empty body", http.StatusInternalServerError, ``, defaultLoginMessage},
		{"non json body", http.StatusBadGateway, `<html>bad gateway</html>`, defaultLoginMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			pair, err := New(server.URL, time.Second).Login(context.Background(), "a@b.c", "x")

			assert.Nil(t, pair)
			var authErr *AuthError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.status, authErr.StatusCode)
			assert.Equal(t, tt.wantMsg, authErr.Message)
		})
	}
}

func TestClient_Login_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(url, time.Second).Login(context.Background(), "a@b.c", "x")

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 0, authErr.StatusCode)
	assert.Equal(t, networkErrorMessage, authErr.Message)
	assert.NotNil(t, authErr.Unwrap())
}

func TestClient_Login_MissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second).Login(context.Background(), "a@b.c", "x")

	assert.Error(t, err)
}

func TestClient_RefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refresh-token", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refreshToken"] != "r-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"刷新令牌无效"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accessToken":"a2"}`))
	}))
	defer server.Close()

	client := New(server.URL, time.Second)

	pair, err := client.RefreshToken(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "a2", pair.AccessToken)
	assert.Empty(t, pair.RefreshToken)

	_, err = client.RefreshToken(context.Background(), "stale")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "刷新令牌无效")
}

func TestClient_Logout(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logout", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body["refreshToken"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := New(server.URL, time.Second).Logout(context.Background(), "r-1")

	require.NoError(t, err)
	assert.Equal(t, "r-1", got)
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(&AuthError{StatusCode: http.StatusUnauthorized}))
	assert.True(t, IsUnauthorized(&AuthError{StatusCode: http.StatusForbidden}))
	assert.False(t, IsUnauthorized(&AuthError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, IsUnauthorized(errors.New("boom")))
}
