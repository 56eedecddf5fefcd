package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sapls/staff-shift/backend/internal/domain"
)

const (
	defaultLoginMessage   = "登录失败，请检查邮箱和密码"
	defaultRefreshMessage = "刷新令牌失败"
	defaultLogoutMessage  = "登出失败"
	networkErrorMessage   = "无法连接到认证服务"
)

// AuthError 表示认证接口返回的错误，StatusCode 为 0 表示请求没有到达服务器
type AuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Client 调用 {baseURL}/login、/refresh-token、/logout 三个认证接口
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	req := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	pair := &domain.TokenPair{}
	if err := c.post(ctx, "/login", req, pair, defaultLoginMessage); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, &AuthError{Message: "认证服务没有返回访问令牌", StatusCode: http.StatusOK}
	}
	return pair, nil
}

// RefreshToken 换取新的访问令牌，服务器不一定会同时下发新的刷新令牌
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	req := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	pair := &domain.TokenPair{}
	if err := c.post(ctx, "/refresh-token", req, pair, defaultRefreshMessage); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, &AuthError{Message: "认证服务没有返回访问令牌", StatusCode: http.StatusOK}
	}
	return pair, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	return c.post(ctx, "/logout", req, nil, defaultLogoutMessage)
}

func (c *Client) post(ctx context.Context, path string, body any, dst any, defaultMessage string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &AuthError{Message: networkErrorMessage, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &AuthError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body, defaultMessage),
		}
	}

	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &AuthError{
			StatusCode: resp.StatusCode,
			Message:    "认证服务返回了无法解析的响应",
			Err:        err,
		}
	}
	return nil
}

// errorMessage 优先取响应体中的 message，其次是 error，都没有时使用默认提示
func errorMessage(r io.Reader, defaultMessage string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || json.Unmarshal(data, &body) != nil {
		return defaultMessage
	}
	switch {
	case body.Message != "":
		return body.Message
	case body.Error != "":
		return body.Error
	default:
		return defaultMessage
	}
}

// IsUnauthorized 判断错误是否为服务器明确拒绝（401/403）
func IsUnauthorized(err error) bool {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return false
	}
	return authErr.StatusCode == http.StatusUnauthorized || authErr.StatusCode == http.StatusForbidden
}
