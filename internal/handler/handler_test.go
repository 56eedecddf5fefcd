package handler

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sapls/staff-shift/backend/internal/config"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/sapls/staff-shift/backend/internal/repository"
	"github.com/sapls/staff-shift/backend/internal/token"
	"github.com/stretchr/testify/require"
)

const (
	adminID = "7c1d3c1e-8f4a-4b59-9a43-1f5e7f1f0a01"
	staffID = "2b8e9f10-3c4d-4e5f-8a6b-7c8d9e0f1a2b"
	shiftID = "9d0c8b7a-6f5e-4d3c-8b2a-1f0e9d8c7b6a"
)

// stringSliceConverter 让 sqlmock 接受 pgx 支持的 []string 参数
type stringSliceConverter struct{}

func (stringSliceConverter) ConvertValue(v any) (driver.Value, error) {
	if ids, ok := v.([]string); ok {
		return ids, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []domain.MailMessage
	err      error
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var m domain.MailMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		return err
	}
	p.messages = append(p.messages, m)
	return nil
}

func (p *fakePublisher) sent() []domain.MailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.MailMessage(nil), p.messages...)
}

type fakeRefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (s *fakeRefreshTokens) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
	return nil
}

func (s *fakeRefreshTokens) Consume(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tokens[token]
	if !ok {
		return "", errRefreshTokenNotFound
	}
	delete(s.tokens, token)
	return userID, nil
}

func (s *fakeRefreshTokens) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

type testEnv struct {
	handler   *Handler
	mock      sqlmock.Sqlmock
	publisher *fakePublisher
	tokens    *fakeRefreshTokens
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Database.QueryTimeout = 5
	cfg.Database.TransactionTimeout = 5
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Issuer = "sapls"
	cfg.JWT.Audience = "sapls-clients"
	cfg.JWT.AccessExpiration = 900
	cfg.JWT.RefreshExpiration = 3600
	cfg.Redis.OperationExpiration = 5
	cfg.RabbitMQ.PublishTimeout = 5
	cfg.RateLimit.LoginPerMinute = 600
	cfg.RateLimit.LoginBurst = 100
	return cfg
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(stringSliceConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	publisher := &fakePublisher{}
	tokens := &fakeRefreshTokens{tokens: make(map[string]string)}
	issuer, err := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	require.NoError(t, err)

	h, err := NewHandler(cfg, Dependencies{
		Repository:    repository.NewRepository(cfg, db),
		Mail:          publisher,
		RefreshTokens: tokens,
		Issuer:        issuer,
		LoginLimiter:  NewLoginRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst),
	})
	require.NoError(t, err)
	h.RegisterRoutes()

	return &testEnv{handler: h, mock: mock, publisher: publisher, tokens: tokens}
}

func (e *testEnv) bearer(t *testing.T, user *domain.User) string {
	t.Helper()
	ss, _, err := e.handler.issuer.Sign(user, time.Hour)
	require.NoError(t, err)
	return "Bearer " + ss
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authorization string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	rec := httptest.NewRecorder()
	e.handler.Mux.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func adminUser() *domain.User {
	return &domain.User{ID: adminID, Email: "admin@sapls.dev", FullName: "管理员", Role: domain.RoleAdmin, IsActive: true}
}

func staffUser() *domain.User {
	return &domain.User{ID: staffID, Email: "liming@sapls.dev", FullName: "李明", Role: domain.RoleStaff, IsActive: true}
}
