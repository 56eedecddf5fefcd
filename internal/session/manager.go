package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/sapls/staff-shift/backend/internal/store"
	"github.com/sapls/staff-shift/backend/internal/token"
	"golang.org/x/sync/singleflight"
)

const DefaultRefreshInterval = 4 * time.Minute

var (
	ErrNoRefreshToken = errors.New("本地没有刷新令牌")
	errSessionEnded   = errors.New("会话已结束")
)

type State int

const (
	Unauthenticated State = iota
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// AuthClient 是后端认证接口
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*domain.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Store 是持久化令牌的键值存储，Get 在键不存在时返回 store.ErrNotFound，Set 必须是原子的
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, values map[string]string) error
	Remove(ctx context.Context, keys ...string) error
}

// Ticker 抽象了 time.Ticker，方便测试时手动触发
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time {
	return t.Ticker.C
}

type Option func(*Manager)

func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(m *Manager) {
		m.newTicker = newTicker
	}
}

// Manager 维护客户端对当前登录用户的认知，并在后台定时静默刷新访问令牌。
//
// 令牌中的声明只用于界面展示，服务端会在每次请求时独立校验签名和有效期。
type Manager struct {
	client    AuthClient
	store     Store
	interval  time.Duration
	now       func() time.Time
	newTicker func(time.Duration) Ticker

	baseCtx    context.Context
	cancelBase context.CancelFunc
	group      singleflight.Group

	mu     sync.RWMutex
	state  State
	claims *domain.Claims
	// 每次登录、登出或强制登出都会加一，用来丢弃过期的刷新结果
	generation uint64
	stopLoop   context.CancelFunc
}

func NewManager(client AuthClient, s Store, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		client:   client,
		store:    s,
		interval: DefaultRefreshInterval,
		now:      time.Now,
		newTicker: func(d time.Duration) Ticker {
			return realTicker{time.NewTicker(d)}
		},
		baseCtx:    ctx,
		cancelBase: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 从本地存储恢复会话，无法解析的令牌会被清除
func (m *Manager) Start(ctx context.Context) error {
	accessToken, err := m.store.Get(ctx, store.AccessTokenKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.setUnauthenticated()
			return nil
		}
		return fmt.Errorf("读取本地令牌失败: %w", err)
	}

	claims, err := token.Decode(accessToken)
	if err != nil {
		slog.Warn("本地令牌无法解析，已清除", "error", err)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.endSessionLocked(ctx)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.stopLoopLocked()
	m.claims = claims
	m.state = Authenticated
	m.startLoopLocked(m.generation)
	return nil
}

// Login 登录成功后持久化两个令牌并启动定时刷新；失败时返回服务器给出的错误，状态不变
func (m *Manager) Login(ctx context.Context, email, password string) error {
	pair, err := m.client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	claims, err := token.Decode(pair.AccessToken)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	values := map[string]string{store.AccessTokenKey: pair.AccessToken}
	if pair.RefreshToken != "" {
		values[store.RefreshTokenKey] = pair.RefreshToken
	} else if err := m.store.Remove(ctx, store.RefreshTokenKey); err != nil {
		// 上一个会话的刷新令牌不能留给新用户
		return fmt.Errorf("清除旧的刷新令牌失败: %w", err)
	}
	if err := m.store.Set(ctx, values); err != nil {
		return fmt.Errorf("保存令牌失败: %w", err)
	}

	m.generation++
	m.stopLoopLocked()
	m.claims = claims
	m.state = Authenticated
	m.startLoopLocked(m.generation)

	slog.Info("登录成功", "userID", claims.UserID, "role", claims.Role)
	return nil
}

// Logout 立即清除本地会话，然后尽力通知服务器作废刷新令牌，通知失败只记录日志
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	refreshToken, err := m.store.Get(ctx, store.RefreshTokenKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("读取刷新令牌失败", "error", err)
	}
	m.endSessionLocked(ctx)
	m.mu.Unlock()

	if refreshToken == "" {
		return
	}
	if err := m.client.Logout(ctx, refreshToken); err != nil {
		slog.Warn("通知服务器登出失败", "error", err)
	}
}

// Close 停止后台刷新并丢弃进行中的刷新结果，本地令牌保留，可以重复调用
func (m *Manager) Close() {
	m.mu.Lock()
	m.generation++
	m.stopLoopLocked()
	m.mu.Unlock()
	m.cancelBase()
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) IsAuthenticated() bool {
	return m.State() != Unauthenticated
}

// Claims 返回最近一次解析出的声明的副本
func (m *Manager) Claims() (domain.Claims, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.claims == nil {
		return domain.Claims{}, false
	}
	return *m.claims, true
}

// UserRole 返回当前用户的角色。令牌已过期时会在后台发起一次刷新并返回空字符串，调用方应在刷新完成后重新查询
func (m *Manager) UserRole(ctx context.Context) string {
	claims := m.currentClaims(ctx)
	if claims == nil {
		return ""
	}
	return string(domain.NormalizeRole(claims.Role))
}

func (m *Manager) HasPermission(ctx context.Context, required []domain.Role) bool {
	return domain.HasPermission(m.currentClaims(ctx), required)
}

// currentClaims 读取本地访问令牌并返回未过期的声明
func (m *Manager) currentClaims(ctx context.Context) *domain.Claims {
	accessToken, err := m.store.Get(ctx, store.AccessTokenKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("读取本地令牌失败", "error", err)
		}
		return nil
	}

	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	claims, err := token.Decode(accessToken)
	if err != nil {
		m.forceLogout(gen, err)
		return nil
	}

	if claims.Expired(m.now()) {
		go func() {
			_ = m.refresh(m.baseCtx, gen)
		}()
		return nil
	}

	return claims
}

// refresh 用刷新令牌换取新的访问令牌。同一时间只会有一个刷新在进行，失败时强制登出
func (m *Manager) refresh(ctx context.Context, gen uint64) error {
	_, err, _ := m.group.Do(fmt.Sprintf("refresh-%d", gen), func() (any, error) {
		return nil, m.doRefresh(ctx, gen)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	if m.generation != gen || m.state == Unauthenticated {
		m.mu.Unlock()
		return errSessionEnded
	}
	m.state = Refreshing
	m.mu.Unlock()

	refreshToken, err := m.store.Get(ctx, store.RefreshTokenKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = ErrNoRefreshToken
		}
		m.forceLogout(gen, err)
		return err
	}

	pair, err := m.client.RefreshToken(ctx, refreshToken)
	if err != nil {
		// 被取消说明会话正在关闭，不代表令牌失效
		if ctx.Err() != nil {
			m.restoreState(gen)
			return ctx.Err()
		}
		m.forceLogout(gen, err)
		return err
	}

	claims, err := token.Decode(pair.AccessToken)
	if err != nil {
		m.forceLogout(gen, err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 刷新期间用户可能已经登出或重新登录
	if m.generation != gen {
		return errSessionEnded
	}

	values := map[string]string{store.AccessTokenKey: pair.AccessToken}
	if pair.RefreshToken != "" {
		values[store.RefreshTokenKey] = pair.RefreshToken
	}
	if err := m.store.Set(ctx, values); err != nil {
		slog.Error("保存刷新后的令牌失败", "error", err)
		m.endSessionLocked(ctx)
		return err
	}

	m.claims = claims
	m.state = Authenticated
	slog.Info("访问令牌已刷新", "userID", claims.UserID, "expiresAt", claims.ExpiresAt)
	return nil
}

func (m *Manager) restoreState(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen && m.state == Refreshing {
		m.state = Authenticated
	}
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation == gen
}

// forceLogout 在会话无法恢复时清除本地状态，gen 不匹配说明会话已被替换，不做处理
func (m *Manager) forceLogout(gen uint64, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		return
	}
	slog.Warn("会话已失效，强制登出", "error", cause)
	m.endSessionLocked(m.baseCtx)
}

// endSessionLocked 停止刷新并清除令牌，调用方必须持有 m.mu
func (m *Manager) endSessionLocked(ctx context.Context) {
	m.generation++
	m.stopLoopLocked()
	m.claims = nil
	m.state = Unauthenticated

	// 本地清理不应因为调用方的 ctx 已取消而失败
	if err := m.store.Remove(context.WithoutCancel(ctx), store.AccessTokenKey, store.RefreshTokenKey); err != nil {
		slog.Error("清除本地令牌失败", "error", err)
	}
}

func (m *Manager) setUnauthenticated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.stopLoopLocked()
	m.claims = nil
	m.state = Unauthenticated
}

func (m *Manager) startLoopLocked(gen uint64) {
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.stopLoop = cancel

	ticker := m.newTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if err := m.refresh(ctx, gen); err != nil && !m.isCurrent(gen) {
					return
				}
			}
		}
	}()
}

func (m *Manager) stopLoopLocked() {
	if m.stopLoop != nil {
		m.stopLoop()
		m.stopLoop = nil
	}
}
