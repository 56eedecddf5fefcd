package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sapls/staff-shift/backend/internal/authclient"
	"github.com/sapls/staff-shift/backend/internal/config"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/sapls/staff-shift/backend/internal/session"
	"github.com/sapls/staff-shift/backend/internal/store"
)

const usage = `用法: session <命令> [参数]

命令:
  login  -email <邮箱> -password <密码>   登录并保存令牌
  status                                  显示当前会话
  watch                                   保持会话并定时静默刷新，按 CTRL+C 退出
  logout                                  登出并清除本地令牌`

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	os.Exit(run(logger, os.Args[1:]))
}

// run 执行一条命令并返回进程退出码，所有资源在返回前释放
func run(logger *slog.Logger, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadClientConfig()
	if err != nil {
		logger.Error("无法加载配置", "error", err)
		return 1
	}

	/**********************************************
	 * 打开令牌存储
	 **********************************************/
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	tokenStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("无法打开令牌存储", "store", cfg.Store, "error", err)
		return 1
	}
	defer closeStore()

	/**********************************************
	 * 创建会话管理器
	 **********************************************/
	client := authclient.New(cfg.AuthBaseURL, cfg.RequestTimeout)
	manager := session.NewManager(client, tokenStore, session.WithRefreshInterval(cfg.RefreshInterval))
	defer manager.Close()

	if err := manager.Start(ctx); err != nil {
		logger.Error("无法恢复会话", "error", err)
		return 1
	}

	switch args[0] {
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		email := fs.String("email", "", "登录邮箱")
		password := fs.String("password", "", "登录密码")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *email == "" || *password == "" {
			logger.Error("请提供邮箱和密码")
			return 2
		}

		if err := manager.Login(ctx, *email, *password); err != nil {
			if authclient.IsUnauthorized(err) {
				logger.Error("登录被拒绝", "error", err)
			} else {
				logger.Error("登录失败", "error", err)
			}
			return 1
		}
		printStatus(ctx, manager)
	case "status":
		printStatus(ctx, manager)
	case "watch":
		return watch(manager, logger)
	case "logout":
		manager.Logout(ctx)
		logger.Info("已登出")
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	return 0
}

func openStore(ctx context.Context, cfg *config.ClientConfig) (session.Store, func(), error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return store.NewRedisStore(rdb, cfg.Redis.KeyPrefix), func() { _ = rdb.Close() }, nil
	default:
		s, err := store.OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

func printStatus(ctx context.Context, m *session.Manager) {
	if !m.IsAuthenticated() {
		fmt.Println("状态: 未登录")
		return
	}

	claims, _ := m.Claims()
	fmt.Printf("状态: %s\n", m.State())
	fmt.Printf("用户: %s (%s)\n", claims.Email, claims.UserID)
	fmt.Printf("角色: %s\n", m.UserRole(ctx))
	if !claims.ExpiresAt.IsZero() {
		fmt.Printf("令牌过期时间: %s\n", claims.ExpiresAt.Local().Format(time.DateTime))
	}
	fmt.Printf("可以管理班次: %t\n", m.HasPermission(ctx, []domain.Role{domain.RoleAdmin}))
}

func watch(m *session.Manager, logger *slog.Logger) int {
	if !m.IsAuthenticated() {
		logger.Error("当前未登录，请先执行 login")
		return 1
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	logger.Info("正在保持会话...（按 CTRL+C 退出）")
	for {
		select {
		case <-quit:
			logger.Info("已停止，令牌仍保留在本地")
			return 0
		case <-ticker.C:
			if !m.IsAuthenticated() {
				logger.Warn("会话已失效，请重新登录")
				return 1
			}
			claims, _ := m.Claims()
			logger.Info("会话有效", "state", m.State().String(), "expiresAt", claims.ExpiresAt)
		}
	}
}
