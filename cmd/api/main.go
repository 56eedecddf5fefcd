package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sapls/staff-shift/backend/internal/config"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/sapls/staff-shift/backend/internal/handler"
	"github.com/sapls/staff-shift/backend/internal/repository"
	"github.com/sapls/staff-shift/backend/internal/token"
	"golang.org/x/crypto/bcrypt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// 初始管理员带有超级管理员子角色
const initialAdminRole = "super"

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("API 服务异常退出", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("无法加载配置文件: %w", err)
	}

	/**********************************************
	 * 连接 postgres、rabbitmq 和 redis
	 **********************************************/
	dbpool, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	repo := repository.NewRepository(cfg, dbpool)
	if err := ensureInitialAdmin(repo, cfg); err != nil {
		return err
	}

	conn, ch, err := openMailChannel(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	rdb, err := openRedis(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	/**********************************************
	 * 组装 handler
	 **********************************************/
	issuer, err := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		return fmt.Errorf("无法创建令牌签发器: %w", err)
	}
	logger.Info("令牌配置",
		"issuer", cfg.JWT.Issuer,
		"audience", cfg.JWT.Audience,
		"accessExpiration", time.Duration(cfg.JWT.AccessExpiration)*time.Second,
		"refreshExpiration", time.Duration(cfg.JWT.RefreshExpiration)*time.Second,
	)
	logger.Info("登录限流配置", "perMinute", cfg.RateLimit.LoginPerMinute, "burst", cfg.RateLimit.LoginBurst)

	h, err := handler.NewHandler(cfg, handler.Dependencies{
		Repository:    repo,
		Mail:          ch,
		RefreshTokens: handler.NewRedisRefreshTokens(rdb),
		Issuer:        issuer,
		LoginLimiter:  handler.NewLoginRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst),
	})
	if err != nil {
		return fmt.Errorf("无法创建 handler: %w", err)
	}
	h.RegisterRoutes()

	return serve(logger, cfg, h.Mux)
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("无法创建数据库连接池: %w", err)
	}

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 不会立即建立连接，需要显式 ping
	if err := dbpool.PingContext(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("无法连接到数据库: %w", err)
	}
	return dbpool, nil
}

// ensureInitialAdmin 在数据库中没有该邮箱时创建初始管理员，已存在时什么也不做
func ensureInitialAdmin(repo *repository.Repository, cfg *config.Config) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.InitialAdmin.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("无法生成初始管理员密码哈希: %w", err)
	}

	admin := &domain.User{
		ID:           uuid.NewString(),
		Email:        cfg.InitialAdmin.Email,
		PasswordHash: string(passwordHash),
		FullName:     cfg.InitialAdmin.FullName,
		Role:         domain.RoleAdmin,
		AdminRole:    initialAdminRole,
	}
	err = repo.CreateUser(admin)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		slog.Info("已创建初始管理员", "email", admin.Email)
		return nil
	case errors.As(err, &pgErr) && pgErr.ConstraintName == repository.ConstraintUsersEmailKey:
		return nil
	default:
		return fmt.Errorf("无法创建初始管理员: %w", err)
	}
}

func openMailChannel(cfg *config.Config) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("无法连接到 rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("无法建立通道: %w", err)
	}

	// 与 mail worker 声明的队列参数保持一致
	if _, err := ch.QueueDeclare("email_queue", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("无法声明队列: %w", err)
	}
	return conn, ch, nil
}

func openRedis(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:    cfg.Redis.Password,
		DialTimeout: time.Duration(cfg.Redis.ConnectTimeout) * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Redis.ConnectTimeout)*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("无法连接到 redis: %w", err)
	}
	return rdb, nil
}

// serve 启动 HTTP 服务器并在收到 SIGINT 或 SIGTERM 后优雅关闭
func serve(logger *slog.Logger, cfg *config.Config, mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      mux,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("正在启动服务器...", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("无法启动服务器: %w", err)
	case <-quit:
	}

	logger.Info("正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("关闭服务器失败: %w", err)
	}
	logger.Info("服务器已成功关闭")
	return nil
}
