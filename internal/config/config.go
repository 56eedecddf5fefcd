package config

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		DSN                string `env:"DSN,required,notEmpty"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	InitialAdmin struct {
		Password string `env:"PASSWORD,required,notEmpty"`
		FullName string `env:"FULL_NAME" envDefault:"管理员"`
		Email    string `env:"EMAIL,required,notEmpty"`
	} `envPrefix:"INITIAL_ADMIN_"`
	JWT struct {
		Secret            string `env:"SECRET,required,notEmpty"`
		Issuer            string `env:"ISSUER" envDefault:"sapls"`
		Audience          string `env:"AUDIENCE" envDefault:"sapls-clients"`
		AccessExpiration  int    `env:"ACCESS_EXPIRATION" envDefault:"900"`     // 15 分钟
		RefreshExpiration int    `env:"REFRESH_EXPIRATION" envDefault:"604800"` // 7 天
	} `envPrefix:"JWT_"`
	Seed struct {
		User struct {
			Password string `env:"PASSWORD,required,notEmpty"`
		} `envPrefix:"USER_"`
	} `envPrefix:"SEED_"`
	Email struct {
		UserDomain string `env:"USER_DOMAIN,required,notEmpty"`
		SMTP       struct {
			Username    string `env:"USERNAME,required,notEmpty"`
			Password    string `env:"PASSWORD,required,notEmpty"`
			Host        string `env:"HOST,required,notEmpty"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required,notEmpty"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD,required,notEmpty"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"`
	} `envPrefix:"REDIS_"`
	RateLimit struct {
		LoginPerMinute int `env:"LOGIN_PER_MINUTE" envDefault:"10"`
		LoginBurst     int `env:"LOGIN_BURST" envDefault:"5"`
	} `envPrefix:"RATE_LIMIT_"`
}

// ClientConfig 是 session 命令行工具的配置
type ClientConfig struct {
	AuthBaseURL     string        `env:"AUTH_BASE_URL" envDefault:"http://localhost:3000/api/auth"`
	RequestTimeout  time.Duration `env:"AUTH_REQUEST_TIMEOUT" envDefault:"10s"`
	RefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"4m"`
	Store           string        `env:"SESSION_STORE" envDefault:"sqlite"`
	SQLitePath      string        `env:"SESSION_SQLITE_PATH" envDefault:"session.db"`
	Redis           struct {
		Addr      string `env:"ADDR" envDefault:"localhost:6379"`
		Password  string `env:"PASSWORD"`
		KeyPrefix string `env:"KEY_PREFIX" envDefault:"sapls:session:"`
	} `envPrefix:"SESSION_REDIS_"`
}

func LoadConfig() (*Config, error) {
	loadDotEnv()

	cfg := &Config{}
	if err := parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadClientConfig() (*ClientConfig, error) {
	loadDotEnv()

	cfg := &ClientConfig{}
	if err := parse(cfg); err != nil {
		return nil, err
	}
	switch cfg.Store {
	case "memory", "sqlite", "redis":
	default:
		return nil, errors.New("SESSION_STORE 只能是 memory、sqlite 或 redis")
	}
	return cfg, nil
}

func parse(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok && len(aggErr.Errors) > 0 {
			// 只返回第一个错误使得日志更清晰
			return aggErr.Errors[0]
		}
		return err
	}
	return nil
}

// loadDotEnv 在当前目录存在 .env 时加载它，已经设置的环境变量不会被覆盖
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		slog.Warn("加载 .env 文件失败", "error", err)
	}
}
