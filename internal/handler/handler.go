package handler

import (
	"context"
	"errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sapls/staff-shift/backend/internal/config"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/sapls/staff-shift/backend/internal/repository"
	"github.com/sapls/staff-shift/backend/internal/token"
)

// MailPublisher 是 *amqp.Channel 中发布消息的部分
type MailPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Handler struct {
	validate      *validator.Validate
	config        *config.Config
	repository    *repository.Repository
	translator    ut.Translator
	mailChannel   MailPublisher
	refreshTokens RefreshTokenStore
	issuer        *token.Issuer
	loginLimiter  *RateLimiter

	Mux *chi.Mux
}

// Dependencies 是 handler 依赖的外部组件，由 main 根据配置创建
type Dependencies struct {
	Repository    *repository.Repository
	Mail          MailPublisher
	RefreshTokens RefreshTokenStore
	Issuer        *token.Issuer
	LoginLimiter  *RateLimiter
}

func NewHandler(cfg *config.Config, deps Dependencies) (*Handler, error) {
	if deps.Repository == nil || deps.Mail == nil || deps.RefreshTokens == nil || deps.Issuer == nil || deps.LoginLimiter == nil {
		return nil, errors.New("handler 缺少必要的依赖")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:      validate,
		config:        cfg,
		repository:    deps.Repository,
		translator:    trans,
		mailChannel:   deps.Mail,
		refreshTokens: deps.RefreshTokens,
		issuer:        deps.Issuer,
		loginLimiter:  deps.LoginLimiter,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)
	h.Mux.Use(h.metrics)

	h.Mux.Handle("/metrics", promhttp.Handler())

	h.Mux.Route("/api", func(r chi.Router) {
		// 认证相关，响应体遵循客户端约定，不使用统一的 Response 格式
		r.Route("/auth", func(r chi.Router) {
			r.With(h.rateLimit).Post("/login", h.Login)
			r.Post("/refresh-token", h.RefreshToken)
			r.Post("/logout", h.Logout)
		})

		// 以下 API 必须要在登录后才允许调用
		r.Group(func(r chi.Router) {
			r.Use(h.auth)
			r.With(h.myInfo).Get("/me", h.GetMyInfo)

			r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Get("/staff", h.GetAllStaff)

			r.Route("/staff-shifts", func(r chi.Router) {
				r.Use(h.RequiredRole([]domain.Role{domain.RoleAdmin, domain.RoleStaff}))
				r.Get("/", h.GetAllStaffShifts)
				r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Post("/", h.CreateStaffShift)
				r.Route("/{id}", func(r chi.Router) {
					r.Use(h.staffShift)
					r.Get("/", h.GetStaffShift)
					r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Patch("/", h.UpdateStaffShift)
					r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Delete("/", h.DeleteStaffShift)
				})
			})
		})
	})
}
