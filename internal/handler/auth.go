package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.authError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.authError(w, r, http.StatusBadRequest, h.translate(err))
		return
	}

	// 验证邮箱和密码
	user, err := h.repository.GetUserByEmail(req.Email)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			loginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			h.authError(w, r, http.StatusUnauthorized, "邮箱或密码错误")
		default:
			h.authInternalServerError(w, r, err)
		}
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			loginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			h.authError(w, r, http.StatusUnauthorized, "邮箱或密码错误")
		default:
			h.authInternalServerError(w, r, err)
		}
		return
	}

	if !user.IsActive {
		loginAttemptsTotal.WithLabelValues("inactive").Inc()
		h.authError(w, r, http.StatusForbidden, "账号已被停用")
		return
	}

	pair, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.authInternalServerError(w, r, err)
		return
	}

	loginAttemptsTotal.WithLabelValues("success").Inc()
	h.writeJSON(w, r, http.StatusOK, pair)
}

// RefreshToken 用刷新令牌换取新的令牌对，旧的刷新令牌随即作废
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.authError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.authError(w, r, http.StatusBadRequest, h.translate(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationExpiration)*time.Second)
	defer cancel()

	userID, err := h.refreshTokens.Consume(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, errRefreshTokenNotFound):
			tokenRefreshesTotal.WithLabelValues("rejected").Inc()
			h.authError(w, r, http.StatusUnauthorized, "刷新令牌无效或已过期")
		default:
			h.authInternalServerError(w, r, err)
		}
		return
	}

	user, err := h.repository.GetUserByID(userID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			tokenRefreshesTotal.WithLabelValues("rejected").Inc()
			h.authError(w, r, http.StatusUnauthorized, "用户不存在")
		default:
			h.authInternalServerError(w, r, err)
		}
		return
	}

	if !user.IsActive {
		tokenRefreshesTotal.WithLabelValues("rejected").Inc()
		h.authError(w, r, http.StatusUnauthorized, "账号已被停用")
		return
	}

	pair, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.authInternalServerError(w, r, err)
		return
	}

	tokenRefreshesTotal.WithLabelValues("success").Inc()
	h.writeJSON(w, r, http.StatusOK, pair)
}

// Logout 作废刷新令牌，无论令牌是否存在都返回成功
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}

	// 请求体为空也视为登出成功
	_ = h.readJSON(r, &req)

	if req.RefreshToken != "" {
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationExpiration)*time.Second)
		defer cancel()

		if err := h.refreshTokens.Delete(ctx, req.RefreshToken); err != nil {
			slog.Warn("作废刷新令牌失败", "error", err)
		}
	}

	h.writeJSON(w, r, http.StatusOK, messageBody{Message: "登出成功"})
}

func (h *Handler) issueTokens(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	accessToken, expiresAt, err := h.issuer.Sign(user, time.Duration(h.config.JWT.AccessExpiration)*time.Second)
	if err != nil {
		return nil, err
	}

	refreshToken := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.config.Redis.OperationExpiration)*time.Second)
	defer cancel()

	if err := h.refreshTokens.Save(ctx, refreshToken, user.ID, time.Duration(h.config.JWT.RefreshExpiration)*time.Second); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
	}, nil
}
