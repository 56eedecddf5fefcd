package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sapls/staff-shift/backend/internal/domain"
)

func (h *Handler) logInternalServerError(r *http.Request, err error) {
	slog.Error("服务器内部错误", "method", r.Method, "path", r.URL.Path, "error", err)
}

func (h *Handler) readJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("请求体格式错误")
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logInternalServerError(r, err)
	}
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, msg string) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Message: msg,
		Data:    nil,
	})
}

// unauthorized 使用 401 让客户端知道需要刷新令牌或重新登录
func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	h.writeJSON(w, r, http.StatusUnauthorized, Response{
		Success: false,
		Message: msg,
		Data:    nil,
	})
}

func (h *Handler) translate(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	return validationErrors[0].Translate(h.translator)
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.errorResponse(w, r, h.translate(err))
}

// validationFailed 返回全部校验错误，message 取第一条
func (h *Handler) validationFailed(w http.ResponseWriter, r *http.Request, errs []domain.ValidationError) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Message: errs[0].Message,
		Data:    errs,
	})
}

func (h *Handler) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.logInternalServerError(r, err)
	h.writeJSON(w, r, http.StatusInternalServerError, Response{
		Success: false,
		Message: "服务器内部错误",
		Data:    nil,
	})
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

type messageBody struct {
	Message string `json:"message"`
}

// authError 是认证接口的错误格式 {"message": ...}
func (h *Handler) authError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, messageBody{Message: msg})
}

func (h *Handler) authInternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.logInternalServerError(r, err)
	h.authError(w, r, http.StatusInternalServerError, "服务器内部错误")
}
