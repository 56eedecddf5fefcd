package handler

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/sapls/staff-shift/backend/internal/repository"
	"github.com/sapls/staff-shift/backend/internal/utils"
)

func (h *Handler) GetAllStaffShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.repository.GetAllStaffShifts()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取所有班次成功", shifts)
}

func (h *Handler) GetStaffShift(w http.ResponseWriter, r *http.Request) {
	shift := r.Context().Value(StaffShiftCtx).(*domain.StaffShift)
	h.successResponse(w, r, "获取班次成功", shift)
}

func (h *Handler) CreateStaffShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffIDs     []string `json:"staffIds" validate:"dive,uuid"`
		StartTime    *int     `json:"startTime"`
		EndTime      *int     `json:"endTime"`
		ShiftType    string   `json:"shiftType"`
		DayOfWeeks   string   `json:"dayOfWeeks"`
		SpecificDate string   `json:"specificDate"`
		Notes        string   `json:"notes"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	shift := &domain.StaffShift{
		ID:           uuid.NewString(),
		StaffIDs:     dedupe(req.StaffIDs),
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		ShiftType:    domain.ShiftType(req.ShiftType),
		DayOfWeeks:   req.DayOfWeeks,
		SpecificDate: req.SpecificDate,
		Notes:        req.Notes,
	}

	if !h.checkStaffShift(w, r, shift) {
		return
	}

	if err := h.repository.CreateStaffShift(shift); err != nil {
		h.staffShiftWriteError(w, r, err)
		return
	}

	h.notifyStaff(shift, shift.StaffIDs, domain.MailTypeShiftAssigned)

	h.successResponse(w, r, "创建班次成功", shift)
}

func (h *Handler) UpdateStaffShift(w http.ResponseWriter, r *http.Request) {
	shift := r.Context().Value(StaffShiftCtx).(*domain.StaffShift)

	// 字段为 null 或缺失表示不修改
	var req struct {
		StaffIDs     []string `json:"staffIds" validate:"dive,uuid"`
		StartTime    *int     `json:"startTime"`
		EndTime      *int     `json:"endTime"`
		ShiftType    *string  `json:"shiftType"`
		DayOfWeeks   *string  `json:"dayOfWeeks"`
		SpecificDate *string  `json:"specificDate"`
		Notes        *string  `json:"notes"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	updated := *shift
	updated.StaffIDs = slices.Clone(shift.StaffIDs)

	if req.StaffIDs != nil {
		updated.StaffIDs = dedupe(req.StaffIDs)
	}
	if req.StartTime != nil {
		updated.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		updated.EndTime = req.EndTime
	}
	if req.ShiftType != nil {
		updated.ShiftType = domain.ShiftType(*req.ShiftType)
	}
	if req.DayOfWeeks != nil {
		updated.DayOfWeeks = *req.DayOfWeeks
	}
	if req.SpecificDate != nil {
		updated.SpecificDate = *req.SpecificDate
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
	}

	if !h.checkStaffShift(w, r, &updated) {
		return
	}

	if err := h.repository.UpdateStaffShift(&updated); err != nil {
		h.staffShiftWriteError(w, r, err)
		return
	}

	h.notifyStaff(&updated, difference(updated.StaffIDs, shift.StaffIDs), domain.MailTypeShiftAssigned)
	h.notifyStaff(shift, difference(shift.StaffIDs, updated.StaffIDs), domain.MailTypeShiftCancelled)

	h.successResponse(w, r, "更新班次成功", &updated)
}

func (h *Handler) DeleteStaffShift(w http.ResponseWriter, r *http.Request) {
	shift := r.Context().Value(StaffShiftCtx).(*domain.StaffShift)

	if err := h.repository.DeleteStaffShift(shift.ID); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.notifyStaff(shift, shift.StaffIDs, domain.MailTypeShiftCancelled)

	h.successResponse(w, r, "删除班次成功", nil)
}

// checkStaffShift 先执行全部业务规则，全部通过后再解析日期字段。返回 false 时已经写入响应
func (h *Handler) checkStaffShift(w http.ResponseWriter, r *http.Request, shift *domain.StaffShift) bool {
	if errs := utils.ValidateStaffShift(shift); len(errs) > 0 {
		for _, e := range errs {
			shiftValidationFailuresTotal.WithLabelValues(e.Field).Inc()
		}
		h.validationFailed(w, r, errs)
		return false
	}

	if strings.TrimSpace(shift.DayOfWeeks) != "" {
		if _, err := utils.ParseDayOfWeeks(shift.DayOfWeeks); err != nil {
			h.badRequest(w, r, err)
			return false
		}
		shift.DayOfWeeks = strings.TrimSpace(shift.DayOfWeeks)
		shift.SpecificDate = ""
		return true
	}

	date, err := utils.ParseSpecificDate(shift.SpecificDate)
	if err != nil {
		h.badRequest(w, r, err)
		return false
	}
	shift.SpecificDate = date.Format(domain.DateLayout)
	shift.DayOfWeeks = ""
	return true
}

func (h *Handler) staffShiftWriteError(w http.ResponseWriter, r *http.Request, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, repository.ErrEditConflict):
		h.errorResponse(w, r, "班次已被其他人修改，请刷新后重试")
	case errors.As(err, &pgErr):
		switch pgErr.ConstraintName {
		case repository.ConstraintAssignmentsStaffFKey:
			h.errorResponse(w, r, "员工不存在")
		case repository.ConstraintAssignmentsPrimaryKey:
			h.errorResponse(w, r, "员工重复分配")
		default:
			h.internalServerError(w, r, err)
		}
	default:
		h.internalServerError(w, r, err)
	}
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// difference 返回在 a 中但不在 b 中的元素
func difference(a, b []string) []string {
	out := make([]string, 0)
	for _, id := range a {
		if !slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	return out
}
