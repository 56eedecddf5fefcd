package utils

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sapls/staff-shift/backend/internal/domain"
)

var shiftTypes = []domain.ShiftType{domain.ShiftTypeRegular, domain.ShiftTypeEmergency}

// ValidateStaffShift 返回班次的全部校验错误，各项检查相互独立，不会在第一个错误处停止
func ValidateStaffShift(shift *domain.StaffShift) []domain.ValidationError {
	errs := make([]domain.ValidationError, 0)
	if shift == nil {
		shift = &domain.StaffShift{}
	}

	// 必填字段
	if shift.ID == "" {
		errs = append(errs, requiredError("id", "班次编号不能为空"))
	}
	if len(shift.StaffIDs) == 0 {
		errs = append(errs, requiredError("staffIds", "至少需要指定一名员工"))
	}
	if shift.StartTime == nil {
		errs = append(errs, requiredError("startTime", "开始时间不能为空"))
	}
	if shift.EndTime == nil {
		errs = append(errs, requiredError("endTime", "结束时间不能为空"))
	}

	// 时间范围
	if shift.StartTime != nil && shift.EndTime != nil {
		start, end := *shift.StartTime, *shift.EndTime
		if start < domain.MinShiftMinute || start > domain.MaxShiftMinute {
			errs = append(errs, domain.ValidationError{
				Field:   "startTime",
				Code:    "range",
				Message: fmt.Sprintf("开始时间必须在 %d 到 %d 分钟之间", domain.MinShiftMinute, domain.MaxShiftMinute),
			})
		}
		if end < domain.MinShiftMinute || end > domain.MaxShiftMinute {
			errs = append(errs, domain.ValidationError{
				Field:   "endTime",
				Code:    "range",
				Message: fmt.Sprintf("结束时间必须在 %d 到 %d 分钟之间", domain.MinShiftMinute, domain.MaxShiftMinute),
			})
		}
		// 0 到 0 是界面上“尚未选择时间段”的占位值
		if start == 0 && end == 0 {
			errs = append(errs, domain.ValidationError{
				Field:   "timeRangeSelection",
				Code:    "timeRangeSelection",
				Message: "请选择班次的时间段",
			})
		}
	}

	// 班次类型
	if shift.ShiftType != "" && !slices.Contains(shiftTypes, shift.ShiftType) {
		errs = append(errs, domain.ValidationError{
			Field:   "shiftType",
			Code:    "shiftType",
			Message: fmt.Sprintf("不支持的班次类型 %q", shift.ShiftType),
		})
	}

	// 按星期重复与指定日期只能二选一
	hasDays := strings.TrimSpace(shift.DayOfWeeks) != ""
	hasDate := strings.TrimSpace(shift.SpecificDate) != ""
	switch {
	case hasDays && hasDate:
		errs = append(errs, domain.ValidationError{
			Field:   "dateLogic",
			Code:    "dateLogic",
			Message: "不能同时指定星期和具体日期",
		})
	case !hasDays && !hasDate:
		errs = append(errs, domain.ValidationError{
			Field:   "dateLogic",
			Code:    "dateLogic",
			Message: "必须指定星期或具体日期其中之一",
		})
	}

	if utf8.RuneCountInString(shift.Notes) > domain.MaxNotesLength {
		errs = append(errs, domain.ValidationError{
			Field:   "notes",
			Code:    "maxLength",
			Message: fmt.Sprintf("备注不能超过 %d 个字符", domain.MaxNotesLength),
		})
	}

	return errs
}

func IsValidStaffShift(shift *domain.StaffShift) bool {
	return len(ValidateStaffShift(shift)) == 0
}

func requiredError(field, msg string) domain.ValidationError {
	return domain.ValidationError{Field: field, Code: "required", Message: msg}
}

// ParseDayOfWeeks 解析形如 "1,2,3" 的星期序号，0 为周日，结果去重并保持输入顺序
func ParseDayOfWeeks(s string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, 7)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < int(time.Sunday) || n > int(time.Saturday) {
			return nil, fmt.Errorf("无效的星期序号 %q", part)
		}
		if !slices.Contains(days, time.Weekday(n)) {
			days = append(days, time.Weekday(n))
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("星期不能为空")
	}
	return days, nil
}

func ParseSpecificDate(s string) (time.Time, error) {
	date, err := time.Parse(domain.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式错误，应为 YYYY-MM-DD")
	}
	return date, nil
}

var weekdayNames = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// FormatWeekdays 把星期列表转成邮件里展示用的文字，例如 "周一、周三"
func FormatWeekdays(days []time.Weekday) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, weekdayNames[d])
	}
	return strings.Join(names, "、")
}
