package domain

import "time"

type ShiftType string

const (
	ShiftTypeRegular   ShiftType = "Regular"
	ShiftTypeEmergency ShiftType = "Emergency"
)

const (
	MinShiftMinute = 0
	MaxShiftMinute = 1439
	MaxNotesLength = 500
	DateLayout     = "2006-01-02"
)

type StaffShift struct {
	ID           string    `json:"id"`
	StaffIDs     []string  `json:"staffIds"`
	StartTime    *int      `json:"startTime"` // 距离零点的分钟数
	EndTime      *int      `json:"endTime"`
	ShiftType    ShiftType `json:"shiftType,omitempty"`
	DayOfWeeks   string    `json:"dayOfWeeks,omitempty"` // 逗号分隔的星期序号，0 表示周日
	SpecificDate string    `json:"specificDate,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Version      int32     `json:"-"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
