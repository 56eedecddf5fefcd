package domain

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

const (
	MailTypeShiftAssigned  = "shift_assigned"
	MailTypeShiftCancelled = "shift_cancelled"
)

type ShiftAssignedMailData struct {
	FullName     string `json:"fullName"`
	ShiftType    string `json:"shiftType"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	DayOfWeeks   string `json:"dayOfWeeks"`
	SpecificDate string `json:"specificDate"`
	Notes        string `json:"notes"`
}

type ShiftCancelledMailData struct {
	FullName     string `json:"fullName"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	DayOfWeeks   string `json:"dayOfWeeks"`
	SpecificDate string `json:"specificDate"`
}
