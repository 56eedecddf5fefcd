package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var timeFormatRegexp = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// TimeToMinutes 将 "HH:MM" 转换为距离零点的分钟数，这里不做范围检查
func TimeToMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("时间格式错误: %q", s)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("时间格式错误: %q", s)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("时间格式错误: %q", s)
	}
	return hours*60 + minutes, nil
}

func MinutesToTime(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// IsValidTimeFormat 只接受 H:MM 或 HH:MM，小时 0-23，分钟 00-59
func IsValidTimeFormat(s string) bool {
	return timeFormatRegexp.MatchString(s)
}
