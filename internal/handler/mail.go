package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/sapls/staff-shift/backend/internal/utils"
)

const mailQueue = "email_queue"

func (h *Handler) publishMail(msg domain.MailMessage) error {
	// 序列化邮件
	mailData, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// 发送邮件到消息队列中
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.config.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	return h.mailChannel.PublishWithContext(
		ctx,
		"",
		mailQueue,
		true,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        mailData,
		},
	)
}

// notifyStaff 给 staffIDs 中的员工发送班次通知。班次已经保存成功，通知失败只记录日志
func (h *Handler) notifyStaff(shift *domain.StaffShift, staffIDs []string, mailType string) {
	if len(staffIDs) == 0 {
		return
	}

	users, err := h.repository.GetUsersByIDs(staffIDs)
	if err != nil {
		slog.Error("无法获取需要通知的员工", "shiftID", shift.ID, "error", err)
		return
	}

	start, end, days, date := describeShift(shift)
	for _, user := range users {
		msg := domain.MailMessage{Type: mailType, To: user.Email}
		switch mailType {
		case domain.MailTypeShiftAssigned:
			msg.Data = domain.ShiftAssignedMailData{
				FullName:     user.FullName,
				ShiftType:    shiftTypeName(shift.ShiftType),
				StartTime:    start,
				EndTime:      end,
				DayOfWeeks:   days,
				SpecificDate: date,
				Notes:        shift.Notes,
			}
		case domain.MailTypeShiftCancelled:
			msg.Data = domain.ShiftCancelledMailData{
				FullName:     user.FullName,
				StartTime:    start,
				EndTime:      end,
				DayOfWeeks:   days,
				SpecificDate: date,
			}
		}

		if err := h.publishMail(msg); err != nil {
			slog.Error("无法发送班次通知邮件", "shiftID", shift.ID, "to", user.Email, "type", mailType, "error", err)
		}
	}
}

func describeShift(shift *domain.StaffShift) (start, end, days, date string) {
	if shift.StartTime != nil {
		start = utils.MinutesToTime(*shift.StartTime)
	}
	if shift.EndTime != nil {
		end = utils.MinutesToTime(*shift.EndTime)
	}
	if weekdays, err := utils.ParseDayOfWeeks(shift.DayOfWeeks); err == nil {
		days = utils.FormatWeekdays(weekdays)
	}
	return start, end, days, shift.SpecificDate
}

func shiftTypeName(t domain.ShiftType) string {
	switch t {
	case domain.ShiftTypeEmergency:
		return "临时班"
	default:
		return "常规班"
	}
}
