package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shiftColumns = []string{
	"id", "start_time", "end_time", "shift_type", "day_of_weeks", "specific_date", "notes", "created_at", "version", "staff_id",
}

func expectStaffLookup(env *testEnv, ids []string) {
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "role", "is_active"})
	for _, id := range ids {
		rows.AddRow(id, "liming@sapls.dev", "李明", "staff", true)
	}
	env.mock.ExpectQuery(`FROM users WHERE id = ANY\(\$1\)`).
		WithArgs(ids).
		WillReturnRows(rows)
}

func expectExistingShift(env *testEnv) {
	env.mock.ExpectQuery(`WHERE ss.id = \$1`).
		WithArgs(shiftID).
		WillReturnRows(sqlmock.NewRows(shiftColumns).
			AddRow(shiftID, 480, 960, "Regular", "1,3", nil, "早班", time.Now(), 1, staffID))
}

func validationErrors(t *testing.T, resp Response) []domain.ValidationError {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var errs []domain.ValidationError
	require.NoError(t, json.Unmarshal(raw, &errs))
	return errs
}

func TestCreateStaffShift(t *testing.T) {
	env := newTestEnv(t, testConfig())

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`INSERT INTO staff_shifts`).
		WithArgs(sqlmock.AnyArg(), 480, 960, "Regular", "1,3", nil, "早班").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "version"}).AddRow(time.Now(), 1))
	env.mock.ExpectExec(`INSERT INTO staff_shift_assignments`).
		WithArgs(sqlmock.AnyArg(), staffID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()
	expectStaffLookup(env, []string{staffID})

	body := map[string]any{
		"staffIds":   []string{staffID, staffID},
		"startTime":  480,
		"endTime":    960,
		"shiftType":  "Regular",
		"dayOfWeeks": " 1,3 ",
		"notes":      "早班",
	}
	rec := env.do(t, http.MethodPost, "/api/staff-shifts", body, env.bearer(t, adminUser()))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success, resp.Message)
	assert.NoError(t, env.mock.ExpectationsWereMet())

	sent := env.publisher.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.MailTypeShiftAssigned, sent[0].Type)
	assert.Equal(t, "liming@sapls.dev", sent[0].To)
	data := sent[0].Data.(map[string]any)
	assert.Equal(t, "08:00", data["startTime"])
	assert.Equal(t, "16:00", data["endTime"])
	assert.Equal(t, "周一、周三", data["dayOfWeeks"])
	assert.Equal(t, "常规班", data["shiftType"])
}

func TestCreateStaffShift_ReturnsEveryViolation(t *testing.T) {
	env := newTestEnv(t, testConfig())

	body := map[string]any{
		"staffIds":     []string{},
		"startTime":    0,
		"endTime":      0,
		"shiftType":    "Overtime",
		"dayOfWeeks":   "1",
		"specificDate": "2024-03-08",
		"notes":        strings.Repeat("备", 501),
	}
	rec := env.do(t, http.MethodPost, "/api/staff-shifts", body, env.bearer(t, adminUser()))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)

	errs := validationErrors(t, resp)
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"staffIds", "timeRangeSelection", "shiftType", "dateLogic", "notes"}, fields)
	assert.Equal(t, errs[0].Message, resp.Message)
	assert.Empty(t, env.publisher.sent())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCreateStaffShift_RejectsMalformedDates(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"weekday out of range", map[string]any{"dayOfWeeks": "1,9"}},
		{"bad date", map[string]any{"specificDate": "2024/03/08"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig())
			tt.body["staffIds"] = []string{staffID}
			tt.body["startTime"] = 480
			tt.body["endTime"] = 960

			rec := env.do(t, http.MethodPost, "/api/staff-shifts", tt.body, env.bearer(t, adminUser()))

			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			assert.NoError(t, env.mock.ExpectationsWereMet())
		})
	}
}

func TestCreateStaffShift_InvalidStaffID(t *testing.T) {
	env := newTestEnv(t, testConfig())

	body := map[string]any{"staffIds": []string{"not-a-uuid"}, "startTime": 480, "endTime": 960, "dayOfWeeks": "1"}
	rec := env.do(t, http.MethodPost, "/api/staff-shifts", body, env.bearer(t, adminUser()))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)
}

func TestCreateStaffShift_UnknownStaff(t *testing.T) {
	env := newTestEnv(t, testConfig())

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`INSERT INTO staff_shifts`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "version"}).AddRow(time.Now(), 1))
	env.mock.ExpectExec(`INSERT INTO staff_shift_assignments`).
		WillReturnError(&pgconn.PgError{ConstraintName: "staff_shift_assignments_staff_id_fkey"})
	env.mock.ExpectRollback()

	body := map[string]any{"staffIds": []string{staffID}, "startTime": 480, "endTime": 960, "specificDate": "2024-03-08"}
	rec := env.do(t, http.MethodPost, "/api/staff-shifts", body, env.bearer(t, adminUser()))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "员工不存在", resp.Message)
}

func TestCreateStaffShift_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, http.MethodPost, "/api/staff-shifts", map[string]any{}, env.bearer(t, staffUser()))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "权限不足", resp.Message)
}

func TestCreateStaffShift_AdminRoleInheritsAdmin(t *testing.T) {
	env := newTestEnv(t, testConfig())
	superStaff := staffUser()
	superStaff.AdminRole = "SuperAdmin"

	body := map[string]any{"staffIds": []string{}, "startTime": 480, "endTime": 960, "dayOfWeeks": "1"}
	rec := env.do(t, http.MethodPost, "/api/staff-shifts", body, env.bearer(t, superStaff))

	// 通过了权限检查，停在业务校验上
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "至少需要指定一名员工", resp.Message)
}

func TestGetStaffShift(t *testing.T) {
	env := newTestEnv(t, testConfig())
	expectExistingShift(env)

	rec := env.do(t, http.MethodGet, "/api/staff-shifts/"+shiftID, nil, env.bearer(t, staffUser()))

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success, resp.Message)
	data := resp.Data.(map[string]any)
	assert.Equal(t, shiftID, data["id"])
	assert.Equal(t, []any{staffID}, data["staffIds"])
	assert.Equal(t, float64(480), data["startTime"])
}

func TestGetStaffShift_InvalidID(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, http.MethodGet, "/api/staff-shifts/42", nil, env.bearer(t, staffUser()))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "班次ID无效", resp.Message)
}

func TestGetStaffShift_NotFound(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.mock.ExpectQuery(`WHERE ss.id = \$1`).
		WithArgs(shiftID).
		WillReturnRows(sqlmock.NewRows(shiftColumns))

	rec := env.do(t, http.MethodGet, "/api/staff-shifts/"+shiftID, nil, env.bearer(t, staffUser()))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "班次不存在", resp.Message)
}

func TestUpdateStaffShift_SwitchToSpecificDate(t *testing.T) {
	env := newTestEnv(t, testConfig())
	const newStaffID = "5a6b7c8d-9e0f-4a1b-8c2d-3e4f5a6b7c8d"

	expectExistingShift(env)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`UPDATE staff_shifts`).
		WithArgs(480, 960, "Regular", nil, "2024-03-08", "早班", shiftID, int32(1)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))
	env.mock.ExpectExec(`DELETE FROM staff_shift_assignments`).
		WithArgs(shiftID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO staff_shift_assignments`).
		WithArgs(shiftID, newStaffID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()
	expectStaffLookup(env, []string{newStaffID})
	expectStaffLookup(env, []string{staffID})

	body := map[string]any{"staffIds": []string{newStaffID}, "dayOfWeeks": "", "specificDate": "2024-03-08"}
	rec := env.do(t, http.MethodPatch, "/api/staff-shifts/"+shiftID, body, env.bearer(t, adminUser()))

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success, resp.Message)
	assert.NoError(t, env.mock.ExpectationsWereMet())

	sent := env.publisher.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.MailTypeShiftAssigned, sent[0].Type)
	assert.Equal(t, domain.MailTypeShiftCancelled, sent[1].Type)
}

func TestUpdateStaffShift_BothDateModesRejected(t *testing.T) {
	env := newTestEnv(t, testConfig())
	expectExistingShift(env)

	// 原班次按星期重复，只补充具体日期会同时存在两种模式
	rec := env.do(t, http.MethodPatch, "/api/staff-shifts/"+shiftID, map[string]any{"specificDate": "2024-03-08"}, env.bearer(t, adminUser()))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	errs := validationErrors(t, resp)
	require.Len(t, errs, 1)
	assert.Equal(t, "dateLogic", errs[0].Field)
}

func TestUpdateStaffShift_Conflict(t *testing.T) {
	env := newTestEnv(t, testConfig())
	expectExistingShift(env)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`UPDATE staff_shifts`).WillReturnRows(sqlmock.NewRows([]string{"version"}))
	env.mock.ExpectRollback()

	rec := env.do(t, http.MethodPatch, "/api/staff-shifts/"+shiftID, map[string]any{"notes": "晚到"}, env.bearer(t, adminUser()))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "班次已被其他人修改，请刷新后重试", resp.Message)
}

func TestDeleteStaffShift_NotifiesStaff(t *testing.T) {
	env := newTestEnv(t, testConfig())
	expectExistingShift(env)
	env.mock.ExpectExec(`DELETE FROM staff_shifts WHERE id = \$1`).
		WithArgs(shiftID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectStaffLookup(env, []string{staffID})

	rec := env.do(t, http.MethodDelete, "/api/staff-shifts/"+shiftID, nil, env.bearer(t, adminUser()))

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success, resp.Message)

	sent := env.publisher.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.MailTypeShiftCancelled, sent[0].Type)
	assert.Equal(t, "周一、周三", sent[0].Data.(map[string]any)["dayOfWeeks"])
}

func TestDeleteStaffShift_MailFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.publisher.err = errors.New("channel closed")
	expectExistingShift(env)
	env.mock.ExpectExec(`DELETE FROM staff_shifts`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectStaffLookup(env, []string{staffID})

	rec := env.do(t, http.MethodDelete, "/api/staff-shifts/"+shiftID, nil, env.bearer(t, adminUser()))

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}
