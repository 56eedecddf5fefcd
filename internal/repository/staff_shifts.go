package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sapls/staff-shift/backend/internal/domain"
)

var ErrEditConflict = errors.New("数据已被其他人修改")

type staffShiftRow struct {
	ID           string
	StartTime    int
	EndTime      int
	ShiftType    string
	DayOfWeeks   sql.NullString
	SpecificDate sql.NullTime
	Notes        sql.NullString
	CreatedAt    time.Time
	Version      int32

	StaffID sql.NullString
}

func (row *staffShiftRow) dst() []any {
	return []any{
		&row.ID,
		&row.StartTime,
		&row.EndTime,
		&row.ShiftType,
		&row.DayOfWeeks,
		&row.SpecificDate,
		&row.Notes,
		&row.CreatedAt,
		&row.Version,
		&row.StaffID,
	}
}

func (row *staffShiftRow) toDomain() *domain.StaffShift {
	start, end := row.StartTime, row.EndTime
	shift := &domain.StaffShift{
		ID:         row.ID,
		StaffIDs:   make([]string, 0),
		StartTime:  &start,
		EndTime:    &end,
		ShiftType:  domain.ShiftType(row.ShiftType),
		DayOfWeeks: row.DayOfWeeks.String,
		Notes:      row.Notes.String,
		CreatedAt:  row.CreatedAt,
		Version:    row.Version,
	}
	if row.SpecificDate.Valid {
		shift.SpecificDate = row.SpecificDate.Time.Format(domain.DateLayout)
	}
	return shift
}

const selectStaffShift = `
	SELECT
		ss.id,
		ss.start_time,
		ss.end_time,
		ss.shift_type,
		ss.day_of_weeks,
		ss.specific_date,
		ss.notes,
		ss.created_at,
		ss.version,
		ssa.staff_id
	FROM staff_shifts ss
	LEFT JOIN staff_shift_assignments ssa ON ss.id = ssa.shift_id
`

func (r *Repository) GetAllStaffShifts() ([]*domain.StaffShift, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := selectStaffShift + `ORDER BY ss.created_at, ss.id, ssa.staff_id`

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]*domain.StaffShift, 0)
	shiftsMap := make(map[string]*domain.StaffShift)

	for rows.Next() {
		var row staffShiftRow
		if err := rows.Scan(row.dst()...); err != nil {
			return nil, err
		}

		shift, exists := shiftsMap[row.ID]
		if !exists {
			// 第一次查到这个班次
			shift = row.toDomain()
			shiftsMap[row.ID] = shift
			shifts = append(shifts, shift)
		}

		// 没有分配员工的班次 staff_id 为空
		if row.StaffID.Valid {
			shift.StaffIDs = append(shift.StaffIDs, row.StaffID.String)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return shifts, nil
}

// GetStaffShift 在班次不存在时返回 sql.ErrNoRows
func (r *Repository) GetStaffShift(id string) (*domain.StaffShift, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := selectStaffShift + `WHERE ss.id = $1 ORDER BY ssa.staff_id`

	rows, err := r.dbpool.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shift *domain.StaffShift
	for rows.Next() {
		var row staffShiftRow
		if err := rows.Scan(row.dst()...); err != nil {
			return nil, err
		}

		if shift == nil {
			shift = row.toDomain()
		}
		if row.StaffID.Valid {
			shift.StaffIDs = append(shift.StaffIDs, row.StaffID.String)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if shift == nil {
		return nil, sql.ErrNoRows
	}

	return shift, nil
}

func (r *Repository) CreateStaffShift(shift *domain.StaffShift) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO staff_shifts (id, start_time, end_time, shift_type, day_of_weeks, specific_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, version
	`
	params := []any{
		shift.ID,
		*shift.StartTime,
		*shift.EndTime,
		string(shift.ShiftType),
		nullString(shift.DayOfWeeks),
		nullString(shift.SpecificDate),
		nullString(shift.Notes),
	}
	if err := tx.QueryRowContext(ctx, query, params...).Scan(&shift.CreatedAt, &shift.Version); err != nil {
		return err
	}

	if err := insertAssignments(ctx, tx, shift.ID, shift.StaffIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// UpdateStaffShift 使用乐观锁更新班次并整体替换员工分配，版本不匹配时返回 ErrEditConflict
func (r *Repository) UpdateStaffShift(shift *domain.StaffShift) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE staff_shifts
		SET
			start_time = $1,
			end_time = $2,
			shift_type = $3,
			day_of_weeks = $4,
			specific_date = $5,
			notes = $6,
			version = version + 1
		WHERE id = $7 AND version = $8
		RETURNING version
	`
	params := []any{
		*shift.StartTime,
		*shift.EndTime,
		string(shift.ShiftType),
		nullString(shift.DayOfWeeks),
		nullString(shift.SpecificDate),
		nullString(shift.Notes),
		shift.ID,
		shift.Version,
	}
	if err := tx.QueryRowContext(ctx, query, params...).Scan(&shift.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEditConflict
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM staff_shift_assignments WHERE shift_id = $1`, shift.ID); err != nil {
		return err
	}

	if err := insertAssignments(ctx, tx, shift.ID, shift.StaffIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// DeleteStaffShift 在班次不存在时返回 sql.ErrNoRows，员工分配通过外键级联删除
func (r *Repository) DeleteStaffShift(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		DELETE FROM staff_shifts WHERE id = $1
	`

	result, err := r.dbpool.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func insertAssignments(ctx context.Context, tx *sql.Tx, shiftID string, staffIDs []string) error {
	query := `
		INSERT INTO staff_shift_assignments (shift_id, staff_id)
		VALUES ($1, $2)
	`
	for _, staffID := range staffIDs {
		if _, err := tx.ExecContext(ctx, query, shiftID, staffID); err != nil {
			return err
		}
	}
	return nil
}
