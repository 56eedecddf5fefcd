package repository

import (
	"database/sql"

	"github.com/sapls/staff-shift/backend/internal/config"
)

// 班次相关的约束名，handler 根据它们区分 pgconn.PgError
const (
	ConstraintUsersEmailKey         = "users_email_key"
	ConstraintAssignmentsStaffFKey  = "staff_shift_assignments_staff_id_fkey"
	ConstraintAssignmentsPrimaryKey = "staff_shift_assignments_pkey"
)

type Repository struct {
	cfg    *config.Config
	dbpool *sql.DB
}

func NewRepository(cfg *config.Config, dbpool *sql.DB) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
	}
}
