package handler

type ContextKey string

var (
	ClaimsCtxKey  ContextKey = "claims"
	MyInfoCtx     ContextKey = "myInfo"
	StaffShiftCtx ContextKey = "staffShift"
)
