package domain

import (
	"slices"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
	RoleUser  Role = "user"
)

var knownRoles = []Role{RoleAdmin, RoleStaff, RoleUser}

// NormalizeRole 将令牌中的角色与已知角色做大小写不敏感的匹配，未知角色原样返回
func NormalizeRole(raw string) Role {
	for _, role := range knownRoles {
		if strings.EqualFold(raw, string(role)) {
			return role
		}
	}
	return Role(raw)
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Role         Role      `json:"role"`
	AdminRole    string    `json:"adminRole,omitempty"` // 非空表示超级管理员，继承普通管理员的全部权限
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	Version      int32     `json:"-"`
}

// HasPermission 判断令牌持有者是否满足 required 中的任一角色
func HasPermission(claims *Claims, required []Role) bool {
	if claims == nil {
		return false
	}
	if slices.Contains(required, NormalizeRole(claims.Role)) {
		return true
	}
	// 带有 AdminRole 的用户视为管理员
	return claims.AdminRole != "" && slices.Contains(required, RoleAdmin)
}
