package store

import "errors"

// 客户端持久化令牌使用的键
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

var ErrNotFound = errors.New("键不存在")
