package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sapls/staff-shift/backend/internal/domain"
)

// 后端签发令牌时使用的声明键，客户端必须逐字匹配
const (
	ClaimUserID    = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	ClaimEmail     = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	ClaimFullName  = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
	ClaimRole      = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
	ClaimAdminRole = "AdminRole"
)

// 每个逻辑字段的候选键，按优先级排列；短键来自旧版令牌
var (
	userIDKeys    = []string{ClaimUserID, "nameid", "sub"}
	emailKeys     = []string{ClaimEmail, "email"}
	fullNameKeys  = []string{ClaimFullName, "unique_name", "name"}
	roleKeys      = []string{ClaimRole, "role"}
	adminRoleKeys = []string{ClaimAdminRole}
)

var ErrMalformedToken = errors.New("令牌格式错误")

var parser = jwt.NewParser()

// Decode 在不校验签名的情况下解出令牌中的声明，仅供界面展示使用
func Decode(tokenString string) (*domain.Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) < 2 {
		return nil, ErrMalformedToken
	}

	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	mc := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &mc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	return FromMapClaims(mc)
}

func FromMapClaims(mc jwt.MapClaims) (*domain.Claims, error) {
	claims := &domain.Claims{
		UserID:    lookup(mc, userIDKeys),
		Email:     lookup(mc, emailKeys),
		FullName:  lookup(mc, fullNameKeys),
		Role:      lookup(mc, roleKeys),
		AdminRole: lookup(mc, adminRoleKeys),
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if claims.Issuer, err = mc.GetIssuer(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	aud, err := mc.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	claims.Audience = []string(aud)

	return claims, nil
}

// lookup 返回第一个存在且非空的候选键的值
func lookup(mc jwt.MapClaims, keys []string) string {
	for _, key := range keys {
		if v := stringValue(mc[key]); v != "" {
			return v
		}
	}
	return ""
}

func stringValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case []any:
		// 多角色时后端会输出数组，取第一个
		for _, item := range v {
			if s := stringValue(item); s != "" {
				return s
			}
		}
		return ""
	default:
		return fmt.Sprint(v)
	}
}
