package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sapls/staff-shift/backend/internal/domain"
)

var (
	ErrInvalidToken = errors.New("无效的令牌")
	ErrEmptySecret  = errors.New("签名密钥不能为空")
)

// Issuer 负责签发和校验访问令牌
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewIssuer(secret, issuer, audience string) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Issuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}, nil
}

// Sign 为用户签发有效期为 ttl 的访问令牌，返回令牌及其过期时间
func (i *Issuer) Sign(user *domain.User, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiration := now.Add(ttl)

	mc := jwt.MapClaims{
		ClaimUserID:   user.ID,
		ClaimEmail:    user.Email,
		ClaimFullName: user.FullName,
		ClaimRole:     string(user.Role),
		"exp":         jwt.NewNumericDate(expiration),
		"iat":         jwt.NewNumericDate(now),
		"nbf":         jwt.NewNumericDate(now),
		"iss":         i.issuer,
		"aud":         i.audience,
	}
	if user.AdminRole != "" {
		mc[ClaimAdminRole] = user.AdminRole
	}

	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return ss, expiration, nil
}

// Verify 校验签名、签发者、受众和有效期，成功后返回解出的声明
func (i *Issuer) Verify(tokenString string) (*domain.Claims, error) {
	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, mc, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	return FromMapClaims(mc)
}
