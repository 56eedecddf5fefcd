package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errRefreshTokenNotFound = errors.New("刷新令牌不存在或已过期")

// RefreshTokenStore 保存刷新令牌到用户 id 的映射
type RefreshTokenStore interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	// Consume 取出并删除令牌，同一个令牌只能使用一次
	Consume(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type redisRefreshTokens struct {
	rdb *redis.Client
}

func NewRedisRefreshTokens(rdb *redis.Client) RefreshTokenStore {
	return &redisRefreshTokens{rdb: rdb}
}

func refreshTokenKey(token string) string {
	return fmt.Sprintf("refresh_token_%s", token)
}

func (s *redisRefreshTokens) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, refreshTokenKey(token), userID, ttl).Err()
}

func (s *redisRefreshTokens) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, refreshTokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errRefreshTokenNotFound
		}
		return "", err
	}
	return userID, nil
}

func (s *redisRefreshTokens) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, refreshTokenKey(token)).Err()
}
