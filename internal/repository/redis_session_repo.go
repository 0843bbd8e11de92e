package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/plantcare/internal/model"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

// redisSessionPayload はRedisに保存するセッションの値。
type redisSessionPayload struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// REDIS_URLが設定された場合にPostgreSQLの代わりに使用する。
// キーのTTLをセッションの有効期限に合わせるため、期限切れのキーはRedis側で消える。
type RedisSessionRepo struct {
	client *redis.Client
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: already expired")
	}

	payload, err := json.Marshal(redisSessionPayload{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	indexKey := userSessionKeyPrefix + session.UserID
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl)
	pipe.SAdd(ctx, indexKey, session.ID)
	pipe.Expire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var payload redisSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &model.Session{
		ID:        id,
		UserID:    payload.UserID,
		ExpiresAt: payload.ExpiresAt,
		CreatedAt: payload.CreatedAt,
	}, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	session, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.SRem(ctx, userSessionKeyPrefix+session.UserID, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	indexKey := userSessionKeyPrefix + userID
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, indexKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired はユーザー別インデックスから、TTLで消えたセッションIDを取り除く。
// セッション本体はRedisのTTLで自動的に消えるため、戻り値は取り除いたID数となる。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var removed int64
	iter := r.client.Scan(ctx, 0, userSessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		ids, err := r.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to list user sessions: %w", err)
		}
		for _, id := range ids {
			exists, err := r.client.Exists(ctx, sessionKeyPrefix+id).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to check session: %w", err)
			}
			if exists > 0 {
				continue
			}
			if err := r.client.SRem(ctx, indexKey, id).Err(); err != nil {
				return removed, fmt.Errorf("failed to prune session index: %w", err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan session indexes: %w", err)
	}
	return removed, nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
