package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// expiredRetention keeps a record readable for a while after it expires so
// a late refresh is answered with ErrExpiredToken rather than ErrInvalidToken.
const expiredRetention = 24 * time.Hour

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "is_revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "is_revoked", "1", "updated_at", ARGV[1])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// RedisRefreshStore keeps each record in a hash keyed by token digest and
// indexes digests per user in a set for bulk revocation.
type RedisRefreshStore struct {
	rdb    redis.UniversalClient
	cfg    SessionConfig
	prefix string
}

func NewRedisRefreshStore(rdb redis.UniversalClient, prefix string, cfg SessionConfig) *RedisRefreshStore {
	if prefix == "" {
		prefix = "refresh"
	}
	return &RedisRefreshStore{rdb: rdb, cfg: cfg.withDefaults(), prefix: prefix}
}

func (s *RedisRefreshStore) tokenKey(digest string) string {
	return s.prefix + ":token:" + digest
}

func (s *RedisRefreshStore) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

func (s *RedisRefreshStore) Create(ctx context.Context, userID string) (RefreshTokenRecord, error) {
	record, err := newRefreshRecord(s.cfg, userID)
	if err != nil {
		return RefreshTokenRecord{}, err
	}

	digest := tokenDigest(record.Token)
	key := s.tokenKey(digest)
	userKey := s.userKey(userID)
	keepUntil := record.ExpiresAt.Add(expiredRetention)

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", userID,
			"expires_at", formatMillis(record.ExpiresAt),
			"is_revoked", "0",
			"created_at", formatMillis(record.CreatedAt),
			"updated_at", formatMillis(record.UpdatedAt),
		)
		pipe.ExpireAt(ctx, key, keepUntil)
		pipe.SAdd(ctx, userKey, digest)
		pipe.ExpireAt(ctx, userKey, keepUntil)
		return nil
	})
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("store refresh token: %w", err)
	}

	return record, nil
}

func (s *RedisRefreshStore) FindByToken(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, s.tokenKey(tokenDigest(token))).Result()
	if err != nil {
		return nil, fmt.Errorf("read refresh token: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	record := RefreshTokenRecord{
		Token:     token,
		UserID:    fields["user_id"],
		IsRevoked: fields["is_revoked"] == "1",
	}
	if record.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("decode refresh token expiry: %w", err)
	}
	record.CreatedAt, _ = parseMillis(fields["created_at"])
	record.UpdatedAt, _ = parseMillis(fields["updated_at"])

	return &record, nil
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, token string) error {
	return s.revokeDigest(ctx, tokenDigest(token))
}

func (s *RedisRefreshStore) revokeDigest(ctx context.Context, digest string) error {
	err := revokeLua.Run(ctx, s.rdb, []string{s.tokenKey(digest)}, formatMillis(s.cfg.now())).Err()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *RedisRefreshStore) RevokeAllForUser(ctx context.Context, userID string) error {
	digests, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list user refresh tokens: %w", err)
	}

	for _, digest := range digests {
		if err := s.revokeDigest(ctx, digest); err != nil {
			return err
		}
	}
	return nil
}

// PurgeExpired walks token keys and drops those past their expiry, along
// with their entry in the owner's index.
func (s *RedisRefreshStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.cfg.now()
	match := s.tokenKey("*")
	tokenPrefixLen := len(s.tokenKey(""))

	var deleted int64
	iter := s.rdb.Scan(ctx, 0, match, int64(s.cfg.PurgeBatchSize)).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		values, err := s.rdb.HMGet(ctx, key, "user_id", "expires_at").Result()
		if err != nil {
			return deleted, fmt.Errorf("read refresh token %s: %w", key, err)
		}
		userID, _ := values[0].(string)
		rawExpiry, _ := values[1].(string)

		expiresAt, err := parseMillis(rawExpiry)
		if err != nil || !expiresAt.Before(now) {
			continue
		}

		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if userID != "" {
				pipe.SRem(ctx, s.userKey(userID), key[tokenPrefixLen:])
			}
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("delete expired refresh token: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan refresh tokens: %w", err)
	}

	return deleted, nil
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
