package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quill-dev/quill/internal/models"
)

// RedisStore keeps refresh tokens in Redis, each key expiring with its token
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed refresh token store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "quill:refresh:",
	}
}

func (r *RedisStore) key(hash string) string {
	return r.prefix + "token:" + hash
}

func (r *RedisStore) familyKey(familyID string) string {
	return r.prefix + "family:" + familyID
}

func (r *RedisStore) Save(ctx context.Context, token *models.RefreshToken) error {
	if token.TokenHash == "" || token.UserID == "" || token.FamilyID == "" {
		return fmt.Errorf("refresh token: missing hash, user or family")
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh token: expires_at must be in the future")
	}

	if token.ID == "" {
		token.ID = ulid.Make().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("refresh token: failed to marshal: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(token.TokenHash), data, ttl)
		pipe.SAdd(ctx, r.familyKey(token.FamilyID), token.TokenHash)
		pipe.ExpireAt(ctx, r.familyKey(token.FamilyID), token.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (r *RedisStore) Find(ctx context.Context, hash string) (*models.RefreshToken, error) {
	return r.get(ctx, r.client, hash)
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) get(ctx context.Context, cmd getter, hash string) (*models.RefreshToken, error) {
	val, err := cmd.Get(ctx, r.key(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	var token models.RefreshToken
	if err := json.Unmarshal(val, &token); err != nil {
		return nil, fmt.Errorf("refresh token: failed to unmarshal: %w", err)
	}
	return &token, nil
}

func (r *RedisStore) Consume(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	var consumed *models.RefreshToken

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		token, err := r.get(ctx, tx, hash)
		if err != nil {
			return err
		}
		if err := checkConsumable(token, now); err != nil {
			return err
		}

		token.RotatedAt = &now
		data, err := json.Marshal(token)
		if err != nil {
			return fmt.Errorf("refresh token: failed to marshal: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, r.key(hash), data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		consumed = token
		return nil
	}, r.key(hash))

	if errors.Is(err, redis.TxFailedErr) {
		// another exchange of the same token won the race
		return nil, ErrTokenReused
	}
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

func (r *RedisStore) RevokeFamily(ctx context.Context, familyID string, now time.Time) error {
	hashes, err := r.client.SMembers(ctx, r.familyKey(familyID)).Result()
	if err != nil {
		return fmt.Errorf("failed to load token family: %w", err)
	}

	for _, hash := range hashes {
		token, err := r.get(ctx, r.client, hash)
		if errors.Is(err, ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if token.RevokedAt != nil {
			continue
		}

		token.RevokedAt = &now
		data, err := json.Marshal(token)
		if err != nil {
			return fmt.Errorf("refresh token: failed to marshal: %w", err)
		}
		if err := r.client.SetArgs(ctx, r.key(hash), data, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
	}
	return nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
