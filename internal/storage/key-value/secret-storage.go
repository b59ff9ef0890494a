package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"github.com/redis/go-redis/v9"
	"time"
)

type secretInternal struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SecretStorage keeps secrets in Redis so they outlive the process.
type SecretStorage struct {
	rdb    *redis.Client
	prefix string
}

func NewSecretStorage(rdb *redis.Client, prefix string) *SecretStorage {
	return &SecretStorage{
		rdb:    rdb,
		prefix: prefix,
	}
}

func (s *SecretStorage) SaveSecret(ctx context.Context, value, service, account string) error {
	secretJSON, err := json.Marshal(secretInternal{Value: value, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}
	secretKey := s.getSecretKey(service, account)
	if err = s.rdb.Set(ctx, secretKey, secretJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to save secret %s: %w", secretKey, err)
	}
	return nil
}

func (s *SecretStorage) ReadSecret(ctx context.Context, service, account string) (string, error) {
	secretKey := s.getSecretKey(service, account)
	secretRaw, err := s.rdb.Get(ctx, secretKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrSecretDoesNotExist
		}
		return "", fmt.Errorf("failed to get secret %s: %w", secretKey, err)
	}
	var secret secretInternal
	if err = json.Unmarshal([]byte(secretRaw), &secret); err != nil {
		return "", fmt.Errorf("failed to unmarshal secret %s: %w", secretKey, err)
	}
	return secret.Value, nil
}

func (s *SecretStorage) DeleteSecret(ctx context.Context, service, account string) error {
	secretKey := s.getSecretKey(service, account)
	if err := s.rdb.Del(ctx, secretKey).Err(); err != nil {
		return fmt.Errorf("failed to delete secret %s: %w", secretKey, err)
	}
	return nil
}

func (s *SecretStorage) getSecretKey(service, account string) string {
	return fmt.Sprintf("%ssecret_%s_%s", s.prefix, service, account)
}
