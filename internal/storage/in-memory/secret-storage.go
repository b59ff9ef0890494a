package in_memory

import (
	"context"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"sync"
)

type secretKey struct {
	service string
	account string
}

// SecretStorage keeps secrets for the lifetime of the process.
type SecretStorage struct {
	mu      sync.RWMutex
	secrets map[secretKey]string
}

func NewSecretStorage() *SecretStorage {
	return &SecretStorage{
		secrets: make(map[secretKey]string),
	}
}

func (s *SecretStorage) SaveSecret(_ context.Context, value, service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secretKey{service: service, account: account}] = value
	return nil
}

func (s *SecretStorage) ReadSecret(_ context.Context, service, account string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.secrets[secretKey{service: service, account: account}]
	if !ok {
		return "", model.ErrSecretDoesNotExist
	}
	return value, nil
}

func (s *SecretStorage) DeleteSecret(_ context.Context, service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, secretKey{service: service, account: account})
	return nil
}
