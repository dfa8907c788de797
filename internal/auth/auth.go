// Package auth resolves API keys to agent identities.
//
// Keys are random 256-bit values issued at registration and stored only as
// SHA-256 hashes. Possession of the key is the sole write credential.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/store"
)

// keyBytes is the raw key length before hex encoding.
const keyBytes = 32

// Service authenticates agents by API key.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// NewService creates an auth service over the given store.
func NewService(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

// GenerateKey creates a new API key and its storage hash.
// The key is returned to the caller exactly once and never persisted.
func GenerateKey() (key, hash string, err error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating api key: %w", err)
	}
	key = hex.EncodeToString(buf)
	return key, HashKey(key), nil
}

// HashKey returns the SHA-256 hex digest of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Authenticate resolves an API key to its agent.
// Returns ErrUnauthorized for empty or unknown keys.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*knowledge.Agent, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing api key", knowledge.ErrUnauthorized)
	}

	hash := HashKey(apiKey)
	agent, err := s.store.AgentByKeyHash(ctx, hash)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			s.logger.Debug("unknown api key presented")
			return nil, fmt.Errorf("%w: unknown api key", knowledge.ErrUnauthorized)
		}
		return nil, fmt.Errorf("looking up api key: %w", err)
	}

	// Hash comparison happens in the store query; this guards against a
	// store implementation returning a near-miss row.
	if subtle.ConstantTimeCompare([]byte(agent.APIKeyHash), []byte(hash)) != 1 {
		return nil, fmt.Errorf("%w: key mismatch", knowledge.ErrUnauthorized)
	}

	return agent, nil
}
