package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	contractx "github.com/haasonsaas/adept/agent/contract"
	redisrestx "github.com/haasonsaas/adept/pkg/redisrest"
)

var ErrInvalidRecord = errors.New("approval record is invalid")

// MemoryStore keeps pending approvals in-process. Suitable for tests and
// single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]contractx.ApprovalRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]contractx.ApprovalRecord)}
}

func (s *MemoryStore) Put(ctx context.Context, rec contractx.ApprovalRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (contractx.ApprovalRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

const (
	defaultKeyPrefix = "adept:approval:"
	defaultTTL       = 24 * time.Hour
)

// RedisStoreOption customizes RedisStore.
type RedisStoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// RedisStore persists approval records via the Upstash REST client so
// pending gates survive process restarts.
type RedisStore struct {
	client    *redisrestx.Client
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redisrestx.Client, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	store := &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       defaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return store, nil
}

func (s *RedisStore) Put(ctx context.Context, rec contractx.ApprovalRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidRecord)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal approval record: %w", err)
	}
	return s.client.SetString(ctx, s.keyPrefix+rec.ID, string(payload), s.ttl)
}

func (s *RedisStore) Get(ctx context.Context, id string) (contractx.ApprovalRecord, bool, error) {
	raw, ok, err := s.client.GetString(ctx, s.keyPrefix+id)
	if err != nil || !ok {
		return contractx.ApprovalRecord{}, false, err
	}
	var rec contractx.ApprovalRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return contractx.ApprovalRecord{}, false, fmt.Errorf("unmarshal approval record: %w", err)
	}
	return rec, true, nil
}
