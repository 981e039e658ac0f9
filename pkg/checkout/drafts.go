package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrDraftNotFound is returned when a session has no saved draft
var ErrDraftNotFound = errors.New("draft not found")

// DraftStore keeps the in-progress checkout of a session
type DraftStore interface {
	Save(ctx context.Context, sessionID string, req OrderRequest) error
	Load(ctx context.Context, sessionID string) (*OrderRequest, error)
	Delete(ctx context.Context, sessionID string) error
}

// NewSessionID returns a random checkout session identifier
func NewSessionID() string {
	return uuid.NewString()
}

// RedisDraftStore stores drafts as JSON with a TTL
type RedisDraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDraftStore creates a draft store. Drafts expire after ttl.
func NewRedisDraftStore(client *redis.Client, ttl time.Duration) *RedisDraftStore {
	return &RedisDraftStore{client: client, ttl: ttl}
}

func draftKey(sessionID string) string {
	return "checkout:draft:" + sessionID
}

func (s *RedisDraftStore) Save(ctx context.Context, sessionID string, req OrderRequest) error {
	req.SessionID = sessionID
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (s *RedisDraftStore) Load(ctx context.Context, sessionID string) (*OrderRequest, error) {
	data, err := s.client.Get(ctx, draftKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var req OrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	return &req, nil
}

func (s *RedisDraftStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, draftKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}
