// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_recording_cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrHandleNotFound = errors.New("no active cloud recording for interview")

// ActiveRecording is what must survive between start and stop. It is kept
// outside the process so a stop can come from any replica.
type ActiveRecording struct {
	ResourceID  string    `json:"resourceId"`
	SID         string    `json:"sid"`
	Channel     string    `json:"channel"`
	RecorderUID string    `json:"recorderUid"`
	StartedAt   time.Time `json:"startedAt"`
}

// HandleStore persists active cloud recordings keyed by interview id.
//
// Implementations must:
//   - overwrite on Save so a restarted recording replaces the stale one,
//   - return ErrHandleNotFound from Load for unknown or expired interviews,
//   - treat Delete of an unknown interview as success.
type HandleStore interface {
	Save(ctx context.Context, interviewID string, rec ActiveRecording) error
	Load(ctx context.Context, interviewID string) (ActiveRecording, error)
	Delete(ctx context.Context, interviewID string) error
}

// =============================================================================
// Redis
// =============================================================================

const DefaultHandleTTL = 24 * time.Hour

type redisHandleStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisHandleStore keeps handles as JSON strings under
// interview:recording:{id}. Entries expire with the provider resource.
func NewRedisHandleStore(client *redis.Client, ttl time.Duration) HandleStore {
	if ttl <= 0 {
		ttl = DefaultHandleTTL
	}
	return &redisHandleStore{client: client, ttl: ttl}
}

func handleKey(interviewID string) string {
	return fmt.Sprintf("interview:recording:%s", interviewID)
}

func (s *redisHandleStore) Save(ctx context.Context, interviewID string, rec ActiveRecording) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode recording handle: %w", err)
	}
	if err := s.client.Set(ctx, handleKey(interviewID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save recording handle for %s: %w", interviewID, err)
	}
	return nil
}

func (s *redisHandleStore) Load(ctx context.Context, interviewID string) (ActiveRecording, error) {
	var rec ActiveRecording
	data, err := s.client.Get(ctx, handleKey(interviewID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, ErrHandleNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to load recording handle for %s: %w", interviewID, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode recording handle for %s: %w", interviewID, err)
	}
	return rec, nil
}

func (s *redisHandleStore) Delete(ctx context.Context, interviewID string) error {
	if err := s.client.Del(ctx, handleKey(interviewID)).Err(); err != nil {
		return fmt.Errorf("failed to delete recording handle for %s: %w", interviewID, err)
	}
	return nil
}

// =============================================================================
// In-memory, for single-replica deployments without Redis
// =============================================================================

type memoryHandleStore struct {
	mu      sync.RWMutex
	handles map[string]ActiveRecording
}

func NewMemoryHandleStore() HandleStore {
	return &memoryHandleStore{handles: make(map[string]ActiveRecording)}
}

func (s *memoryHandleStore) Save(_ context.Context, interviewID string, rec ActiveRecording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[interviewID] = rec
	return nil
}

func (s *memoryHandleStore) Load(_ context.Context, interviewID string) (ActiveRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.handles[interviewID]
	if !ok {
		return rec, ErrHandleNotFound
	}
	return rec, nil
}

func (s *memoryHandleStore) Delete(_ context.Context, interviewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, interviewID)
	return nil
}
