// Package redis provides a Redis implementation of the
// accountsync.ProfileStore interface. Profiles are stored as JSON blobs
// keyed by identity ID.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowreach/accountsync/pkg/accountsync"
)

// Store implements accountsync.ProfileStore using Redis.
type Store struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis store configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "accountsync:")
	KeyPrefix string

	// ProfileTTL is the TTL for profile keys (0 = no expiration).
	// Deployments using Redis as a cache in front of a durable store set
	// this; standalone deployments leave it at 0.
	ProfileTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "accountsync:",
		ProfileTTL: 0,
	}
}

// New creates a new Redis profile store.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "accountsync:"
	}
	return &Store{client: client, config: config}, nil
}

type profileRecord struct {
	ID              string                 `json:"id"`
	Role            string                 `json:"role"`
	Active          bool                   `json:"active"`
	FullName        string                 `json:"full_name,omitempty"`
	Preferences     map[string]interface{} `json:"preferences"`
	StatusUpdatedAt time.Time              `json:"status_updated_at"`
}

// GetProfile implements accountsync.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, id string) (*accountsync.Profile, error) {
	raw, err := s.client.Get(ctx, s.profileKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, accountsync.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var record profileRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	preferences := record.Preferences
	if preferences == nil {
		preferences = map[string]interface{}{}
	}
	return &accountsync.Profile{
		ID:              record.ID,
		Role:            accountsync.ParseRole(record.Role),
		Active:          record.Active,
		FullName:        record.FullName,
		Preferences:     preferences,
		StatusUpdatedAt: record.StatusUpdatedAt,
	}, nil
}

// UpsertProfile implements accountsync.ProfileStore.
func (s *Store) UpsertProfile(ctx context.Context, profile *accountsync.Profile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("invalid profile")
	}

	record := profileRecord{
		ID:              profile.ID,
		Role:            string(profile.Role),
		Active:          profile.Active,
		FullName:        profile.FullName,
		Preferences:     profile.Preferences,
		StatusUpdatedAt: profile.StatusUpdatedAt,
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	if err := s.client.Set(ctx, s.profileKey(profile.ID), encoded, s.config.ProfileTTL).Err(); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *Store) profileKey(id string) string {
	return s.config.KeyPrefix + "profile:" + id
}
