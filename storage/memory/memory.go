// Package memory provides an in-memory implementation of the
// accountsync.ProfileStore interface. This implementation is primarily
// intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowreach/accountsync/pkg/accountsync"
)

// Store implements accountsync.ProfileStore using an in-memory map.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*accountsync.Profile
}

// New creates a new in-memory profile store.
func New() *Store {
	return &Store{
		profiles: make(map[string]*accountsync.Profile),
	}
}

// GetProfile implements accountsync.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, id string) (*accountsync.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[id]
	if !ok {
		return nil, accountsync.ErrProfileNotFound
	}

	// Return a copy to prevent external mutations
	return copyProfile(profile), nil
}

// UpsertProfile implements accountsync.ProfileStore.
func (s *Store) UpsertProfile(ctx context.Context, profile *accountsync.Profile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("invalid profile")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutations
	s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

func copyProfile(profile *accountsync.Profile) *accountsync.Profile {
	cp := *profile
	cp.Preferences = make(map[string]interface{}, len(profile.Preferences))
	for k, v := range profile.Preferences {
		cp.Preferences[k] = v
	}
	return &cp
}
