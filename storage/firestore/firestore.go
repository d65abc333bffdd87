// Package firestore provides a Firestore implementation of the
// accountsync.ProfileStore interface.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/flowreach/accountsync/pkg/accountsync"
)

// Store implements accountsync.ProfileStore using Google Cloud Firestore.
type Store struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore store configuration.
type Config struct {
	// Collection is the Firestore collection for profiles
	// Default: "profiles"
	Collection string
}

// New creates a new Firestore profile store.
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.Collection == "" {
		config.Collection = "profiles"
	}
	return &Store{client: client, collection: config.Collection}, nil
}

// GetProfile implements accountsync.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, id string) (*accountsync.Profile, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, accountsync.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if !snap.Exists() {
		return nil, accountsync.ErrProfileNotFound
	}

	data := snap.Data()
	preferences, _ := data["preferences"].(map[string]interface{})
	if preferences == nil {
		preferences = map[string]interface{}{}
	}

	profile := &accountsync.Profile{
		ID:          id,
		Role:        accountsync.ParseRole(getString(data, "role")),
		Preferences: preferences,
		FullName:    getString(data, "fullName"),
	}
	if active, ok := data["active"].(bool); ok {
		profile.Active = active
	}
	if updated, ok := data["statusUpdatedAt"].(time.Time); ok {
		profile.StatusUpdatedAt = updated
	}
	return profile, nil
}

// UpsertProfile implements accountsync.ProfileStore.
func (s *Store) UpsertProfile(ctx context.Context, profile *accountsync.Profile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("invalid profile")
	}

	data := map[string]interface{}{
		"role":            string(profile.Role),
		"active":          profile.Active,
		"fullName":        profile.FullName,
		"preferences":     profile.Preferences,
		"statusUpdatedAt": profile.StatusUpdatedAt,
	}

	if _, err := s.client.Collection(s.collection).Doc(profile.ID).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func getString(data map[string]interface{}, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
