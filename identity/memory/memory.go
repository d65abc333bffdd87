// Package memory provides an in-memory implementation of the
// accountsync.IdentityProvider interface. This implementation is primarily
// intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowreach/accountsync/pkg/accountsync"
)

// Invite records one invitation sent through the provider.
type Invite struct {
	Email   string
	Options accountsync.InviteOptions
}

// Provider implements accountsync.IdentityProvider using in-memory maps.
type Provider struct {
	mu      sync.RWMutex
	byEmail map[string]*accountsync.Identity
	nextID  int
	invites []Invite
}

// New creates a new in-memory identity provider.
func New() *Provider {
	return &Provider{
		byEmail: make(map[string]*accountsync.Identity),
	}
}

// GetUserByEmail implements accountsync.IdentityProvider.
func (p *Provider) GetUserByEmail(ctx context.Context, email string) (*accountsync.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	identity, ok := p.byEmail[accountsync.NormalizeEmail(email)]
	if !ok {
		return nil, accountsync.ErrIdentityNotFound
	}
	return copyIdentity(identity), nil
}

// CreateUser implements accountsync.IdentityProvider.
func (p *Provider) CreateUser(ctx context.Context, email string, metadata map[string]interface{}) (*accountsync.Identity, error) {
	email = accountsync.NormalizeEmail(email)
	if email == "" {
		return nil, accountsync.ErrMissingEmail
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byEmail[email]; ok {
		return nil, accountsync.ErrIdentityExists
	}

	p.nextID++
	identity := &accountsync.Identity{
		ID:       fmt.Sprintf("user-%d", p.nextID),
		Email:    email,
		Metadata: copyMetadata(metadata),
	}
	p.byEmail[email] = identity
	return copyIdentity(identity), nil
}

// UpdateUserMetadata implements accountsync.IdentityProvider.
// Keys are merged onto the existing metadata.
func (p *Provider) UpdateUserMetadata(ctx context.Context, id string, metadata map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, identity := range p.byEmail {
		if identity.ID == id {
			if identity.Metadata == nil {
				identity.Metadata = make(map[string]interface{})
			}
			for k, v := range metadata {
				identity.Metadata[k] = v
			}
			return nil
		}
	}
	return accountsync.ErrIdentityNotFound
}

// InviteByEmail implements accountsync.IdentityProvider.
func (p *Provider) InviteByEmail(ctx context.Context, email string, opts accountsync.InviteOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.invites = append(p.invites, Invite{Email: accountsync.NormalizeEmail(email), Options: opts})
	return nil
}

// Invites returns a copy of the invitations sent so far.
func (p *Provider) Invites() []Invite {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Invite, len(p.invites))
	copy(out, p.invites)
	return out
}

func copyIdentity(identity *accountsync.Identity) *accountsync.Identity {
	cp := *identity
	cp.Metadata = copyMetadata(identity.Metadata)
	return &cp
}

func copyMetadata(metadata map[string]interface{}) map[string]interface{} {
	cp := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		cp[k] = v
	}
	return cp
}
