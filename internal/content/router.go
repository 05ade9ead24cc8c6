// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package content

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/veil/internal/decoy"
	"github.com/jeranaias/veil/internal/lock"
)

// Domain names a content store.
type Domain int

const (
	// DomainNone means the app is locked and no content is reachable.
	DomainNone Domain = iota
	// DomainReal is the user's real conversations.
	DomainReal
	// DomainDecoy is the decoy preset content.
	DomainDecoy
)

// String returns the domain name.
func (d Domain) String() string {
	switch d {
	case DomainReal:
		return "real"
	case DomainDecoy:
		return "decoy"
	default:
		return "none"
	}
}

// ErrLocked is returned when content is requested while locked.
var ErrLocked = errors.New("content is locked")

// Router sends reads and writes to the real or decoy store according to the
// lock state. Subscribe OnLockState to the lock controller.
type Router struct {
	mu           sync.RWMutex
	real         *Store
	decoy        *Store
	domain       Domain
	onDecoyWrite func()
}

// NewRouter creates a router in DomainNone.
func NewRouter(real, decoy *Store) *Router {
	return &Router{real: real, decoy: decoy}
}

// OnDecoyWrite registers fn to run after every successful decoy write.
func (r *Router) OnDecoyWrite(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDecoyWrite = fn
}

// OnLockState switches domain for a lock state.
func (r *Router) OnLockState(s lock.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case s.IsDecoyUnlocked():
		r.domain = DomainDecoy
	case s.IsRealUnlocked():
		r.domain = DomainReal
	default:
		r.domain = DomainNone
	}
}

// Domain returns the active domain.
func (r *Router) Domain() Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.domain
}

func (r *Router) active() (*Store, Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch r.domain {
	case DomainReal:
		return r.real, DomainReal, nil
	case DomainDecoy:
		return r.decoy, DomainDecoy, nil
	default:
		return nil, DomainNone, ErrLocked
	}
}

func (r *Router) wrote(d Domain) {
	if d != DomainDecoy {
		return
	}
	r.mu.RLock()
	fn := r.onDecoyWrite
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Conversations lists the active domain's conversations.
func (r *Router) Conversations(ctx context.Context) ([]Conversation, error) {
	s, _, err := r.active()
	if err != nil {
		return nil, err
	}
	return s.Conversations(ctx)
}

// Messages returns a conversation from the active domain.
func (r *Router) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	s, _, err := r.active()
	if err != nil {
		return nil, err
	}
	return s.Messages(ctx, conversationID)
}

// CreateConversation writes into the active domain.
func (r *Router) CreateConversation(ctx context.Context, title string) (Conversation, error) {
	s, d, err := r.active()
	if err != nil {
		return Conversation{}, err
	}
	c, err := s.CreateConversation(ctx, title)
	if err == nil {
		r.wrote(d)
	}
	return c, err
}

// AddMessage writes into the active domain.
func (r *Router) AddMessage(ctx context.Context, conversationID, role, text string) (Message, error) {
	s, d, err := r.active()
	if err != nil {
		return Message{}, err
	}
	m, err := s.AddMessage(ctx, conversationID, role, text)
	if err == nil {
		r.wrote(d)
	}
	return m, err
}

// DeleteConversation deletes from the active domain.
func (r *Router) DeleteConversation(ctx context.Context, id string) error {
	s, d, err := r.active()
	if err != nil {
		return err
	}
	if err := s.DeleteConversation(ctx, id); err != nil {
		return err
	}
	r.wrote(d)
	return nil
}

// WipeReal destroys the real domain. Decoy content is untouched.
func (r *Router) WipeReal(ctx context.Context) error {
	return r.real.Wipe(ctx)
}

// Reseed replaces decoy content with the preset's seed. It implements
// decoy.Seeder.
func (r *Router) Reseed(p decoy.Preset) error {
	threads := make([]Thread, 0, len(p.Seed))
	for _, c := range p.Seed {
		th := Thread{Title: c.Title}
		for _, m := range c.Messages {
			th.Messages = append(th.Messages, Message{Role: m.Role, Content: m.Content})
		}
		threads = append(threads, th)
	}
	if err := r.decoy.Replace(context.Background(), threads); err != nil {
		return fmt.Errorf("failed to reseed decoy: %w", err)
	}
	return nil
}

// EnsureSeeded seeds the decoy store when it is empty.
func (r *Router) EnsureSeeded(ctx context.Context, p decoy.Preset) error {
	n, err := r.decoy.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return r.Reseed(p)
}

// Close closes both stores.
func (r *Router) Close() error {
	return errors.Join(r.real.Close(), r.decoy.Close())
}
