// Package session holds the local device user and their premium state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hollowscan/internal/model"
	"hollowscan/internal/storage"
)

// Session is the user context shared by the quota tracker and the bot.
type Session struct {
	kv           storage.KV
	log          *slog.Logger
	configuredID string
	now          func() time.Time

	mu   sync.RWMutex
	user model.User
}

// New creates a Session. configuredID, when set, overrides any stored id.
func New(kv storage.KV, configuredID string, log *slog.Logger) *Session {
	return &Session{
		kv:           kv,
		log:          log,
		configuredID: configuredID,
		now:          time.Now,
	}
}

// Load reads the stored user. When there is no usable id a new one is
// generated and persisted.
func (s *Session) Load(ctx context.Context) error {
	var u model.User
	err := storage.GetJSON(ctx, s.kv, storage.KeyUserData, &u)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		s.log.Warn("load user data", "error", err)
		u = model.User{}
	}

	dirty := false
	if s.configuredID != "" && u.ID != s.configuredID {
		u.ID = s.configuredID
		dirty = true
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
		s.log.Info("generated user id", "user_id", u.ID)
		dirty = true
	}

	s.mu.Lock()
	s.user = u
	s.mu.Unlock()

	if dirty {
		if err := storage.SetJSON(ctx, s.kv, storage.KeyUserData, u); err != nil {
			return fmt.Errorf("save user data: %w", err)
		}
	}
	return nil
}

// User returns a copy of the current user.
func (s *Session) User() model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// IsPremium reports whether the user has an active subscription. A
// subscription with a past end date no longer counts.
func (s *Session) IsPremium() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.user.IsPremium {
		return false
	}
	return s.user.SubscriptionEnd == nil || s.user.SubscriptionEnd.After(s.now())
}

// Update replaces the user and persists it. The in-memory user is updated
// even when the write fails.
func (s *Session) Update(ctx context.Context, u model.User) error {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()

	if err := storage.SetJSON(ctx, s.kv, storage.KeyUserData, u); err != nil {
		s.log.Error("persist user data", "error", err)
		return fmt.Errorf("save user data: %w", err)
	}
	return nil
}

// ApplyLinkStatus copies the premium state reported by the server.
func (s *Session) ApplyLinkStatus(ctx context.Context, st model.LinkStatus) error {
	u := s.User()
	u.IsPremium = st.IsPremium
	u.SubscriptionEnd = nil
	if st.PremiumUntil != nil && !st.PremiumUntil.IsZero() {
		end := st.PremiumUntil.Time
		u.SubscriptionEnd = &end
	}
	s.log.Info("premium status updated", "linked", st.Linked, "premium", u.IsPremium)
	return s.Update(ctx, u)
}
