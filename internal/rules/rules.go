// Package rules persists the notification rules of the user.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"hollowscan/internal/filter"
	"hollowscan/internal/model"
	"hollowscan/internal/storage"
)

// ErrInvalid is returned for rules that cannot be stored.
var ErrInvalid = errors.New("invalid rule")

// Store keeps the rule list as JSON under storage.KeyNotifyRules.
type Store struct {
	kv storage.KV
	mu sync.Mutex
}

// New creates a Store backed by kv.
func New(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// List returns the rules in insertion order.
func (s *Store) List(ctx context.Context) ([]model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(ctx)
}

// Add validates and appends a rule. An empty scope means all.
func (s *Store) Add(ctx context.Context, kind model.RuleKind, scope model.RuleScope, value string) (model.Rule, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.Rule{}, fmt.Errorf("%w: empty value", ErrInvalid)
	}
	switch kind {
	case model.RuleInclude, model.RuleExclude:
	case model.RuleIncludeRe, model.RuleExcludeRe:
		if err := filter.ValidateRegex(value); err != nil {
			return model.Rule{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	default:
		return model.Rule{}, fmt.Errorf("%w: unknown kind %q", ErrInvalid, kind)
	}
	switch scope {
	case "":
		scope = model.ScopeAll
	case model.ScopeTitle, model.ScopeContent, model.ScopeAll:
	default:
		return model.Rule{}, fmt.Errorf("%w: unknown scope %q", ErrInvalid, scope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.list(ctx)
	if err != nil {
		return model.Rule{}, err
	}
	var next int64 = 1
	for _, r := range list {
		if r.ID >= next {
			next = r.ID + 1
		}
	}
	r := model.Rule{ID: next, Kind: kind, Scope: scope, Value: value}
	if err := storage.SetJSON(ctx, s.kv, storage.KeyNotifyRules, append(list, r)); err != nil {
		return model.Rule{}, fmt.Errorf("save rules: %w", err)
	}
	return r, nil
}

// Remove deletes the rule with id. It returns storage.ErrNotFound when
// no such rule exists.
func (s *Store) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.list(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	found := false
	for _, r := range list {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return storage.ErrNotFound
	}
	if err := storage.SetJSON(ctx, s.kv, storage.KeyNotifyRules, kept); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

func (s *Store) list(ctx context.Context) ([]model.Rule, error) {
	var list []model.Rule
	err := storage.GetJSON(ctx, s.kv, storage.KeyNotifyRules, &list)
	if errors.Is(err, storage.ErrNotFound) {
		return []model.Rule{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return list, nil
}
