// Package session keeps per-user conversational state in a flat
// key/value namespace. Keys are derived from the VK user id: the bare
// id holds the dialog state, "{id}_first_name" and "{id}_last_name"
// cache the fetched profile.
package session

import (
	"context"
	"fmt"
)

// Store is the flat KV namespace behind the session layer.
// Get reports found=false for a missing key without error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Sessions exposes typed accessors over a Store.
type Sessions struct {
	store Store
}

func New(store Store) *Sessions {
	return &Sessions{store: store}
}

func stateKey(userID int64) string     { return fmt.Sprintf("%d", userID) }
func firstNameKey(userID int64) string { return fmt.Sprintf("%d_first_name", userID) }
func lastNameKey(userID int64) string  { return fmt.Sprintf("%d_last_name", userID) }

// State returns the stored dialog state for the user.
// found=false means the user has never been seen.
func (s *Sessions) State(ctx context.Context, userID int64) (string, bool, error) {
	raw, found, err := s.store.Get(ctx, stateKey(userID))
	if err != nil || !found {
		return "", found, err
	}
	return string(raw), true, nil
}

// SetState persists the user's dialog state, overwriting any previous value.
func (s *Sessions) SetState(ctx context.Context, userID int64, state string) error {
	return s.store.Set(ctx, stateKey(userID), []byte(state))
}

// FirstName returns the cached profile first name, if any.
func (s *Sessions) FirstName(ctx context.Context, userID int64) (string, bool, error) {
	raw, found, err := s.store.Get(ctx, firstNameKey(userID))
	if err != nil || !found {
		return "", found, err
	}
	return string(raw), true, nil
}

// SetProfile caches both profile names. Callers write the cache once,
// on first contact; later dispatches read it back instead of refetching.
func (s *Sessions) SetProfile(ctx context.Context, userID int64, firstName, lastName string) error {
	if err := s.store.Set(ctx, firstNameKey(userID), []byte(firstName)); err != nil {
		return err
	}
	return s.store.Set(ctx, lastNameKey(userID), []byte(lastName))
}

// LastName returns the cached profile last name, if any.
func (s *Sessions) LastName(ctx context.Context, userID int64) (string, bool, error) {
	raw, found, err := s.store.Get(ctx, lastNameKey(userID))
	if err != nil || !found {
		return "", found, err
	}
	return string(raw), true, nil
}
