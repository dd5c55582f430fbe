// Package presence keeps ephemeral "who is typing where" state in memory.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default windows. Reads filter at Freshness while the sweeper only removes
// entries older than TTL; the slack between the two is intentional.
const (
	DefaultFreshness     = 5 * time.Second
	DefaultTTL           = 10 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

// TypingEntry is a single typing indicator.
type TypingEntry struct {
	UserID      string    `json:"user_id"`
	RoomID      string    `json:"room_id"`
	DisplayName string    `json:"display_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type typingKey struct {
	userID string
	roomID string
}

// Options tunes the store windows.
type Options struct {
	Freshness     time.Duration
	TTL           time.Duration
	SweepInterval time.Duration
	// OnSweep is invoked with the number of live entries after every sweep.
	OnSweep func(remaining int)
}

// TypingStore owns every typing entry of the process.
type TypingStore struct {
	mu      sync.RWMutex
	entries map[typingKey]TypingEntry
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// NewTypingStore constructs a store, filling unset windows with defaults.
func NewTypingStore(opts Options, logger zerolog.Logger) *TypingStore {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	return &TypingStore{
		entries: make(map[typingKey]TypingEntry),
		opts:    opts,
		logger:  logger.With().Str("component", "typing_store").Logger(),
		now:     time.Now,
	}
}

// Set upserts the entry for (userID, roomID) stamped with the current time.
func (s *TypingStore) Set(userID, roomID, displayName string) TypingEntry {
	entry := TypingEntry{
		UserID:      userID,
		RoomID:      roomID,
		DisplayName: displayName,
		UpdatedAt:   s.now(),
	}

	s.mu.Lock()
	s.entries[typingKey{userID: userID, roomID: roomID}] = entry
	s.mu.Unlock()

	return entry
}

// Clear removes the entry for (userID, roomID) if present.
func (s *TypingStore) Clear(userID, roomID string) {
	s.mu.Lock()
	delete(s.entries, typingKey{userID: userID, roomID: roomID})
	s.mu.Unlock()
}

// List returns the fresh entries of a room ordered by display name. Stale
// entries are skipped but left for the sweeper.
func (s *TypingStore) List(roomID string) []TypingEntry {
	cutoff := s.now().Add(-s.opts.Freshness)

	s.mu.RLock()
	out := make([]TypingEntry, 0)
	for key, entry := range s.entries {
		if key.roomID != roomID {
			continue
		}
		if entry.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, entry)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].UserID < out[j].UserID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// Sweep physically deletes entries older than the TTL and returns how many
// were removed.
func (s *TypingStore) Sweep() int {
	cutoff := s.now().Add(-s.opts.TTL)

	s.mu.Lock()
	removed := 0
	for key, entry := range s.entries {
		if entry.UpdatedAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if s.opts.OnSweep != nil {
		s.opts.OnSweep(remaining)
	}
	return removed
}

// Len reports the number of stored entries, stale ones included.
func (s *TypingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *TypingStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug().Int("removed", removed).Msg("expired typing indicators swept")
			}
		}
	}
}
