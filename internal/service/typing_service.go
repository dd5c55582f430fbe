package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/presence"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

// TypingService records and lists typing indicators per room.
type TypingService interface {
	Set(ctx context.Context, actorID, roomID string) (presence.TypingEntry, error)
	Clear(ctx context.Context, actorID, roomID string) error
	List(ctx context.Context, actorID, roomID string) ([]presence.TypingEntry, error)
}

type typingService struct {
	store  repository.Store
	typing *presence.TypingStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewTypingService wraps a typing store with user and room checks. DM rooms
// follow the same read rules as their history.
func NewTypingService(store repository.Store, typing *presence.TypingStore, logger zerolog.Logger) TypingService {
	return &typingService{
		store:  store,
		typing: typing,
		logger: logger.With().Str("component", "typing_service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *typingService) Set(ctx context.Context, actorID, roomID string) (presence.TypingEntry, error) {
	actor, err := loadActiveActor(ctx, s.store, actorID, s.now())
	if err != nil {
		return presence.TypingEntry{}, err
	}
	if _, err := readableRoom(ctx, s.store, actor.ID, roomID); err != nil {
		return presence.TypingEntry{}, err
	}
	return s.typing.Set(actor.ID, roomID, actor.Username), nil
}

func (s *typingService) Clear(ctx context.Context, actorID, roomID string) error {
	if _, err := loadActor(ctx, s.store, actorID); err != nil {
		return err
	}
	s.typing.Clear(actorID, roomID)
	return nil
}

func (s *typingService) List(ctx context.Context, actorID, roomID string) ([]presence.TypingEntry, error) {
	if _, err := readableRoom(ctx, s.store, actorID, roomID); err != nil {
		return nil, err
	}
	return s.typing.List(roomID), nil
}
