package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

var (
	// ErrForbidden indicates the acting user may not perform the operation.
	ErrForbidden = errors.New("action not permitted")
	// ErrBanned indicates the acting user is currently banned. It matches
	// ErrForbidden under errors.Is.
	ErrBanned = fmt.Errorf("user is banned: %w", ErrForbidden)
	// ErrInvalidInput indicates a payload that passed struct validation but
	// failed a content rule.
	ErrInvalidInput = errors.New("invalid input")
)

// loadActor resolves the acting user. Unknown ids are treated as forbidden so
// a stale header never reads as a missing resource.
func loadActor(ctx context.Context, users repository.UserStore, actorID string) (models.User, error) {
	if actorID == "" {
		return models.User{}, fmt.Errorf("acting user required: %w", ErrForbidden)
	}
	actor, err := users.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.User{}, fmt.Errorf("unknown acting user %s: %w", actorID, ErrForbidden)
		}
		return models.User{}, err
	}
	return actor, nil
}

// loadActiveActor resolves the acting user and rejects active bans.
func loadActiveActor(ctx context.Context, users repository.UserStore, actorID string, now time.Time) (models.User, error) {
	actor, err := loadActor(ctx, users, actorID)
	if err != nil {
		return models.User{}, err
	}
	if actor.IsBanned(now) {
		return models.User{}, fmt.Errorf("user %s banned until %s: %w", actor.ID, actor.BannedUntil.Format(time.RFC3339), ErrBanned)
	}
	return actor, nil
}

func requireAdmin(ctx context.Context, users repository.UserStore, actorID string) (models.User, error) {
	actor, err := loadActor(ctx, users, actorID)
	if err != nil {
		return models.User{}, err
	}
	if !actor.IsAdmin {
		return models.User{}, fmt.Errorf("admin rights required: %w", ErrForbidden)
	}
	return actor, nil
}

// readableRoom loads a room the actor may read. Public rooms are open; DM
// rooms are limited to participants and admins.
func readableRoom(ctx context.Context, store repository.Store, actorID, roomID string) (models.Room, error) {
	room, err := store.GetRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if !room.IsDM {
		return room, nil
	}
	if actorID != "" && room.HasParticipant(actorID) {
		return room, nil
	}
	actor, err := loadActor(ctx, store, actorID)
	if err != nil {
		return models.Room{}, err
	}
	if !actor.IsAdmin {
		return models.Room{}, fmt.Errorf("not a participant of room %s: %w", roomID, ErrForbidden)
	}
	return room, nil
}
