package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/observability"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

// RoomService manages public rooms and direct-message rooms.
type RoomService interface {
	SeedDefaults(ctx context.Context, names []string) (int, error)
	ListPublic(ctx context.Context) ([]dto.RoomResponse, error)
	Get(ctx context.Context, actorID, id string) (dto.RoomResponse, error)
	Create(ctx context.Context, actorID string, req dto.CreateRoomRequest) (dto.RoomResponse, error)
	Delete(ctx context.Context, actorID, id string) error
	OpenDM(ctx context.Context, actorID string, req dto.OpenDMRequest) (dto.DMResponse, error)
	ListDMs(ctx context.Context, actorID, userID string) ([]dto.RoomResponse, error)
	AddParticipant(ctx context.Context, actorID, roomID string, req dto.AddParticipantRequest) (dto.RoomResponse, error)
	RemoveParticipant(ctx context.Context, actorID, roomID, userID string) (dto.RoomResponse, error)
	// CanRead reports whether actorID may read the room's history and feed.
	CanRead(ctx context.Context, actorID, roomID string) (models.Room, error)
}

type roomService struct {
	store     repository.Store
	files     FileStorage
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewRoomService constructs the room service. files may be nil.
func NewRoomService(store repository.Store, files FileStorage, validate *validator.Validate, logger zerolog.Logger) RoomService {
	if validate == nil {
		validate = validator.New()
	}
	return &roomService{
		store:     store,
		files:     files,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "room_service").Logger(),
	}
}

// SeedDefaults creates missing public rooms and returns how many were added.
func (s *roomService) SeedDefaults(ctx context.Context, names []string) (int, error) {
	created := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := s.store.GetRoomByName(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return created, err
		}

		if _, err := s.store.CreateRoom(ctx, repository.CreateRoomInput{Name: name}); err != nil {
			if errors.Is(err, repository.ErrDuplicateName) {
				continue
			}
			return created, fmt.Errorf("seed room %s: %w", name, err)
		}
		created++
	}
	if created > 0 {
		s.logger.Info().Int("created", created).Msg("default rooms seeded")
	}
	return created, nil
}

func (s *roomService) ListPublic(ctx context.Context) ([]dto.RoomResponse, error) {
	summaries, err := s.store.ListPublicRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.RoomResponse, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, dto.NewRoomSummaryResponse(summary))
	}
	return out, nil
}

func (s *roomService) CanRead(ctx context.Context, actorID, roomID string) (models.Room, error) {
	return readableRoom(ctx, s.store, actorID, roomID)
}

func (s *roomService) Get(ctx context.Context, actorID, id string) (dto.RoomResponse, error) {
	room, err := s.CanRead(ctx, actorID, id)
	if err != nil {
		return dto.RoomResponse{}, err
	}
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) Create(ctx context.Context, actorID string, req dto.CreateRoomRequest) (dto.RoomResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return dto.RoomResponse{}, err
	}
	actor, err := requireAdmin(ctx, s.store, actorID)
	if err != nil {
		return dto.RoomResponse{}, err
	}

	var description *string
	if req.Description != nil {
		clean := strings.TrimSpace(s.sanitizer.Sanitize(*req.Description))
		if clean != "" {
			description = &clean
		}
	}

	room, err := s.store.CreateRoom(ctx, repository.CreateRoomInput{Name: req.Name, Description: description})
	if err != nil {
		return dto.RoomResponse{}, err
	}
	s.logger.Info().Str("room_id", room.ID).Str("name", room.Name).Str("admin_id", actor.ID).Msg("room created")
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) Delete(ctx context.Context, actorID, id string) error {
	actor, err := requireAdmin(ctx, s.store, actorID)
	if err != nil {
		return err
	}
	purge, err := s.store.DeleteRoom(ctx, id)
	if err != nil {
		return err
	}
	releaseFiles(ctx, s.files, s.logger, purge.Files)
	observability.MessagesDeleted().Add(float64(purge.Messages))
	s.logger.Info().Str("room_id", id).Str("admin_id", actor.ID).Int64("messages", purge.Messages).Msg("room deleted")
	return nil
}

func (s *roomService) OpenDM(ctx context.Context, actorID string, req dto.OpenDMRequest) (dto.DMResponse, error) {
	req.PeerID = strings.TrimSpace(req.PeerID)
	if err := s.validator.Struct(req); err != nil {
		return dto.DMResponse{}, err
	}
	if _, err := loadActor(ctx, s.store, actorID); err != nil {
		return dto.DMResponse{}, err
	}
	if req.PeerID == actorID {
		return dto.DMResponse{}, fmt.Errorf("cannot open a conversation with yourself: %w", ErrInvalidInput)
	}

	room, created, err := s.store.GetOrCreateDMRoom(ctx, actorID, req.PeerID)
	if err != nil {
		return dto.DMResponse{}, err
	}
	if created {
		s.logger.Info().Str("room_id", room.ID).Str("user_id", actorID).Str("peer_id", req.PeerID).Msg("dm room created")
	}
	return dto.DMResponse{Room: dto.NewRoomResponse(room), Created: created}, nil
}

func (s *roomService) ListDMs(ctx context.Context, actorID, userID string) ([]dto.RoomResponse, error) {
	if actorID != userID {
		if _, err := requireAdmin(ctx, s.store, actorID); err != nil {
			return nil, err
		}
	}
	rooms, err := s.store.ListDMRooms(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewRoomResponseSlice(rooms), nil
}

// requireMember allows participants of the room and admins.
func (s *roomService) requireMember(ctx context.Context, actorID, roomID string) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsDM {
		return fmt.Errorf("room %s is not a direct-message room: %w", roomID, repository.ErrInvalidState)
	}
	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin && !room.HasParticipant(actor.ID) {
		return fmt.Errorf("not a participant of room %s: %w", roomID, ErrForbidden)
	}
	return nil
}

func (s *roomService) AddParticipant(ctx context.Context, actorID, roomID string, req dto.AddParticipantRequest) (dto.RoomResponse, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := s.validator.Struct(req); err != nil {
		return dto.RoomResponse{}, err
	}
	if err := s.requireMember(ctx, actorID, roomID); err != nil {
		return dto.RoomResponse{}, err
	}

	room, err := s.store.AddDMParticipant(ctx, roomID, req.UserID)
	if err != nil {
		return dto.RoomResponse{}, err
	}
	s.logger.Info().Str("room_id", roomID).Str("user_id", req.UserID).Str("actor_id", actorID).Msg("participant added")
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) RemoveParticipant(ctx context.Context, actorID, roomID, userID string) (dto.RoomResponse, error) {
	if err := s.requireMember(ctx, actorID, roomID); err != nil {
		return dto.RoomResponse{}, err
	}

	room, err := s.store.RemoveDMParticipant(ctx, roomID, userID)
	if err != nil {
		return dto.RoomResponse{}, err
	}
	s.logger.Info().Str("room_id", roomID).Str("user_id", userID).Str("actor_id", actorID).Msg("participant removed")
	return dto.NewRoomResponse(room), nil
}
