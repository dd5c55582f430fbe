package dto

import (
	"time"

	"github.com/noah-isme/gema-chat-api/internal/models"
)

// CreateRoomRequest creates a public room.
type CreateRoomRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=64"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// OpenDMRequest resolves the direct-message room with a peer.
type OpenDMRequest struct {
	PeerID string `json:"peer_id" validate:"required,max=36"`
}

// AddParticipantRequest adds a member to a direct-message room.
type AddParticipantRequest struct {
	UserID string `json:"user_id" validate:"required,max=36"`
}

// RoomResponse is the public representation of a room.
type RoomResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	IsDM         bool      `json:"is_dm"`
	MessageCount int64     `json:"message_count"`
	Participants []string  `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DMResponse wraps a resolved direct-message room.
type DMResponse struct {
	Room    RoomResponse `json:"room"`
	Created bool         `json:"created"`
}

// NewRoomResponse converts a model into a DTO using the cached counter.
func NewRoomResponse(room models.Room) RoomResponse {
	response := RoomResponse{
		ID:           room.ID,
		Name:         room.Name,
		Description:  room.Description,
		IsDM:         room.IsDM,
		MessageCount: room.MessageCount,
		CreatedAt:    room.CreatedAt,
	}
	if room.IsDM {
		response.Participants = room.ParticipantIDs()
	}
	return response
}

// NewRoomSummaryResponse converts a listing row, reporting the live count.
func NewRoomSummaryResponse(summary models.RoomSummary) RoomResponse {
	response := NewRoomResponse(summary.Room)
	response.MessageCount = summary.LiveCount
	return response
}

// NewRoomResponseSlice converts a slice of rooms.
func NewRoomResponseSlice(rooms []models.Room) []RoomResponse {
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewRoomResponse(room))
	}
	return out
}
