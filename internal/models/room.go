package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant limits for direct-message rooms.
const (
	MinDMParticipants = 2
	MaxDMParticipants = 4
)

// Room is a public channel or a direct-message room.
type Room struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:255;not null;index" json:"name"`
	PublicName   *string   `gorm:"size:255;uniqueIndex" json:"-"`
	Description  *string   `gorm:"type:text" json:"description,omitempty"`
	MessageCount int64     `gorm:"not null;default:0" json:"message_count"`
	IsDM         bool      `gorm:"not null;default:false;index" json:"is_dm"`
	DMKey        *string   `gorm:"size:191;uniqueIndex" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Participants []RoomParticipant `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// RoomParticipant links a user to a direct-message room.
type RoomParticipant struct {
	RoomID    string    `gorm:"primaryKey;size:36" json:"room_id"`
	UserID    string    `gorm:"primaryKey;size:36;index" json:"user_id"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns an identifier when one was not supplied.
func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ParticipantIDs returns the participant identifiers in join order.
func (r Room) ParticipantIDs() []string {
	participants := append([]RoomParticipant(nil), r.Participants...)
	sort.SliceStable(participants, func(i, j int) bool {
		return participants[i].Position < participants[j].Position
	})
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasParticipant reports whether userID is a member of the room.
func (r Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// DMKey builds the canonical identity of an unordered participant set.
func DMKey(userIDs ...string) string {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// RoomSummary is a public room annotated with its live message count.
type RoomSummary struct {
	Room
	LiveCount int64 `json:"live_count"`
}
