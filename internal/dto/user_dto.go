package dto

import (
	"time"

	"github.com/noah-isme/gema-chat-api/internal/models"
)

// CreateUserRequest registers a chat profile.
type CreateUserRequest struct {
	Username string  `json:"username" validate:"required,min=2,max=32,excludesall=@/"`
	Avatar   *string `json:"avatar" validate:"omitempty,url,max=512"`
}

// UpdateStatusRequest changes a user's presence status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=online away busy offline"`
}

// UpdateProfileRequest renames a user and optionally swaps the avatar.
type UpdateProfileRequest struct {
	Username string  `json:"username" validate:"required,min=2,max=32,excludesall=@/"`
	Avatar   *string `json:"avatar" validate:"omitempty,url,max=512"`
}

// BanRequest bans a user. Without Until or Minutes the ban is permanent.
type BanRequest struct {
	Until   *time.Time `json:"until"`
	Minutes int        `json:"minutes" validate:"omitempty,min=1,max=525600"`
	Reason  string     `json:"reason" validate:"omitempty,max=280"`
}

// SetAdminRequest grants or revokes admin rights.
type SetAdminRequest struct {
	Admin bool `json:"admin"`
}

// UserResponse is the public representation of a user.
type UserResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Avatar      *string    `json:"avatar,omitempty"`
	Status      string     `json:"status"`
	IsAdmin     bool       `json:"is_admin"`
	IsBot       bool       `json:"is_bot"`
	LastSeen    time.Time  `json:"last_seen"`
	BannedUntil *time.Time `json:"banned_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewUserResponse converts a model into a DTO.
func NewUserResponse(user models.User, botID string) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		Avatar:      user.Avatar,
		Status:      user.Status,
		IsAdmin:     user.IsAdmin,
		IsBot:       botID != "" && user.ID == botID,
		LastSeen:    user.LastSeen,
		BannedUntil: user.BannedUntil,
		CreatedAt:   user.CreatedAt,
	}
}

// NewUserResponseSlice converts a slice of users.
func NewUserResponseSlice(users []models.User, botID string) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, NewUserResponse(user, botID))
	}
	return out
}

// AuthorSummary is the compact author block embedded in messages.
type AuthorSummary struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar,omitempty"`
}
