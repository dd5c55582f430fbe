package dto

import (
	"time"

	"github.com/noah-isme/gema-chat-api/internal/models"
)

// PollRequest is the client form of a poll: a question and option labels.
type PollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// AttachmentRequest references one already-uploaded file.
type AttachmentRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Path     string `json:"path" validate:"required,max=512"`
	Size     int64  `json:"size" validate:"min=0"`
	MimeType string `json:"mime_type" validate:"omitempty,max=128"`
}

// PostMessageRequest is the payload for a new message.
type PostMessageRequest struct {
	Content     *string             `json:"content"`
	Type        string              `json:"type" validate:"omitempty,oneof=text image video file voice gif poll"`
	FileName    *string             `json:"file_name" validate:"omitempty,max=255"`
	FilePath    *string             `json:"file_path" validate:"omitempty,max=512"`
	FileSize    *int64              `json:"file_size" validate:"omitempty,min=0"`
	GroupID     *string             `json:"group_id" validate:"omitempty,max=64"`
	GroupIndex  *int                `json:"group_index" validate:"omitempty,min=0"`
	ReplyToID   *string             `json:"reply_to_id" validate:"omitempty,max=36"`
	Poll        *PollRequest        `json:"poll"`
	Attachments []AttachmentRequest `json:"attachments" validate:"omitempty,max=10,dive"`
}

// EditMessageRequest replaces a message's text.
type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// VoteRequest casts or withdraws a poll vote.
type VoteRequest struct {
	Option *int `json:"option" validate:"required,min=0"`
}

// MessageQuery windows a room history request.
type MessageQuery struct {
	Limit  int        `query:"limit" validate:"omitempty,min=1"`
	Before *time.Time `query:"before"`
}

// MessageResponse is the serialized representation of a chat message.
type MessageResponse struct {
	ID          string              `json:"id"`
	RoomID      string              `json:"room_id"`
	UserID      string              `json:"user_id"`
	Author      *AuthorSummary      `json:"author,omitempty"`
	Content     *string             `json:"content,omitempty"`
	Type        string              `json:"type"`
	FileName    *string             `json:"file_name,omitempty"`
	FilePath    *string             `json:"file_path,omitempty"`
	FileSize    *int64              `json:"file_size,omitempty"`
	GroupID     *string             `json:"group_id,omitempty"`
	GroupIndex  *int                `json:"group_index,omitempty"`
	ReplyToID   *string             `json:"reply_to_id,omitempty"`
	ReplyTo     *MessageResponse    `json:"reply_to,omitempty"`
	Poll        *models.Poll        `json:"poll,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	EditedAt    *time.Time          `json:"edited_at,omitempty"`
}

// NewMessageResponse converts a model into a DTO. Undecodable JSON payloads
// are omitted rather than failing the whole listing.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:         message.ID,
		RoomID:     message.RoomID,
		UserID:     message.UserID,
		Content:    message.Content,
		Type:       message.Type,
		FileName:   message.FileName,
		FilePath:   message.FilePath,
		FileSize:   message.FileSize,
		GroupID:    message.GroupID,
		GroupIndex: message.GroupIndex,
		ReplyToID:  message.ReplyToID,
		CreatedAt:  message.CreatedAt,
		EditedAt:   message.EditedAt,
	}
	if message.User != nil {
		response.Author = &AuthorSummary{
			ID:       message.User.ID,
			Username: message.User.Username,
			Avatar:   message.User.Avatar,
		}
	}
	if poll, err := message.DecodePoll(); err == nil {
		response.Poll = poll
	}
	if attachments, err := message.DecodeAttachments(); err == nil {
		response.Attachments = attachments
	}
	if message.ReplyTo != nil {
		reply := NewMessageResponse(*message.ReplyTo)
		response.ReplyTo = &reply
	}
	return response
}

// NewMessageResponseSlice converts a slice of messages.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// UploadResponse describes a stored file ready to be referenced by a message.
type UploadResponse struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Type     string `json:"type"`
}

// SweepResponse reports an on-demand retention run.
type SweepResponse struct {
	Removed int64 `json:"removed"`
}

// Feed event kinds.
const (
	FeedMessageCreated = "message.created"
	FeedMessageUpdated = "message.updated"
	FeedMessageDeleted = "message.deleted"
)

// FeedEvent is pushed to realtime room subscribers.
type FeedEvent struct {
	Type      string           `json:"type"`
	RoomID    string           `json:"room_id"`
	MessageID string           `json:"message_id"`
	Message   *MessageResponse `json:"message,omitempty"`
	SentAt    time.Time        `json:"sent_at"`
}
