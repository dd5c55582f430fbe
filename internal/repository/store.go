package repository

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/gema-chat-api/internal/bootstrap"
	"github.com/noah-isme/gema-chat-api/internal/models"
)

var (
	// ErrNotFound indicates the referenced entity has no corresponding row.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateName indicates a username or public room name collision.
	ErrDuplicateName = errors.New("name already taken")
	// ErrInvalidReference indicates a write pointed at a missing room or user.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInvalidState indicates the operation would leave a room inconsistent.
	ErrInvalidState = errors.New("invalid state")
)

// Listing bounds shared by every backend.
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
	DefaultOfflineAfter = 5 * time.Minute
	DefaultBotUsername  = "GemaBot"
)

// Store is the persistence contract for users, rooms and messages.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// BotID returns the identifier of the bot account ensured at construction.
	BotID() string
}

// UserStore covers user profile persistence.
type UserStore interface {
	CreateUser(ctx context.Context, input CreateUserInput) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListOnlineUsers(ctx context.Context, now time.Time, staleAfter time.Duration) ([]models.User, error)
	ListOfflineUsers(ctx context.Context, now time.Time, staleAfter time.Duration) ([]models.User, error)
	UpdateUserStatus(ctx context.Context, id, status string) (models.User, error)
	UpdateUserProfile(ctx context.Context, id, username string, avatar *string) (models.User, error)
	TouchUser(ctx context.Context, id string, seenAt time.Time) (models.User, error)
	SetUserBan(ctx context.Context, id string, until *time.Time) (models.User, error)
	SetUserAdmin(ctx context.Context, id string, admin bool) (models.User, error)
	CountAdmins(ctx context.Context, excludeID string) (int64, error)
	DeleteUser(ctx context.Context, id string) (Purge, error)
}

// RoomStore covers public rooms and direct-message rooms.
type RoomStore interface {
	CreateRoom(ctx context.Context, input CreateRoomInput) (models.Room, error)
	GetRoom(ctx context.Context, id string) (models.Room, error)
	GetRoomByName(ctx context.Context, name string) (models.Room, error)
	ListPublicRooms(ctx context.Context) ([]models.RoomSummary, error)
	// IncrementMessageCount adjusts the cached counter directly. Message
	// writes already adjust it inside their own transaction; this is for
	// reconciliation only.
	IncrementMessageCount(ctx context.Context, roomID string, delta int64) error
	DeleteRoom(ctx context.Context, id string) (Purge, error)

	FindDMRoom(ctx context.Context, userA, userB string) (models.Room, error)
	GetOrCreateDMRoom(ctx context.Context, userA, userB string) (models.Room, bool, error)
	ListDMRooms(ctx context.Context, userID string) ([]models.Room, error)
	AddDMParticipant(ctx context.Context, roomID, userID string) (models.Room, error)
	RemoveDMParticipant(ctx context.Context, roomID, userID string) (models.Room, error)
}

// MessageStore covers message persistence.
type MessageStore interface {
	CreateMessage(ctx context.Context, input CreateMessageInput) (models.Message, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	ListRoomMessages(ctx context.Context, roomID string, query MessageQuery) ([]models.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) (models.Message, error)
	UpdatePoll(ctx context.Context, id string, mutate func(poll *models.Poll) error) (models.Message, error)
	DeleteMessage(ctx context.Context, id string) (models.Message, error)
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (Purge, error)
	// FileReferenced reports whether any stored message still points at path
	// through its file_path or its attachments.
	FileReferenced(ctx context.Context, path string) (bool, error)
}

// Purge reports what a cascading deletion removed. Files lists stored uploads
// that no remaining message references.
type Purge struct {
	Messages int64
	Files    []string
}

func (p *Purge) add(other Purge) {
	p.Messages += other.Messages
	p.Files = append(p.Files, other.Files...)
}

// Options configures store construction.
type Options struct {
	// Identity guards bot account creation. Stores sharing one database
	// should share one guard.
	Identity    *bootstrap.Guard
	BotUsername string
	BotAvatar   *string
	// Clock stamps created rows. Defaults to the wall clock in UTC.
	Clock func() time.Time
}

func (o Options) clock() func() time.Time {
	if o.Clock != nil {
		return func() time.Time { return o.Clock().UTC() }
	}
	return func() time.Time { return time.Now().UTC() }
}

// CreateUserInput describes a new user.
type CreateUserInput struct {
	Username string
	Avatar   *string
	Status   string
	IsAdmin  bool
}

// CreateRoomInput describes a new room.
type CreateRoomInput struct {
	Name         string
	Description  *string
	IsDM         bool
	Participants []string
}

// CreateMessageInput describes a new message.
type CreateMessageInput struct {
	RoomID      string
	UserID      string
	Content     *string
	Type        string
	FileName    *string
	FilePath    *string
	FileSize    *int64
	GroupID     *string
	GroupIndex  *int
	ReplyToID   *string
	Poll        *models.Poll
	Attachments []models.Attachment
}

// MessageQuery windows a room history listing.
type MessageQuery struct {
	Limit  int
	Before *time.Time
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		return MaxMessageLimit
	}
	return limit
}

func normalizeStaleAfter(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultOfflineAfter
	}
	return d
}

// filePaths collects the upload paths carried by messages.
func filePaths(messages []models.Message) []string {
	var paths []string
	for _, message := range messages {
		paths = append(paths, message.FilePaths()...)
	}
	return paths
}

func distinctIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// attachReplies resolves reply targets that are present in the same window.
// Resolution is one level deep.
func attachReplies(messages []models.Message) {
	index := make(map[string]int, len(messages))
	for i, message := range messages {
		index[message.ID] = i
	}
	for i := range messages {
		if messages[i].ReplyToID == nil {
			continue
		}
		pos, ok := index[*messages[i].ReplyToID]
		if !ok {
			continue
		}
		target := messages[pos]
		target.ReplyTo = nil
		messages[i].ReplyTo = &target
	}
}

func isOnline(user models.User, now time.Time, staleAfter time.Duration) bool {
	if user.Status != models.UserStatusOnline || user.IsBanned(now) {
		return false
	}
	return !user.LastSeen.Before(now.Add(-staleAfter))
}

func isOffline(user models.User, now time.Time, staleAfter time.Duration) bool {
	if user.IsBanned(now) {
		return false
	}
	if user.Status == models.UserStatusOffline {
		return true
	}
	return user.LastSeen.Before(now.Add(-staleAfter))
}
