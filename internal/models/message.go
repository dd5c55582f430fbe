package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Known message types. The set is open; unknown values are stored as-is.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeVideo  = "video"
	MessageTypeFile   = "file"
	MessageTypeVoice  = "voice"
	MessageTypeGIF    = "gif"
	MessageTypePoll   = "poll"
	MessageTypeSystem = "system"
)

// Message is a single chat entry owned by one room and one author.
type Message struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	RoomID      string         `gorm:"size:36;not null;index:idx_messages_room_created,priority:1" json:"room_id"`
	UserID      string         `gorm:"size:36;not null;index" json:"user_id"`
	Content     *string        `gorm:"type:text" json:"content,omitempty"`
	Type        string         `gorm:"size:32;not null;default:text" json:"type"`
	FileName    *string        `gorm:"size:255" json:"file_name,omitempty"`
	FilePath    *string        `gorm:"size:512;index" json:"file_path,omitempty"`
	FileSize    *int64         `json:"file_size,omitempty"`
	GroupID     *string        `gorm:"size:64;index" json:"group_id,omitempty"`
	GroupIndex  *int           `json:"group_index,omitempty"`
	ReplyToID   *string        `gorm:"size:36;index" json:"reply_to_id,omitempty"`
	Poll        datatypes.JSON `json:"poll,omitempty"`
	Attachments datatypes.JSON `json:"attachments,omitempty"`
	CreatedAt   time.Time      `gorm:"index:idx_messages_room_created,priority:2;index" json:"created_at"`
	EditedAt    *time.Time     `json:"edited_at,omitempty"`

	Room *Room `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	User *User `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`

	// ReplyTo is resolved only when the target is inside the same query
	// window. Absence does not imply the target was deleted.
	ReplyTo *Message `gorm:"-" json:"reply_to,omitempty"`
}

// BeforeCreate assigns an identifier when one was not supplied.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Poll is the payload of a poll message.
type Poll struct {
	Question string       `json:"question"`
	Options  []PollOption `json:"options"`
}

// PollOption is one answer with the ids of the users that picked it.
type PollOption struct {
	Text  string   `json:"text"`
	Votes []string `json:"votes"`
}

// Attachment describes one stored file referenced by a message.
type Attachment struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// DecodePoll returns the poll payload, or nil when the message carries none.
func (m Message) DecodePoll() (*Poll, error) {
	if len(m.Poll) == 0 || string(m.Poll) == "null" {
		return nil, nil
	}
	var poll Poll
	if err := json.Unmarshal(m.Poll, &poll); err != nil {
		return nil, err
	}
	return &poll, nil
}

// EncodePoll stores poll as the message payload.
func (m *Message) EncodePoll(poll *Poll) error {
	if poll == nil {
		m.Poll = nil
		return nil
	}
	raw, err := json.Marshal(poll)
	if err != nil {
		return err
	}
	m.Poll = datatypes.JSON(raw)
	return nil
}

// DecodeAttachments returns the serialized attachment list.
func (m Message) DecodeAttachments() ([]Attachment, error) {
	if len(m.Attachments) == 0 || string(m.Attachments) == "null" {
		return nil, nil
	}
	var items []Attachment
	if err := json.Unmarshal(m.Attachments, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// EncodeAttachments stores items as the message attachment list. HTML
// characters stay unescaped so stored paths can be matched as text.
func (m *Message) EncodeAttachments(items []Attachment) error {
	if len(items) == 0 {
		m.Attachments = nil
		return nil
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(items); err != nil {
		return err
	}
	m.Attachments = datatypes.JSON(bytes.TrimSpace(buf.Bytes()))
	return nil
}

// FilePaths lists the upload paths the message carries.
func (m Message) FilePaths() []string {
	var paths []string
	if m.FilePath != nil && *m.FilePath != "" {
		paths = append(paths, *m.FilePath)
	}
	attachments, err := m.DecodeAttachments()
	if err != nil {
		return paths
	}
	for _, attachment := range attachments {
		if attachment.Path != "" {
			paths = append(paths, attachment.Path)
		}
	}
	return paths
}

// ReferencesFile reports whether the message carries path.
func (m Message) ReferencesFile(path string) bool {
	for _, candidate := range m.FilePaths() {
		if candidate == path {
			return true
		}
	}
	return false
}

// AttachmentPathPattern returns a LIKE pattern matching serialized attachment
// lists that may contain path. Matches are candidates only.
func AttachmentPathPattern(path string) string {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(path)
	quoted := strings.Trim(strings.TrimSpace(buf.String()), `"`)
	// Backslashes are escape characters in some dialects.
	return "%" + strings.ReplaceAll(quoted, `\`, "_") + "%"
}
