package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/observability"
	"github.com/noah-isme/gema-chat-api/internal/presence"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

// MaxContentLength bounds message text in characters.
const MaxContentLength = 4000

const pollSchemaSource = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"required": ["question", "options"],
	"properties": {
		"question": {"type": "string", "minLength": 1, "maxLength": 300},
		"options": {
			"type": "array",
			"minItems": 2,
			"maxItems": 10,
			"items": {"type": "string", "minLength": 1, "maxLength": 300}
		}
	}
}`

var pollSchema = jsonschema.MustCompileString("poll.schema.json", pollSchemaSource)

// BotResponder reacts to freshly stored human messages.
type BotResponder interface {
	Respond(ctx context.Context, message models.Message)
}

// MessageService handles posting, editing and reading chat messages.
type MessageService interface {
	Post(ctx context.Context, actorID, roomID string, req dto.PostMessageRequest) (dto.MessageResponse, error)
	List(ctx context.Context, actorID, roomID string, query dto.MessageQuery) ([]dto.MessageResponse, error)
	Get(ctx context.Context, actorID, id string) (dto.MessageResponse, error)
	Edit(ctx context.Context, actorID, id string, req dto.EditMessageRequest) (dto.MessageResponse, error)
	Delete(ctx context.Context, actorID, id string) error
	Vote(ctx context.Context, actorID, id string, req dto.VoteRequest) (dto.MessageResponse, error)
}

// MessageServiceConfig tunes listings and bot dispatch.
type MessageServiceConfig struct {
	DefaultLimit int
	MaxLimit     int
	// Dispatch runs bot work off the request path. Defaults to a goroutine.
	Dispatch func(func())
}

// MessageDeps groups the collaborators of the message service. Every field
// except Store is optional.
type MessageDeps struct {
	Store  repository.Store
	Feed   FeedService
	Typing *presence.TypingStore
	Bot    BotResponder
	Files  FileStorage
}

type messageService struct {
	deps      MessageDeps
	cfg       MessageServiceConfig
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewMessageService constructs the message service.
func NewMessageService(deps MessageDeps, cfg MessageServiceConfig, validate *validator.Validate, logger zerolog.Logger) MessageService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = repository.DefaultMessageLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = repository.MaxMessageLimit
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = func(fn func()) { go fn() }
	}
	if validate == nil {
		validate = validator.New()
	}
	return &messageService{
		deps:      deps,
		cfg:       cfg,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "message_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-chat-api/internal/service/message"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// cleanContent sanitises text and enforces the length bound.
func (s *messageService) cleanContent(raw string) (string, error) {
	if utf8.RuneCountInString(raw) > MaxContentLength {
		return "", fmt.Errorf("content exceeds %d characters: %w", MaxContentLength, ErrInvalidInput)
	}
	return strings.TrimSpace(s.sanitizer.Sanitize(raw)), nil
}

// buildPoll validates the client poll and converts it into a tally with no votes.
func buildPoll(req *dto.PollRequest) (*models.Poll, error) {
	req.Question = strings.TrimSpace(req.Question)
	for i := range req.Options {
		req.Options[i] = strings.TrimSpace(req.Options[i])
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if err := pollSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("poll: %v: %w", err, ErrInvalidInput)
	}

	poll := &models.Poll{Question: req.Question, Options: make([]models.PollOption, 0, len(req.Options))}
	for _, option := range req.Options {
		poll.Options = append(poll.Options, models.PollOption{Text: option, Votes: []string{}})
	}
	return poll, nil
}

func (s *messageService) Post(ctx context.Context, actorID, roomID string, req dto.PostMessageRequest) (dto.MessageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "message.create", trace.WithAttributes(
		attribute.String("chat.room_id", roomID),
		attribute.String("chat.sender_id", actorID),
	))
	defer span.End()

	response, err := s.post(ctx, actorID, roomID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return dto.MessageResponse{}, err
	}
	span.SetAttributes(attribute.String("chat.type", response.Type), attribute.String("chat.message_id", response.ID))
	return response, nil
}

func (s *messageService) post(ctx context.Context, actorID, roomID string, req dto.PostMessageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, err
	}

	actor, err := loadActiveActor(ctx, s.deps.Store, actorID, s.now())
	if err != nil {
		return dto.MessageResponse{}, err
	}
	room, err := readableRoom(ctx, s.deps.Store, actor.ID, roomID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	input := repository.CreateMessageInput{
		RoomID:     room.ID,
		UserID:     actor.ID,
		Type:       req.Type,
		FileName:   req.FileName,
		FilePath:   req.FilePath,
		FileSize:   req.FileSize,
		GroupID:    req.GroupID,
		GroupIndex: req.GroupIndex,
		ReplyToID:  req.ReplyToID,
	}

	if req.Content != nil {
		clean, err := s.cleanContent(*req.Content)
		if err != nil {
			return dto.MessageResponse{}, err
		}
		if clean != "" {
			input.Content = &clean
		}
	}

	if req.Poll != nil {
		if input.Type != "" && input.Type != models.MessageTypePoll {
			return dto.MessageResponse{}, fmt.Errorf("poll payload on %s message: %w", input.Type, ErrInvalidInput)
		}
		poll, err := buildPoll(req.Poll)
		if err != nil {
			return dto.MessageResponse{}, err
		}
		input.Poll = poll
		input.Type = models.MessageTypePoll
	} else if input.Type == models.MessageTypePoll {
		return dto.MessageResponse{}, fmt.Errorf("poll message without poll payload: %w", ErrInvalidInput)
	}

	for _, attachment := range req.Attachments {
		input.Attachments = append(input.Attachments, models.Attachment{
			Name:     attachment.Name,
			Path:     attachment.Path,
			Size:     attachment.Size,
			MimeType: attachment.MimeType,
		})
	}

	if input.Content == nil && input.FilePath == nil && input.Poll == nil && len(input.Attachments) == 0 {
		return dto.MessageResponse{}, fmt.Errorf("message has no content: %w", ErrInvalidInput)
	}
	if input.Type == "" {
		input.Type = models.MessageTypeText
		if input.FilePath != nil && input.FileName != nil {
			input.Type = MessageTypeForMime(mimeFromName(*input.FileName))
		}
	}

	message, err := s.deps.Store.CreateMessage(ctx, input)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	observability.MessagesCreated().WithLabelValues(message.Type).Inc()
	if s.deps.Typing != nil {
		s.deps.Typing.Clear(actor.ID, room.ID)
	}

	response := dto.NewMessageResponse(message)
	s.publish(ctx, dto.FeedMessageCreated, message.RoomID, message.ID, &response)

	if s.deps.Bot != nil && message.UserID != s.deps.Store.BotID() {
		stored := message
		s.cfg.Dispatch(func() {
			s.deps.Bot.Respond(context.Background(), stored)
		})
	}

	s.logger.Debug().Str("message_id", message.ID).Str("room_id", room.ID).Str("type", message.Type).Msg("message stored")
	return response, nil
}

func (s *messageService) publish(ctx context.Context, kind, roomID, messageID string, message *dto.MessageResponse) {
	if s.deps.Feed == nil {
		return
	}
	s.deps.Feed.Publish(ctx, dto.FeedEvent{
		Type:      kind,
		RoomID:    roomID,
		MessageID: messageID,
		Message:   message,
		SentAt:    s.now(),
	})
}

func (s *messageService) List(ctx context.Context, actorID, roomID string, query dto.MessageQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}
	if _, err := readableRoom(ctx, s.deps.Store, actorID, roomID); err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	messages, err := s.deps.Store.ListRoomMessages(ctx, roomID, repository.MessageQuery{Limit: limit, Before: query.Before})
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

func (s *messageService) Get(ctx context.Context, actorID, id string) (dto.MessageResponse, error) {
	message, err := s.deps.Store.GetMessage(ctx, id)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if _, err := readableRoom(ctx, s.deps.Store, actorID, message.RoomID); err != nil {
		return dto.MessageResponse{}, err
	}
	return dto.NewMessageResponse(message), nil
}

func (s *messageService) Edit(ctx context.Context, actorID, id string, req dto.EditMessageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, err
	}
	actor, err := loadActiveActor(ctx, s.deps.Store, actorID, s.now())
	if err != nil {
		return dto.MessageResponse{}, err
	}
	message, err := s.deps.Store.GetMessage(ctx, id)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if message.UserID != actor.ID {
		return dto.MessageResponse{}, fmt.Errorf("only the author may edit message %s: %w", id, ErrForbidden)
	}

	clean, err := s.cleanContent(req.Content)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if clean == "" {
		return dto.MessageResponse{}, fmt.Errorf("content empty after sanitization: %w", ErrInvalidInput)
	}

	updated, err := s.deps.Store.UpdateMessageContent(ctx, id, clean, s.now())
	if err != nil {
		return dto.MessageResponse{}, err
	}
	response := dto.NewMessageResponse(updated)
	s.publish(ctx, dto.FeedMessageUpdated, updated.RoomID, updated.ID, &response)
	return response, nil
}

func (s *messageService) Delete(ctx context.Context, actorID, id string) error {
	actor, err := loadActor(ctx, s.deps.Store, actorID)
	if err != nil {
		return err
	}
	message, err := s.deps.Store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if message.UserID != actor.ID && !actor.IsAdmin {
		return fmt.Errorf("only the author or an admin may delete message %s: %w", id, ErrForbidden)
	}

	deleted, err := s.deps.Store.DeleteMessage(ctx, id)
	if err != nil {
		return err
	}
	observability.MessagesDeleted().Inc()
	s.removeFiles(ctx, deleted)
	s.publish(ctx, dto.FeedMessageDeleted, deleted.RoomID, deleted.ID, nil)

	s.logger.Info().Str("message_id", id).Str("actor_id", actor.ID).Msg("message deleted")
	return nil
}

// removeFiles drops stored uploads of a deleted message that no other
// message still references. Failures only log.
func (s *messageService) removeFiles(ctx context.Context, message models.Message) {
	if s.deps.Files == nil {
		return
	}
	var orphaned []string
	for _, path := range message.FilePaths() {
		referenced, err := s.deps.Store.FileReferenced(ctx, path)
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", message.ID).Str("path", path).Msg("failed to check file references")
			continue
		}
		if referenced {
			s.logger.Debug().Str("message_id", message.ID).Str("path", path).Msg("stored file still referenced")
			continue
		}
		orphaned = append(orphaned, path)
	}
	releaseFiles(ctx, s.deps.Files, s.logger.With().Str("message_id", message.ID).Logger(), orphaned)
}

func (s *messageService) Vote(ctx context.Context, actorID, id string, req dto.VoteRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, err
	}
	actor, err := loadActiveActor(ctx, s.deps.Store, actorID, s.now())
	if err != nil {
		return dto.MessageResponse{}, err
	}
	current, err := s.deps.Store.GetMessage(ctx, id)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if _, err := readableRoom(ctx, s.deps.Store, actor.ID, current.RoomID); err != nil {
		return dto.MessageResponse{}, err
	}

	option := *req.Option
	updated, err := s.deps.Store.UpdatePoll(ctx, id, func(poll *models.Poll) error {
		return applyVote(poll, actor.ID, option)
	})
	if err != nil {
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(updated)
	s.publish(ctx, dto.FeedMessageUpdated, updated.RoomID, updated.ID, &response)
	return response, nil
}

// applyVote moves userID's single vote to option. Repeating the current
// choice withdraws the vote.
func applyVote(poll *models.Poll, userID string, option int) error {
	if option < 0 || option >= len(poll.Options) {
		return fmt.Errorf("poll option %d out of range: %w", option, ErrInvalidInput)
	}

	hadChoice := false
	for i := range poll.Options {
		votes := poll.Options[i].Votes[:0]
		for _, voter := range poll.Options[i].Votes {
			if voter == userID {
				if i == option {
					hadChoice = true
				}
				continue
			}
			votes = append(votes, voter)
		}
		poll.Options[i].Votes = votes
	}

	if !hadChoice {
		poll.Options[option].Votes = append(poll.Options[option].Votes, userID)
	}
	return nil
}

func mimeFromName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case hasAnySuffix(lower, ".png", ".jpg", ".jpeg", ".webp", ".bmp"):
		return "image/*"
	case hasAnySuffix(lower, ".mp4", ".webm", ".mov", ".mkv"):
		return "video/*"
	case hasAnySuffix(lower, ".mp3", ".ogg", ".wav", ".m4a", ".opus"):
		return "audio/*"
	default:
		return "application/octet-stream"
	}
}

func hasAnySuffix(value string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(value, suffix) {
			return true
		}
	}
	return false
}
