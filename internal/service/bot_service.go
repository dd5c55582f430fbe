package service

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/observability"
	"github.com/noah-isme/gema-chat-api/internal/repository"
	"github.com/noah-isme/gema-chat-api/pkg/ai"
)

const (
	botHistoryWindow = 10
	defaultDieSides  = 6
	minDieSides      = 2
	maxDieSides      = 1000
)

const botHelpText = "Commands: /help, /ping, /roll [sides], /flip, /time, /ask <question>. " +
	"You can also mention me or message me directly."

// BotService answers commands, mentions and direct messages as the bot user.
type BotService interface {
	BotResponder
	// Reply computes the bot answer for a message without storing it. The
	// second result is false when the message does not address the bot.
	Reply(ctx context.Context, message models.Message) (string, bool)
}

// BotServiceConfig configures the bot persona.
type BotServiceConfig struct {
	Name string
	// Roll returns a value in [0, n). Defaults to math/rand.
	Roll func(n int) int
	Now  func() time.Time
}

type botService struct {
	store     repository.Store
	feed      FeedService
	generator ai.Generator
	cfg       BotServiceConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
	rngMu     sync.Mutex
}

// NewBotService constructs the bot. generator and feed may be nil.
func NewBotService(store repository.Store, feed FeedService, generator ai.Generator, cfg BotServiceConfig, logger zerolog.Logger) BotService {
	if cfg.Name == "" {
		cfg.Name = repository.DefaultBotUsername
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	svc := &botService{
		store:     store,
		feed:      feed,
		generator: generator,
		cfg:       cfg,
		logger:    logger.With().Str("component", "bot_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-chat-api/internal/service/bot"),
	}
	if svc.cfg.Roll == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		svc.cfg.Roll = func(n int) int {
			svc.rngMu.Lock()
			defer svc.rngMu.Unlock()
			return rng.Intn(n)
		}
	}
	return svc
}

// Respond stores the bot reply for message, if any. Errors are logged.
func (s *botService) Respond(ctx context.Context, message models.Message) {
	if message.UserID == s.store.BotID() {
		return
	}

	ctx, span := s.tracer.Start(ctx, "bot.reply", trace.WithAttributes(
		attribute.String("chat.room_id", message.RoomID),
		attribute.String("chat.message_id", message.ID),
	))
	defer span.End()

	text, ok := s.Reply(ctx, message)
	if !ok {
		return
	}

	content := text
	reply, err := s.store.CreateMessage(ctx, repository.CreateMessageInput{
		RoomID:  message.RoomID,
		UserID:  s.store.BotID(),
		Content: &content,
		Type:    models.MessageTypeText,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		s.logger.Error().Err(err).Str("room_id", message.RoomID).Msg("failed to store bot reply")
		return
	}

	observability.MessagesCreated().WithLabelValues(reply.Type).Inc()
	if s.feed != nil {
		response := dto.NewMessageResponse(reply)
		s.feed.Publish(ctx, dto.FeedEvent{
			Type:      dto.FeedMessageCreated,
			RoomID:    reply.RoomID,
			MessageID: reply.ID,
			Message:   &response,
			SentAt:    s.cfg.Now(),
		})
	}
}

func (s *botService) Reply(ctx context.Context, message models.Message) (string, bool) {
	if message.UserID == s.store.BotID() || message.Content == nil {
		return "", false
	}
	content := strings.TrimSpace(*message.Content)
	if content == "" {
		return "", false
	}

	if strings.HasPrefix(content, "/") {
		command, args := splitCommand(content)
		reply := s.runCommand(ctx, message, command, args)
		return reply, true
	}

	mention := "@" + strings.ToLower(s.cfg.Name)
	if strings.Contains(strings.ToLower(content), mention) {
		observability.BotReplies().WithLabelValues("mention").Inc()
		return s.generate(ctx, message, stripMention(content, s.cfg.Name)), true
	}

	room, err := s.store.GetRoom(ctx, message.RoomID)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", message.RoomID).Msg("bot could not load room")
		return "", false
	}
	if room.IsDM && room.HasParticipant(s.store.BotID()) {
		observability.BotReplies().WithLabelValues("dm").Inc()
		return s.generate(ctx, message, content), true
	}
	return "", false
}

func (s *botService) runCommand(ctx context.Context, message models.Message, command, args string) string {
	label := command
	var reply string

	switch command {
	case "help":
		reply = botHelpText
	case "ping":
		reply = "pong"
	case "roll":
		reply = s.roll(args)
	case "flip":
		if s.cfg.Roll(2) == 0 {
			reply = "heads"
		} else {
			reply = "tails"
		}
	case "time":
		reply = s.cfg.Now().UTC().Format(time.RFC3339)
	case "ask":
		if args == "" {
			reply = "Usage: /ask <question>"
		} else {
			reply = s.generate(ctx, message, args)
		}
	default:
		label = "unknown"
		reply = fmt.Sprintf("Unknown command /%s. Type /help to see what I can do.", command)
	}

	observability.BotReplies().WithLabelValues(label).Inc()
	return reply
}

func (s *botService) roll(args string) string {
	sides := defaultDieSides
	if args != "" {
		parsed, err := strconv.Atoi(strings.Fields(args)[0])
		if err != nil || parsed < minDieSides || parsed > maxDieSides {
			return fmt.Sprintf("Usage: /roll [sides] with sides between %d and %d", minDieSides, maxDieSides)
		}
		sides = parsed
	}
	return fmt.Sprintf("rolled %d (d%d)", s.cfg.Roll(sides)+1, sides)
}

// generate asks the model for a reply. Any failure yields the fallback text.
func (s *botService) generate(ctx context.Context, message models.Message, prompt string) string {
	if s.generator == nil {
		return ai.FallbackReply
	}

	input := ai.GenerationInput{
		BotName: s.cfg.Name,
		Prompt:  prompt,
		History: s.history(ctx, message),
	}
	if room, err := s.store.GetRoom(ctx, message.RoomID); err == nil {
		input.RoomName = room.Name
	}

	text, err := s.generator.Generate(ctx, input)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", message.RoomID).Msg("generation failed, using fallback")
		return ai.FallbackReply
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ai.FallbackReply
	}
	if len([]rune(text)) > MaxContentLength {
		text = string([]rune(text)[:MaxContentLength])
	}
	return text
}

func (s *botService) history(ctx context.Context, message models.Message) []ai.Turn {
	messages, err := s.store.ListRoomMessages(ctx, message.RoomID, repository.MessageQuery{Limit: botHistoryWindow + 1})
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", message.RoomID).Msg("failed to load bot context")
		return nil
	}

	turns := make([]ai.Turn, 0, len(messages))
	for _, item := range messages {
		if item.ID == message.ID || item.Content == nil {
			continue
		}
		author := item.UserID
		if item.User != nil {
			author = item.User.Username
		}
		turns = append(turns, ai.Turn{
			Author:  author,
			Content: *item.Content,
			FromBot: item.UserID == s.store.BotID(),
		})
	}
	if len(turns) > botHistoryWindow {
		turns = turns[len(turns)-botHistoryWindow:]
	}
	return turns
}

func splitCommand(content string) (string, string) {
	trimmed := strings.TrimPrefix(content, "/")
	command, args, _ := strings.Cut(trimmed, " ")
	return strings.ToLower(strings.TrimSpace(command)), strings.TrimSpace(args)
}

func stripMention(content, name string) string {
	mention := "@" + strings.ToLower(name)
	lower := strings.ToLower(content)
	idx := strings.Index(lower, mention)
	if idx < 0 || len(lower) != len(content) {
		return content
	}
	stripped := strings.Join(strings.Fields(content[:idx]+" "+content[idx+len(mention):]), " ")
	if stripped == "" {
		return content
	}
	return stripped
}
