package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/observability"
)

const (
	feedSendBufferSize = 32
	feedPingInterval   = 30 * time.Second
)

// FeedConnectionOptions wraps metadata extracted during the HTTP upgrade.
type FeedConnectionOptions struct {
	UserID        string
	RoomID        string
	CorrelationID string
}

// FeedService pushes room events to websocket subscribers and, when a broker
// is configured, to the other nodes of the deployment.
type FeedService interface {
	ServeConnection(conn *websocket.Conn, opts FeedConnectionOptions)
	Subscribe(roomID string) (<-chan dto.FeedEvent, func())
	Publish(ctx context.Context, event dto.FeedEvent)
	Start(ctx context.Context) error
}

type feedService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	hub          *feedHub
	nodeID       string
}

// feedHub keeps track of local subscribers per room.
type feedHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*feedSubscriber]struct{}
	log   zerolog.Logger
}

type feedSubscriber struct {
	roomID string
	send   chan dto.FeedEvent
	once   sync.Once
}

type feedEnvelope struct {
	Source string        `json:"source"`
	Event  dto.FeedEvent `json:"event"`
}

// NewFeedService creates the room feed. NATS takes precedence over Redis for
// cross-node fanout; with neither the feed is node-local.
func NewFeedService(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) FeedService {
	hub := &feedHub{
		rooms: make(map[string]map[*feedSubscriber]struct{}),
		log:   logger.With().Str("component", "feed_hub").Logger(),
	}

	redisChannel := ""
	natsSubject := ""
	if channelBase != "" {
		redisChannel = channelBase + ":room-events"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".room-events"
	}

	return &feedService{
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		logger:       logger.With().Str("component", "feed_service").Logger(),
		hub:          hub,
		nodeID:       uuid.NewString(),
	}
}

func (s *feedService) useNATS() bool {
	return s.nats != nil && s.natsSubject != ""
}

func (s *feedService) useRedis() bool {
	return !s.useNATS() && s.redis != nil && s.redisChannel != ""
}

// Start subscribes to the configured broker. The subscription is confirmed
// before Start returns.
func (s *feedService) Start(ctx context.Context) error {
	switch {
	case s.useNATS():
		return s.consumeNATS(ctx)
	case s.useRedis():
		return s.consumeRedis(ctx)
	default:
		return nil
	}
}

func (s *feedService) Subscribe(roomID string) (<-chan dto.FeedEvent, func()) {
	sub := &feedSubscriber{
		roomID: roomID,
		send:   make(chan dto.FeedEvent, feedSendBufferSize),
	}
	s.hub.register(sub)
	return sub.send, func() {
		sub.once.Do(func() {
			s.hub.unregister(sub)
		})
	}
}

func (s *feedService) ServeConnection(conn *websocket.Conn, opts FeedConnectionOptions) {
	events, cancel := s.Subscribe(opts.RoomID)
	observability.FeedConnections().Inc()
	logger := s.logger.With().
		Str("room_id", opts.RoomID).
		Str("user_id", opts.UserID).
		Str("correlation_id", opts.CorrelationID).
		Logger()

	defer func() {
		cancel()
		observability.FeedConnections().Dec()
		_ = conn.Close()
	}()

	// Clients never send meaningful frames; reading only detects close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logger.Debug().Err(err).Msg("feed read loop ended")
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("feed write loop terminated")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				logger.Debug().Err(err).Msg("feed ping failed")
				return
			}
		case <-closed:
			return
		}
	}
}

// Publish delivers the event locally and forwards it to other nodes.
// Broker failures are logged.
func (s *feedService) Publish(ctx context.Context, event dto.FeedEvent) {
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	s.hub.broadcast(event)

	if !s.useNATS() && !s.useRedis() {
		return
	}

	payload, err := json.Marshal(feedEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal feed event")
		return
	}

	if s.useNATS() {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish feed event to nats")
		}
		return
	}
	if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish feed event to redis")
	}
}

func (s *feedService) consumeRedis(ctx context.Context) error {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	go func() {
		defer func() {
			_ = pubsub.Close()
		}()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
					return
				}
				s.logger.Error().Err(err).Msg("feed redis subscription closed")
				return
			}
			s.handleEvent([]byte(msg.Payload))
		}
	}()
	return nil
}

func (s *feedService) consumeNATS(ctx context.Context) error {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		return err
	}
	if err := s.nats.Flush(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to flush feed nats subscription")
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain feed nats subscription")
		}
	}()
	return nil
}

func (s *feedService) handleEvent(data []byte) {
	var envelope feedEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid feed event")
		return
	}
	if envelope.Source == s.nodeID {
		return
	}
	s.hub.broadcast(envelope.Event)
}

func (h *feedHub) register(sub *feedSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.rooms[sub.roomID]; !exists {
		h.rooms[sub.roomID] = make(map[*feedSubscriber]struct{})
	}
	h.rooms[sub.roomID][sub] = struct{}{}
	h.log.Debug().Str("room_id", sub.roomID).Msg("feed subscriber connected")
}

func (h *feedHub) unregister(sub *feedSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[sub.roomID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.rooms, sub.roomID)
		}
	}
	close(sub.send)
	h.log.Debug().Str("room_id", sub.roomID).Msg("feed subscriber disconnected")
}

func (h *feedHub) broadcast(event dto.FeedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[event.RoomID] {
		select {
		case sub.send <- event:
		default:
			h.log.Warn().Str("room_id", event.RoomID).Msg("dropping feed event for slow subscriber")
		}
	}
}
