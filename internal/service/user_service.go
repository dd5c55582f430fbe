package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/observability"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

const (
	presenceOnline  = "online"
	presenceOffline = "offline"
)

// UserService exposes user profile and presence operations.
type UserService interface {
	Register(ctx context.Context, req dto.CreateUserRequest) (dto.UserResponse, error)
	Get(ctx context.Context, id string) (dto.UserResponse, error)
	GetByUsername(ctx context.Context, username string) (dto.UserResponse, error)
	List(ctx context.Context) ([]dto.UserResponse, error)
	ListOnline(ctx context.Context) ([]dto.UserResponse, error)
	ListOffline(ctx context.Context) ([]dto.UserResponse, error)
	UpdateStatus(ctx context.Context, actorID, id string, req dto.UpdateStatusRequest) (dto.UserResponse, error)
	UpdateProfile(ctx context.Context, actorID, id string, req dto.UpdateProfileRequest) (dto.UserResponse, error)
	Heartbeat(ctx context.Context, actorID, id string) (dto.UserResponse, error)
	Ban(ctx context.Context, actorID, id string, req dto.BanRequest) (dto.UserResponse, error)
	Unban(ctx context.Context, actorID, id string) (dto.UserResponse, error)
	SetAdmin(ctx context.Context, actorID, id string, admin bool) (dto.UserResponse, error)
	BootstrapAdmin(ctx context.Context, actorID string) (dto.UserResponse, error)
	Delete(ctx context.Context, actorID, id string) error
}

// UserServiceConfig tunes presence listings.
type UserServiceConfig struct {
	OfflineAfter time.Duration
	CacheTTL     time.Duration
	CachePrefix  string
	// Files receives uploads orphaned by account deletion. Optional.
	Files FileStorage
}

type userService struct {
	store     repository.Store
	cache     *redis.Client
	cfg       UserServiceConfig
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewUserService constructs the user service. cache may be nil.
func NewUserService(store repository.Store, cache *redis.Client, cfg UserServiceConfig, validate *validator.Validate, logger zerolog.Logger) UserService {
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = repository.DefaultOfflineAfter
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Second
	}
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "gema"
	}
	if validate == nil {
		validate = validator.New()
	}
	return &userService{
		store:     store,
		cache:     cache,
		cfg:       cfg,
		validator: validate,
		logger:    logger.With().Str("component", "user_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *userService) respond(user models.User) dto.UserResponse {
	return dto.NewUserResponse(user, s.store.BotID())
}

func (s *userService) Register(ctx context.Context, req dto.CreateUserRequest) (dto.UserResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validator.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}
	if strings.ContainsAny(req.Username, " \t\n") {
		return dto.UserResponse{}, fmt.Errorf("username must not contain whitespace: %w", ErrInvalidInput)
	}

	user, err := s.store.CreateUser(ctx, repository.CreateUserInput{
		Username: req.Username,
		Avatar:   req.Avatar,
		Status:   models.UserStatusOnline,
	})
	if err != nil {
		return dto.UserResponse{}, err
	}

	s.invalidatePresence(ctx)
	s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return s.respond(user), nil
}

func (s *userService) Get(ctx context.Context, id string) (dto.UserResponse, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return dto.UserResponse{}, err
	}
	return s.respond(user), nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (dto.UserResponse, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return dto.UserResponse{}, err
	}
	return s.respond(user), nil
}

func (s *userService) List(ctx context.Context) ([]dto.UserResponse, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewUserResponseSlice(users, s.store.BotID()), nil
}

func (s *userService) ListOnline(ctx context.Context) ([]dto.UserResponse, error) {
	return s.cachedPresence(ctx, presenceOnline, s.store.ListOnlineUsers)
}

func (s *userService) ListOffline(ctx context.Context) ([]dto.UserResponse, error) {
	return s.cachedPresence(ctx, presenceOffline, s.store.ListOfflineUsers)
}

type presenceLoader func(ctx context.Context, now time.Time, staleAfter time.Duration) ([]models.User, error)

func (s *userService) presenceKey(kind string) string {
	return fmt.Sprintf("%s:presence:%s:v1", s.cfg.CachePrefix, kind)
}

func (s *userService) cachedPresence(ctx context.Context, kind string, load presenceLoader) ([]dto.UserResponse, error) {
	key := s.presenceKey(kind)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil && cached != "" {
			var users []dto.UserResponse
			if err := json.Unmarshal([]byte(cached), &users); err == nil {
				return users, nil
			}
		}
	}

	users, err := load(ctx, s.now(), s.cfg.OfflineAfter)
	if err != nil {
		return nil, err
	}
	response := dto.NewUserResponseSlice(users, s.store.BotID())

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache presence listing")
			}
		}
	}
	return response, nil
}

func (s *userService) invalidatePresence(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.presenceKey(presenceOnline), s.presenceKey(presenceOffline)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate presence cache")
	}
}

// requireSelfOrAdmin lets users manage their own profile and admins manage anyone.
func (s *userService) requireSelfOrAdmin(ctx context.Context, actorID, id string) error {
	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return err
	}
	if actor.ID != id && !actor.IsAdmin {
		return fmt.Errorf("cannot manage another user: %w", ErrForbidden)
	}
	return nil
}

func (s *userService) UpdateStatus(ctx context.Context, actorID, id string, req dto.UpdateStatusRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}
	if err := s.requireSelfOrAdmin(ctx, actorID, id); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.store.UpdateUserStatus(ctx, id, req.Status)
	if err != nil {
		return dto.UserResponse{}, err
	}
	s.invalidatePresence(ctx)
	return s.respond(user), nil
}

func (s *userService) UpdateProfile(ctx context.Context, actorID, id string, req dto.UpdateProfileRequest) (dto.UserResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validator.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}
	if strings.ContainsAny(req.Username, " \t\n") {
		return dto.UserResponse{}, fmt.Errorf("username must not contain whitespace: %w", ErrInvalidInput)
	}
	if err := s.requireSelfOrAdmin(ctx, actorID, id); err != nil {
		return dto.UserResponse{}, err
	}
	if id == s.store.BotID() {
		return dto.UserResponse{}, fmt.Errorf("bot profile is managed by configuration: %w", ErrForbidden)
	}

	user, err := s.store.UpdateUserProfile(ctx, id, req.Username, req.Avatar)
	if err != nil {
		return dto.UserResponse{}, err
	}
	s.invalidatePresence(ctx)
	return s.respond(user), nil
}

func (s *userService) Heartbeat(ctx context.Context, actorID, id string) (dto.UserResponse, error) {
	if actorID != id {
		return dto.UserResponse{}, fmt.Errorf("heartbeat must come from the user: %w", ErrForbidden)
	}

	before, err := s.store.GetUser(ctx, id)
	if err != nil {
		return dto.UserResponse{}, err
	}
	user, err := s.store.TouchUser(ctx, id, s.now())
	if err != nil {
		return dto.UserResponse{}, err
	}
	if before.Status != user.Status {
		s.invalidatePresence(ctx)
	}
	return s.respond(user), nil
}

func (s *userService) Ban(ctx context.Context, actorID, id string, req dto.BanRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}
	actor, err := requireAdmin(ctx, s.store, actorID)
	if err != nil {
		return dto.UserResponse{}, err
	}
	if id == actor.ID || id == s.store.BotID() {
		return dto.UserResponse{}, fmt.Errorf("cannot ban this account: %w", ErrForbidden)
	}

	until := models.PermanentBan
	switch {
	case req.Until != nil:
		until = req.Until.UTC()
		if !until.After(s.now()) {
			return dto.UserResponse{}, fmt.Errorf("ban end must be in the future: %w", ErrInvalidInput)
		}
	case req.Minutes > 0:
		until = s.now().Add(time.Duration(req.Minutes) * time.Minute)
	}

	user, err := s.store.SetUserBan(ctx, id, &until)
	if err != nil {
		return dto.UserResponse{}, err
	}
	s.invalidatePresence(ctx)
	s.logger.Info().
		Str("admin_id", actor.ID).
		Str("user_id", id).
		Time("until", until).
		Str("reason", req.Reason).
		Msg("user banned")
	return s.respond(user), nil
}

func (s *userService) Unban(ctx context.Context, actorID, id string) (dto.UserResponse, error) {
	actor, err := requireAdmin(ctx, s.store, actorID)
	if err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.store.SetUserBan(ctx, id, nil)
	if err != nil {
		return dto.UserResponse{}, err
	}
	s.invalidatePresence(ctx)
	s.logger.Info().Str("admin_id", actor.ID).Str("user_id", id).Msg("user unbanned")
	return s.respond(user), nil
}

func (s *userService) SetAdmin(ctx context.Context, actorID, id string, admin bool) (dto.UserResponse, error) {
	actor, err := requireAdmin(ctx, s.store, actorID)
	if err != nil {
		return dto.UserResponse{}, err
	}
	if id == s.store.BotID() {
		return dto.UserResponse{}, fmt.Errorf("bot admin rights are fixed: %w", ErrForbidden)
	}

	user, err := s.store.SetUserAdmin(ctx, id, admin)
	if err != nil {
		return dto.UserResponse{}, err
	}
	s.logger.Info().Str("admin_id", actor.ID).Str("user_id", id).Bool("admin", admin).Msg("admin flag changed")
	return s.respond(user), nil
}

// BootstrapAdmin promotes the caller when no human admin exists yet.
func (s *userService) BootstrapAdmin(ctx context.Context, actorID string) (dto.UserResponse, error) {
	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return dto.UserResponse{}, err
	}
	if actor.IsAdmin {
		return s.respond(actor), nil
	}

	admins, err := s.store.CountAdmins(ctx, s.store.BotID())
	if err != nil {
		return dto.UserResponse{}, err
	}
	if admins > 0 {
		return dto.UserResponse{}, fmt.Errorf("an admin already exists: %w", ErrForbidden)
	}

	user, err := s.store.SetUserAdmin(ctx, actor.ID, true)
	if err != nil {
		return dto.UserResponse{}, err
	}
	s.logger.Warn().Str("user_id", user.ID).Msg("bootstrap admin granted")
	return s.respond(user), nil
}

func (s *userService) Delete(ctx context.Context, actorID, id string) error {
	if actorID == "" || actorID != id {
		return fmt.Errorf("accounts can only be deleted by their owner: %w", ErrForbidden)
	}
	purge, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	releaseFiles(ctx, s.cfg.Files, s.logger, purge.Files)
	observability.MessagesDeleted().Add(float64(purge.Messages))
	s.invalidatePresence(ctx)
	s.logger.Info().Str("user_id", id).Int64("messages", purge.Messages).Msg("user deleted")
	return nil
}
