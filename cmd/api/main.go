package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/bootstrap"
	"github.com/noah-isme/gema-chat-api/internal/config"
	"github.com/noah-isme/gema-chat-api/internal/database"
	"github.com/noah-isme/gema-chat-api/internal/handler"
	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/observability"
	"github.com/noah-isme/gema-chat-api/internal/presence"
	"github.com/noah-isme/gema-chat-api/internal/repository"
	"github.com/noah-isme/gema-chat-api/internal/router"
	"github.com/noah-isme/gema-chat-api/internal/service"
	"github.com/noah-isme/gema-chat-api/pkg/ai"
	cloud "github.com/noah-isme/gema-chat-api/pkg/cloudinary"
	"github.com/noah-isme/gema-chat-api/pkg/localstore"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("failed to open store")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	files, uploadDir, err := openFileStorage(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare file storage")
	}

	var generator ai.Generator
	if cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create ai generator")
		}
		generator = openAI
	} else {
		logger.Warn().Msg("openai api key not set, bot replies use the fallback text")
	}

	observability.RegisterMetrics()
	validate := validator.New(validator.WithRequiredStructEnabled())

	typing := presence.NewTypingStore(presence.Options{
		Freshness:     cfg.TypingFreshness,
		TTL:           cfg.TypingTTL,
		SweepInterval: cfg.TypingSweepInterval,
		OnSweep: func(remaining int) {
			observability.TypingEntries().Set(float64(remaining))
		},
	}, logger)

	feedService := service.NewFeedService(redisClient, natsConn, cfg.RealtimeChannel, logger)
	userService := service.NewUserService(store, redisClient, service.UserServiceConfig{
		OfflineAfter: cfg.OfflineAfter,
		CacheTTL:     cfg.PresenceCacheTTL,
		CachePrefix:  cfg.RealtimeChannel,
		Files:        files,
	}, validate, logger)
	roomService := service.NewRoomService(store, files, validate, logger)
	typingService := service.NewTypingService(store, typing, logger)
	botService := service.NewBotService(store, feedService, generator, service.BotServiceConfig{
		Name: cfg.BotUsername,
	}, logger)
	messageService := service.NewMessageService(service.MessageDeps{
		Store:  store,
		Feed:   feedService,
		Typing: typing,
		Bot:    botService,
		Files:  files,
	}, service.MessageServiceConfig{
		DefaultLimit: cfg.MessageDefaultLimit,
		MaxLimit:     cfg.MessageMaxLimit,
	}, validate, logger)
	retentionService := service.NewRetentionService(store, service.RetentionConfig{
		Horizon:  cfg.RetentionHorizon,
		Interval: cfg.RetentionInterval,
		Files:    files,
	}, logger)
	uploadService := service.NewUploadService(files, store, cfg.UploadMaxBytes(), logger)

	seeded, err := roomService.SeedDefaults(ctx, cfg.DefaultRooms)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed default rooms")
	}
	logger.Info().Int("created", seeded).Strs("rooms", cfg.DefaultRooms).Msg("default rooms ready")

	if err := feedService.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start room feed")
	}
	go typing.Run(ctx)
	retentionService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes()) + 1024*1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		UserHandler:    handler.NewUserHandler(userService, roomService, logger),
		RoomHandler:    handler.NewRoomHandler(roomService, logger),
		MessageHandler: handler.NewMessageHandler(messageService, logger),
		TypingHandler:  handler.NewTypingHandler(typingService, logger),
		FeedHandler:    handler.NewFeedHandler(feedService, roomService, logger),
		UploadHandler:  handler.NewUploadHandler(uploadService, logger),
		AdminHandler:   handler.NewAdminHandler(userService, retentionService, logger),
		UploadDir:      uploadDir,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, cancel, logger)
}

func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	opts := repository.Options{
		Identity:    bootstrap.NewGuard(),
		BotUsername: cfg.BotUsername,
	}
	if cfg.BotAvatar != "" {
		avatar := cfg.BotAvatar
		opts.BotAvatar = &avatar
	}

	if cfg.StorageBackend == config.BackendMemory {
		return repository.NewMemoryStore(ctx, opts)
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}
	return repository.NewGormStore(ctx, db, opts)
}

// openFileStorage prefers Cloudinary and falls back to the local upload
// directory, which is then served statically.
func openFileStorage(cfg config.Config, logger zerolog.Logger) (service.FileStorage, string, error) {
	if cfg.CloudinaryEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return uploader, "", nil
	}

	local, err := localstore.New(localstore.Config{Dir: cfg.UploadDir}, logger)
	if err != nil {
		return nil, "", err
	}
	return local, local.Dir(), nil
}

func waitForShutdown(app *fiber.App, stopBackground context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
