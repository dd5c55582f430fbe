package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendGorm   = "gorm"
)

// Config holds runtime configuration values for the chat service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	StorageBackend  string
	DatabaseDriver  string
	DatabaseURL     string
	RedisURL        string
	NATSURL         string
	RealtimeChannel string

	BotUsername  string
	BotAvatar    string
	AIModel      string
	OpenAIAPIKey string

	DefaultRooms []string

	TypingFreshness     time.Duration
	TypingTTL           time.Duration
	TypingSweepInterval time.Duration

	OfflineAfter     time.Duration
	PresenceCacheTTL time.Duration

	RetentionHorizon  time.Duration
	RetentionInterval time.Duration

	MessageDefaultLimit int
	MessageMaxLimit     int

	UploadDir   string
	UploadMaxMB int

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	RateLimitMessages int
	RateLimitWindow   time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether remote file storage is configured.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// UploadMaxBytes is the upload size ceiling in bytes.
func (c Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxMB) * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "GEMA Chat")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "file:gema-chat.db?cache=shared")
	v.SetDefault("realtime.channel", "gema")
	v.SetDefault("bot.username", "GemaBot")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("rooms.defaults", "general,random,help")
	v.SetDefault("typing.freshness", "5s")
	v.SetDefault("typing.ttl", "10s")
	v.SetDefault("typing.sweep_interval", "10s")
	v.SetDefault("presence.offline_after", "5m")
	v.SetDefault("presence.cache_ttl", "2s")
	v.SetDefault("retention.horizon", "24h")
	v.SetDefault("retention.interval", "24h")
	v.SetDefault("messages.default_limit", 50)
	v.SetDefault("messages.max_limit", 200)
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_mb", 25)
	v.SetDefault("cloudinary.folder", "gema/chat")
	v.SetDefault("rate_limit.messages", 20)
	v.SetDefault("rate_limit.window", "10s")
}

func load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("GEMACHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		StorageBackend:         strings.ToLower(strings.TrimSpace(v.GetString("storage.backend"))),
		DatabaseDriver:         strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeChannel:        v.GetString("realtime.channel"),
		BotUsername:            v.GetString("bot.username"),
		BotAvatar:              v.GetString("bot.avatar"),
		AIModel:                v.GetString("ai.model"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		DefaultRooms:           splitList(v.GetString("rooms.defaults")),
		MessageDefaultLimit:    v.GetInt("messages.default_limit"),
		MessageMaxLimit:        v.GetInt("messages.max_limit"),
		UploadDir:              v.GetString("upload.dir"),
		UploadMaxMB:            v.GetInt("upload.max_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		RateLimitMessages:      v.GetInt("rate_limit.messages"),
	}

	durations["typing.freshness"] = &cfg.TypingFreshness
	durations["typing.ttl"] = &cfg.TypingTTL
	durations["typing.sweep_interval"] = &cfg.TypingSweepInterval
	durations["presence.offline_after"] = &cfg.OfflineAfter
	durations["presence.cache_ttl"] = &cfg.PresenceCacheTTL
	durations["retention.horizon"] = &cfg.RetentionHorizon
	durations["retention.interval"] = &cfg.RetentionInterval
	durations["rate_limit.window"] = &cfg.RateLimitWindow

	for key, target := range durations {
		value, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if value <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		*target = value
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendGorm:
	default:
		return Config{}, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}

	if cfg.MessageDefaultLimit <= 0 {
		cfg.MessageDefaultLimit = 50
	}
	if cfg.MessageMaxLimit < cfg.MessageDefaultLimit {
		cfg.MessageMaxLimit = cfg.MessageDefaultLimit
	}
	if cfg.UploadMaxMB <= 0 {
		cfg.UploadMaxMB = 25
	}
	if cfg.RateLimitMessages <= 0 {
		cfg.RateLimitMessages = 20
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
