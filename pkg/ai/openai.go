package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of AI generation requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of AI generation failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI generator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a new generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-chat-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIGenerator{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Generate sends the conversation to OpenAI and returns the reply text.
func (g *OpenAIGenerator) Generate(parent context.Context, input GenerationInput) (string, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("history", len(input.History)),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages:    buildMessages(input),
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		return "", g.fail(span, fmt.Errorf("openai generate: %w", err))
	}

	if len(resp.Choices) == 0 {
		return "", g.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", g.fail(span, fmt.Errorf("empty completion returned from openai"))
	}

	g.logger.Debug().
		Str("model", g.cfg.Model).
		Dur("duration", duration).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("generated bot reply")

	return content, nil
}

func (g *OpenAIGenerator) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func systemPrompt(input GenerationInput) string {
	name := input.BotName
	if name == "" {
		name = "the assistant"
	}
	builder := strings.Builder{}
	builder.WriteString("You are ")
	builder.WriteString(name)
	builder.WriteString(", a friendly helper inside a group chat")
	if input.RoomName != "" {
		builder.WriteString(" in the room \"")
		builder.WriteString(input.RoomName)
		builder.WriteString("\"")
	}
	builder.WriteString(". Keep answers short and conversational. Plain text only.")
	return builder.String()
}

func buildMessages(input GenerationInput) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(input.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(input),
	})

	for _, turn := range input.History {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		if turn.FromBot {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: turn.Content,
			})
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: turn.Author + ": " + turn.Content,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input.Prompt,
	})
	return messages
}
