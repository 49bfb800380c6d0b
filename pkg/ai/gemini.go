package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
)

// GeminiConfig defines configuration options for the Gemini completer.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      zerolog.Logger
}

// GeminiCompleter implements Completer against the Google generative AI API.
type GeminiCompleter struct {
	client *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiCompleter dials the Gemini API. Close releases the underlying client.
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &GeminiCompleter{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-review-api/pkg/ai/gemini"),
		logger: logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// Name identifies the provider in call logs.
func (c *GeminiCompleter) Name() string { return "gemini" }

// Close releases the client connection.
func (c *GeminiCompleter) Close() error {
	return c.client.Close()
}

// Complete asks the model for a JSON answer to prompt.
func (c *GeminiCompleter) Complete(parent context.Context, prompt string) (string, error) {
	ctx, span := c.tracer.Start(parent, "gemini.complete", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	model := c.client.GenerativeModel(strings.TrimSpace(c.cfg.Model))
	temperature := c.cfg.Temperature
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	completionDuration.WithLabelValues(c.Name(), c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", c.fail(span, fmt.Errorf("gemini complete: %w", err))
	}

	text := strings.TrimSpace(firstText(resp))
	if text == "" {
		return "", c.fail(span, ErrEmptyCompletion)
	}
	return text, nil
}

func (c *GeminiCompleter) fail(span trace.Span, err error) error {
	completionFailures.WithLabelValues(c.Name(), c.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn().Err(err).Msg("gemini completion failed")
	return err
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				return string(text)
			}
		}
	}
	return ""
}
