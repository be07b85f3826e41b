package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"omnichannel-rag-platform/internal/config"
	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/models"
)

// GeminiClient implements Embedder and Generator on top of the Google
// Generative AI SDK. Both paths share one circuit breaker and one rate
// limiter so an outage on generation also sheds embedding traffic.
type GeminiClient struct {
	client          *genai.Client
	breaker         *gobreaker.CircuitBreaker
	rateLimiter     *rate.Limiter
	tokenCounter    *tokenCounter
	embeddingModel  string
	generationModel string
	dimensions      int
	embedRetries    int
	generateRetries int
}

var (
	_ Embedder  = (*GeminiClient)(nil)
	_ Generator = (*GeminiClient)(nil)
)

type tokenCounter struct {
	mu              sync.Mutex
	limits          rateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type rateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(cfg *config.Config) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(cfg.AITier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(limits.RPM/10, 1))

	return &GeminiClient{
		client:          client,
		breaker:         breaker,
		rateLimiter:     rateLimiter,
		tokenCounter:    &tokenCounter{limits: limits},
		embeddingModel:  cfg.GoogleEmbeddingsModel,
		generationModel: cfg.GenerationModel,
		dimensions:      cfg.VectorDimensions,
		embedRetries:    cfg.EmbedMaxRetries,
		generateRetries: cfg.GenerateMaxRetries,
	}, nil
}

func getRateLimits(tier string) rateLimits {
	switch tier {
	case "free":
		return rateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return rateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return rateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return rateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Dimensions reports the configured vector width. Vectors coming back from
// the provider are validated against it before they reach any index.
func (gc *GeminiClient) Dimensions() int {
	return gc.dimensions
}

// Embed returns an embedding for the text, retrying transient failures with
// exponential backoff. Exhausted retries and an open breaker both surface as
// ErrEmbeddingUnavailable so callers can fall back to sparse-only retrieval.
func (gc *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.embeddingModel),
		attribute.Int("gemini.text_length", len(text)),
	)

	var lastErr error
	for attempt := 0; attempt <= gc.embedRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, ctx.Err())
			case <-time.After(time.Duration(1<<(attempt-1)) * time.Second):
			}
		}

		vec, err := gc.embedOnce(ctx, text)
		if err == nil {
			span.SetAttributes(attribute.Int("gemini.vector_dimensions", len(vec)))
			return vec, nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			break
		}
		logger.Warn("Embedding attempt failed", "attempt", attempt+1, "error", err)
	}

	span.SetAttributes(attribute.Bool("gemini.error", true))
	return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, lastErr)
}

func (gc *GeminiClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.EmbeddingModel(gc.embeddingModel)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, errors.New("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// Generate answers the query grounded on the context chunks. Exhausted
// retries and an open breaker surface as ErrGenerationUnavailable; the
// orchestrator then returns a citation-only envelope instead of failing.
func (gc *GeminiClient) Generate(ctx context.Context, query string, contextChunks []string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	estimatedTokens := estimateTokens(query, contextChunks)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.Int("gemini.context_chunks", len(contextChunks)),
		attribute.String("gemini.model", gc.generationModel),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("%w: token budget exhausted", models.ErrGenerationUnavailable)
	}

	var lastErr error
	for attempt := 0; attempt <= gc.generateRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", models.ErrGenerationUnavailable, ctx.Err())
			case <-time.After(time.Duration(1<<(attempt-1)) * time.Second):
			}
		}

		text, err := gc.generateOnce(ctx, query, contextChunks, span)
		if err == nil {
			span.SetAttributes(attribute.Bool("gemini.success", true))
			return text, nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			break
		}
		logger.Warn("Generation attempt failed", "attempt", attempt+1, "error", err)
	}

	span.SetAttributes(attribute.Bool("gemini.error", true))
	return "", fmt.Errorf("%w: %v", models.ErrGenerationUnavailable, lastErr)
}

func (gc *GeminiClient) generateOnce(ctx context.Context, query string, contextChunks []string, span trace.Span) (string, error) {
	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.generationModel)
		model.SetTemperature(0.2)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(buildGroundedPrompt(query, contextChunks)))
		if err != nil {
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		gc.tokenCounter.RecordUsage(actualTokens, 1)
		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))

		text := extractText(resp)
		if text == "" {
			return nil, errors.New("empty generation response")
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (tc *tokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *tokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Rough estimation: 1 token ≈ 4 characters.
func estimateTokens(prompt string, chunks []string) int {
	total := len(prompt)
	for _, chunk := range chunks {
		total += len(chunk) + 1
	}
	return total / 4
}

func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	estimated := len(extractText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func extractText(resp *genai.GenerateContentResponse) string {
	text := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text
}

func buildGroundedPrompt(query string, contextChunks []string) string {
	if len(contextChunks) == 0 {
		return query
	}

	contextStr := ""
	for i, chunk := range contextChunks {
		contextStr += fmt.Sprintf("Context %d:\n%s\n\n", i+1, chunk)
	}

	return fmt.Sprintf("Answer the question using only the following context. If the context does not contain the answer, say so.\n\n%s\nQuestion: %s", contextStr, query)
}

func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
