package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/metrics"
)

// DefaultOracleTimeout bounds one chat completion call.
const DefaultOracleTimeout = 20 * time.Second

// OracleConfig holds the chat completion provider settings.
type OracleConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// RatePerSec limits outgoing calls; zero disables limiting.
	RatePerSec float64
	Burst      int
	Logger     *zap.Logger
}

// Oracle is a reasoning model reached through the chat completions API.
type Oracle struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewOracle creates an OpenAI-compatible oracle.
func NewOracle(cfg *OracleConfig) *Oracle {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	o := &Oracle{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		logger:      log,
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return o
}

// Complete implements domain.Oracle. Request values override the configured
// temperature and token limit when set.
func (o *Oracle) Complete(ctx context.Context, req domain.OracleRequest) (domain.OracleResponse, error) {
	purpose := req.Purpose
	if purpose == "" {
		purpose = "unknown"
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			metrics.ProviderCall(metrics.ScopeOracle, o.model, purpose, metrics.OutcomeRateLimited, 0)
			return domain.OracleResponse{}, fmt.Errorf("oracle rate limit: %w: %w", domain.ErrOracleError, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	duration := time.Since(start)

	if err != nil {
		metrics.ProviderCall(metrics.ScopeOracle, o.model, purpose, metrics.OutcomeAPIError, duration)
		o.logger.Warn("Oracle request failed",
			zap.String("purpose", purpose),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.OracleResponse{}, parseAPIError("oracle", err, domain.ErrOracleError)
	}
	if len(resp.Choices) == 0 {
		metrics.ProviderCall(metrics.ScopeOracle, o.model, purpose, metrics.OutcomeEmptyResponse, duration)
		return domain.OracleResponse{}, errors.Join(errors.New("empty oracle response"), domain.ErrOracleError)
	}

	metrics.ProviderCall(metrics.ScopeOracle, o.model, purpose, metrics.OutcomeSuccess, duration)
	metrics.ProviderTokens(metrics.ScopeOracle, o.model, resp.Usage.PromptTokens, resp.Usage.TotalTokens)
	domain.UsageFromContext(ctx).AddOracle(resp.Usage.TotalTokens)

	o.logger.Debug("Oracle request completed",
		zap.String("purpose", purpose),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return domain.OracleResponse{
		Content:      resp.Choices[0].Message.Content,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability.
func (o *Oracle) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, o.client)
}
