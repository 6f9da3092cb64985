package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"rocklandcensus/internal/core"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures GeminiClient.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// GeminiClient generates summaries with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiClient creates the SDK client. BaseURL overrides the API endpoint.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model, logger: nopLogger(cfg.Logger)}, nil
}

// Narrate implements Narrator. SDK failures are reported as upstream errors.
func (g *GeminiClient) Narrate(ctx context.Context, prompt string, temperature float64) (string, error) {
	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(temperature)),
			MaxOutputTokens: MaxOutputTokens,
		})
	if err != nil {
		upstream := &core.UpstreamError{Source: SourceName, Err: err}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			upstream.Status = apiErr.Code
			upstream.Body = apiErr.Message
		}
		return "", upstream
	}
	g.logger.Debug("gemini completion",
		zap.String("model", g.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Duration("elapsed", time.Since(started)))
	return strings.TrimSpace(resp.Text()), nil
}
