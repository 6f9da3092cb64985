// Package narrative turns a merged dataset into a language model summary.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rocklandcensus/internal/core"
)

const (
	// DefaultTemperature is used when the caller does not choose one.
	DefaultTemperature = 0.85
	// MinTemperature and MaxTemperature bound accepted sampling temperatures.
	MinTemperature = 0.0
	MaxTemperature = 2.0
	// MaxOutputTokens caps the generated summary.
	MaxOutputTokens = 1000
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// SourceName labels narrative failures.
const SourceName = "narrative"

// ErrNotConfigured is returned when no provider credentials are available.
var ErrNotConfigured = errors.New("narrative service not configured")

// Narrator produces free text for a prompt.
type Narrator interface {
	Narrate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider      string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiKey     string
	GeminiBaseURL string
	GeminiModel   string
}

// ResolvedProvider returns the provider New would build. An explicit provider
// wins; otherwise a Gemini key selects Gemini and anything else OpenAI.
func (c Config) ResolvedProvider() string {
	if c.Provider != "" {
		return c.Provider
	}
	if c.GeminiKey != "" && c.OpenAIKey == "" {
		return ProviderGemini
	}
	return ProviderOpenAI
}

// HasKey reports whether the resolved provider has credentials.
func (c Config) HasKey() bool {
	switch c.ResolvedProvider() {
	case ProviderGemini:
		return c.GeminiKey != ""
	default:
		return c.OpenAIKey != ""
	}
}

// New builds the narrator for cfg. It returns ErrNotConfigured when the
// resolved provider has no key.
func New(ctx context.Context, cfg Config, httpClient *http.Client, logger *zap.Logger) (Narrator, error) {
	if !cfg.HasKey() {
		return nil, ErrNotConfigured
	}
	switch cfg.ResolvedProvider() {
	case ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			HTTPClient: httpClient,
			Logger:     logger,
		}), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:     cfg.GeminiKey,
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown narrative provider %q", cfg.Provider)
	}
}

// ValidateTemperature checks t against the accepted range.
func ValidateTemperature(t float64) error {
	if t < MinTemperature || t > MaxTemperature {
		return fmt.Errorf("temperature must be between %g and %g", MinTemperature, MaxTemperature)
	}
	return nil
}

// Summarize serializes d, builds the prompt and asks n for a summary.
func Summarize(ctx context.Context, n Narrator, d core.Dataset, instruction string, temperature float64) (string, error) {
	csv, err := core.Serialize(d)
	if err != nil {
		return "", fmt.Errorf("serialize dataset: %w", err)
	}
	return n.Narrate(ctx, BuildPrompt(csv, instruction), temperature)
}

// Observed wraps a narrator with metrics and tracing.
type Observed struct {
	Next    Narrator
	Metrics core.MetricsRecorder
	Tracer  core.Tracer
}

// Narrate implements Narrator.
func (o Observed) Narrate(ctx context.Context, prompt string, temperature float64) (string, error) {
	var span core.TraceSpan
	if o.Tracer != nil {
		ctx, span = o.Tracer.Start(ctx, "narrative.generate")
	}
	started := time.Now()
	out, err := o.Next.Narrate(ctx, prompt, temperature)
	if o.Metrics != nil {
		o.Metrics.Observe(ctx, "narrative.generate", err == nil, time.Since(started))
	}
	if span != nil {
		span.End(err)
	}
	return out, err
}

func nopLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
