package narrative_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rocklandcensus/internal/core"
	"rocklandcensus/internal/narrative"
)

func TestBuildPromptWithoutInstruction(t *testing.T) {
	got := narrative.BuildPrompt("a,b\n1,2", "   ")
	if !strings.Contains(got, "Here is the data in CSV format:\n\na,b\n1,2\nPlease provide") {
		t.Fatalf("unexpected prompt:\n%s", got)
	}
	if strings.Contains(got, "User request") {
		t.Fatalf("blank instruction must not add a section")
	}
}

func TestBuildPromptWithInstruction(t *testing.T) {
	got := narrative.BuildPrompt("x", "  focus on income  ")
	want := "x\n\n\nUser request:\nfocus on income\n\nIncorporate the user's request above while staying data-grounded.Please provide"
	if !strings.Contains(got, want) {
		t.Fatalf("instruction section missing:\n%s", got)
	}
	if !strings.HasPrefix(got, "You are an analytical assistant.") {
		t.Fatalf("unexpected preamble")
	}
}

func TestTrimInstructionTruncates(t *testing.T) {
	long := strings.Repeat("é", narrative.MaxInstructionRunes+50)
	got := narrative.TrimInstruction(long)
	if n := len([]rune(got)); n != narrative.MaxInstructionRunes {
		t.Fatalf("expected %d runes, got %d", narrative.MaxInstructionRunes, n)
	}
	if narrative.TrimInstruction(" short ") != "short" {
		t.Fatalf("expected trimmed instruction")
	}
}

func TestValidateTemperature(t *testing.T) {
	for _, v := range []float64{0, 0.85, 2} {
		if err := narrative.ValidateTemperature(v); err != nil {
			t.Fatalf("expected %v to be accepted: %v", v, err)
		}
	}
	for _, v := range []float64{-0.1, 2.5} {
		if err := narrative.ValidateTemperature(v); err == nil {
			t.Fatalf("expected %v to be rejected", v)
		}
	}
}

func TestOpenAIClientNarrate(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  summary text \n"}}]}`))
	}))
	defer srv.Close()

	client := narrative.NewOpenAIClient(narrative.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", HTTPClient: srv.Client()})
	got, err := client.Narrate(context.Background(), "prompt", 0.3)
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if got != "summary text" {
		t.Fatalf("unexpected summary %q", got)
	}
	if captured["model"] != narrative.DefaultOpenAIModel || captured["max_tokens"].(float64) != narrative.MaxOutputTokens {
		t.Fatalf("unexpected request: %v", captured)
	}
	if captured["temperature"].(float64) != 0.3 {
		t.Fatalf("temperature not forwarded: %v", captured["temperature"])
	}
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()
	client := narrative.NewOpenAIClient(narrative.OpenAIConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	got, err := client.Narrate(context.Background(), "p", 1)
	if err != nil || got != "" {
		t.Fatalf("expected empty summary, got %q %v", got, err)
	}
}

func TestOpenAIClientStatusError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	client := narrative.NewOpenAIClient(narrative.OpenAIConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := client.Narrate(context.Background(), "p", 1)
	var upstream *core.UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != http.StatusTooManyRequests || upstream.Source != narrative.SourceName {
		t.Fatalf("expected narrative upstream error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retries, got %d calls", calls)
	}
}

func TestGeminiClientNarrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":" gemini summary "}]}}]}`))
	}))
	defer srv.Close()

	client, err := narrative.NewGeminiClient(context.Background(), narrative.GeminiConfig{
		APIKey:     "g-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got, err := client.Narrate(context.Background(), "prompt", 0.5)
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if got != "gemini summary" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()
	if _, err := narrative.New(ctx, narrative.Config{}, nil, nil); !errors.Is(err, narrative.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	n, err := narrative.New(ctx, narrative.Config{OpenAIKey: "k"}, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := n.(*narrative.OpenAIClient); !ok {
		t.Fatalf("expected openai client, got %T", n)
	}
	if got := (narrative.Config{GeminiKey: "g"}).ResolvedProvider(); got != narrative.ProviderGemini {
		t.Fatalf("expected gemini provider, got %s", got)
	}
	if _, err := narrative.New(ctx, narrative.Config{Provider: "other", OpenAIKey: "k"}, nil, nil); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

type recordingNarrator struct {
	prompt      string
	temperature float64
}

func (r *recordingNarrator) Narrate(_ context.Context, prompt string, temperature float64) (string, error) {
	r.prompt = prompt
	r.temperature = temperature
	return "ok", nil
}

func TestSummarizeEmbedsDataset(t *testing.T) {
	rec := core.NewRecord("10952", "Monsey")
	rec.Set("MedianIncome", core.Number(71000))
	inner := &recordingNarrator{}
	tracer := core.NewJSONTracer(nil)
	n := narrative.Observed{Next: inner, Tracer: tracer, Metrics: core.NewExpvarMetricsRecorder("")}

	got, err := narrative.Summarize(context.Background(), n, core.Dataset{rec}, "compare towns", 1.2)
	if err != nil || got != "ok" {
		t.Fatalf("summarize: %q %v", got, err)
	}
	if !strings.Contains(inner.prompt, "ZipCode,TownName,MedianIncome\n10952,Monsey,71000\n") {
		t.Fatalf("dataset not embedded:\n%s", inner.prompt)
	}
	if !strings.Contains(inner.prompt, "User request:\ncompare towns") || inner.temperature != 1.2 {
		t.Fatalf("instruction or temperature lost")
	}
	if len(tracer.Entries()) != 1 {
		t.Fatalf("expected traced narration")
	}
}
