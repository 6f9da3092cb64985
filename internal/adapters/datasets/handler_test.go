package datasets_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rocklandcensus/internal/adapters/datasets"
	"rocklandcensus/internal/adapters/testutil"
	"rocklandcensus/internal/blob"
	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
	"rocklandcensus/internal/infra/persistence/memory"
	"rocklandcensus/internal/reports"
)

type fakeNarrator struct {
	mu          sync.Mutex
	prompts     []string
	temperature float64
	reply       string
	err         error
}

func (f *fakeNarrator) Narrate(_ context.Context, prompt string, temperature float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.temperature = temperature
	return f.reply, f.err
}

func newHandler(t *testing.T) (*datasets.Handler, *testutil.Sources) {
	t.Helper()
	src := testutil.NewSources()
	src.NoOccupation["10994"] = true
	h := datasets.NewHandler(geo.Rockland(), src.Builder())
	h.AllowedOrigins = []string{"http://localhost:5173", "https://census.example"}
	return h, src
}

func serve(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type zipDataResponse struct {
	Zips     []string                     `json:"zips"`
	Data     []map[string]json.RawMessage `json:"data"`
	Summary  string                       `json:"ai_summary"`
	ReportID string                       `json:"report_id"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthReportsConfiguration(t *testing.T) {
	h, _ := newHandler(t)
	h.CensusKeySet = true
	h.Narrator = &fakeNarrator{}
	h.NarrativeProvider = "openai"

	rec := serve(h, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	want := map[string]any{
		"status":             "ok",
		"census_key":         true,
		"narrative_key":      true,
		"openai_key":         true,
		"narrative_provider": "openai",
		"allowed_origins":    []any{"http://localhost:5173", "https://census.example"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestZipDataReturnsMergedRecordsInRequestOrder(t *testing.T) {
	h, _ := newHandler(t)

	rec := serve(h, http.MethodGet, "/api/zip-data?zips=10994,%2010901", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[zipDataResponse](t, rec)
	if diff := cmp.Diff([]string{"10994", "10901"}, resp.Zips); diff != "" {
		t.Fatalf("zips mismatch (-want +got):\n%s", diff)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected two records, got %d", len(resp.Data))
	}
	if string(resp.Data[0]["TownName"]) != `"West Nyack"` {
		t.Fatalf("unexpected town name %s", resp.Data[0]["TownName"])
	}
	if _, ok := resp.Data[0]["Occupation_Total"]; ok {
		t.Fatalf("occupation fields should be absent when the source has no row")
	}
	if string(resp.Data[1]["Total"]) != "12000" {
		t.Fatalf("expected race total, got %s", resp.Data[1]["Total"])
	}

	// Field order follows the merge order.
	body := rec.Body.String()
	if strings.Index(body, `"ZipCode"`) > strings.Index(body, `"MedianIncome"`) {
		t.Fatalf("identity fields should come first: %s", body)
	}
}

func TestZipDataDefaultsToEveryKey(t *testing.T) {
	h, _ := newHandler(t)
	rec := serve(h, http.MethodGet, "/api/zip-data", "", nil)
	resp := decode[zipDataResponse](t, rec)
	if len(resp.Zips) != geo.Rockland().Len() {
		t.Fatalf("expected all %d keys, got %d", geo.Rockland().Len(), len(resp.Zips))
	}
}

func TestZipDataRejectsUnknownKeyBeforeFetching(t *testing.T) {
	h, src := newHandler(t)
	rec := serve(h, http.MethodGet, "/api/zip-data?zips=10901,99999", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	msg := decode[map[string]string](t, rec)["error"]
	if !strings.Contains(msg, "ZIP 99999 is not allowed") || !strings.Contains(msg, "10901") {
		t.Fatalf("unexpected error message %q", msg)
	}
	if src.Calls() != 0 {
		t.Fatalf("no upstream call expected")
	}
}

func TestZipDataUpstreamFailure(t *testing.T) {
	h, src := newHandler(t)
	src.FailIncomeFor("10952")
	rec := serve(h, http.MethodGet, "/api/zip-data?zips=10901,10952", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := decode[map[string]string](t, rec)["error"]; !strings.Contains(msg, "income") {
		t.Fatalf("expected source in error, got %q", msg)
	}
}

func TestZipDataRouteDeadline(t *testing.T) {
	block := core.KeyFetcherFunc(func(ctx context.Context, _ core.GeoKey) (*core.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	race := core.BatchFetcherFunc(func(ctx context.Context, _ []core.GeoKey) ([]*core.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := datasets.NewHandler(geo.Rockland(), core.NewBuilder(geo.Rockland(), block, block, race))
	h.Timeouts.ZipData = 20 * time.Millisecond

	rec := serve(h, http.MethodGet, "/api/zip-data?zips=10901", "", nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestZipDataCSVDownloadUsesUnionHeader(t *testing.T) {
	h, _ := newHandler(t)
	rec := serve(h, http.MethodGet, "/api/zip-data?zips=10994,10901", "", map[string]string{"Accept": "text/csv"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Fatalf("expected attachment, got %q", cd)
	}
	rows, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	want := []string{"ZipCode", "TownName", "ZCTA_Name", "MedianIncome", "Total", "Occupation_Total"}
	if diff := cmp.Diff(want, rows[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][5] != "" || rows[2][5] != "5000" {
		t.Fatalf("unexpected occupation cells %q / %q", rows[1][5], rows[2][5])
	}

	rec = serve(h, http.MethodGet, "/api/zip-data?format=xml", "", nil)
	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("expected 406 for unknown format, got %d", rec.Code)
	}
}

func TestAIReportRequiresNarrativeKey(t *testing.T) {
	h, src := newHandler(t)
	h.NarrativeKeyName = "GEMINI_API_KEY"
	rec := serve(h, http.MethodPost, "/api/ai-report", `{"zips":["10901"]}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := decode[map[string]string](t, rec)["error"]; !strings.Contains(msg, "GEMINI_API_KEY") {
		t.Fatalf("unexpected message %q", msg)
	}
	if src.Calls() != 0 {
		t.Fatalf("no upstream call expected")
	}
}

func TestAIReportGeneratesSummary(t *testing.T) {
	h, _ := newHandler(t)
	narrator := &fakeNarrator{reply: "Rockland is diverse."}
	h.Narrator = narrator

	rec := serve(h, http.MethodPost, "/api/ai-report", `{"zips":"10901, 10952","user_prompt":"  focus on income  "}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[zipDataResponse](t, rec)
	if resp.Summary != "Rockland is diverse." || len(resp.Data) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.ReportID != "" {
		t.Fatalf("no archive configured, report id should be empty")
	}
	if narrator.temperature != 0.85 {
		t.Fatalf("expected default temperature, got %v", narrator.temperature)
	}
	prompt := narrator.prompts[0]
	if !strings.Contains(prompt, "ZipCode,TownName,ZCTA_Name") || !strings.Contains(prompt, "User request:\nfocus on income\n") {
		t.Fatalf("unexpected prompt:\n%s", prompt)
	}
}

func TestAIReportAcceptsZeroTemperature(t *testing.T) {
	h, _ := newHandler(t)
	narrator := &fakeNarrator{reply: "ok"}
	h.Narrator = narrator
	rec := serve(h, http.MethodPost, "/api/ai-report", `{"zips":["10901"],"temperature":0}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if narrator.temperature != 0 {
		t.Fatalf("explicit zero temperature should be kept, got %v", narrator.temperature)
	}
}

func TestAIReportRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"zips":`, "invalid report request payload"},
		{"wrong zips type", `{"zips":42}`, "zips must be"},
		{"unknown key", `{"zips":["10901","00000"]}`, "ZIP 00000 is not allowed"},
		{"temperature too high", `{"temperature":2.5}`, "temperature must be between"},
		{"temperature negative", `{"temperature":-0.1}`, "temperature must be between"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, src := newHandler(t)
			h.Narrator = &fakeNarrator{reply: "x"}
			rec := serve(h, http.MethodPost, "/api/ai-report", tc.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if msg := decode[map[string]string](t, rec)["error"]; !strings.Contains(msg, tc.want) {
				t.Fatalf("expected %q in %q", tc.want, msg)
			}
			if src.Calls() != 0 {
				t.Fatalf("no upstream call expected")
			}
		})
	}
}

func TestAIReportNarrativeFailure(t *testing.T) {
	h, _ := newHandler(t)
	h.Narrator = &fakeNarrator{err: &core.UpstreamError{Source: "narrative", Status: http.StatusTooManyRequests, Body: "slow down"}}
	rec := serve(h, http.MethodPost, "/api/ai-report", `{}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := decode[map[string]string](t, rec)["error"]; !strings.Contains(msg, "slow down") {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestAIReportArchivesNarrative(t *testing.T) {
	h, _ := newHandler(t)
	h.Narrator = &fakeNarrator{reply: "Archived summary."}
	h.NarrativeProvider = "openai"
	store := memory.NewStore()
	archiver := datasets.NewArchiver(store, blob.NewMemory(), nil, nil)
	archiver.Start()
	t.Cleanup(func() { _ = archiver.Stop(context.Background()) })
	h.Archive = archiver

	rec := serve(h, http.MethodPost, "/api/ai-report", `{"zips":["10960"],"user_prompt":"housing"}`, nil)
	resp := decode[zipDataResponse](t, rec)
	if resp.ReportID == "" {
		t.Fatalf("expected report id")
	}
	report := waitForStatus(t, store, resp.ReportID, reports.StatusSucceeded)
	if report.Instruction != "housing" || report.Provider != "openai" {
		t.Fatalf("unexpected report %+v", report)
	}

	rec = serve(h, http.MethodGet, "/api/reports/"+resp.ReportID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	detail := decode[struct {
		Report      reports.Report `json:"report"`
		Summary     string         `json:"summary"`
		DownloadURL string         `json:"download_url"`
	}](t, rec)
	if !strings.Contains(detail.Summary, "Archived summary.") {
		t.Fatalf("expected stored summary, got %q", detail.Summary)
	}
	if detail.DownloadURL != "" {
		t.Fatalf("memory blobs cannot sign urls")
	}

	rec = serve(h, http.MethodGet, "/api/reports?limit=5", "", nil)
	list := decode[struct {
		Reports []reports.Report `json:"reports"`
	}](t, rec)
	if len(list.Reports) != 1 || list.Reports[0].ID != resp.ReportID {
		t.Fatalf("unexpected list %+v", list.Reports)
	}

	if rec := serve(h, http.MethodGet, "/api/reports/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/api/reports?limit=-1", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestCORSNegotiation(t *testing.T) {
	h, _ := newHandler(t)
	cases := []struct {
		origin string
		want   string
	}{
		{"https://census.example", "https://census.example"},
		{"https://evil.example", "http://localhost:5173"},
		{"", "http://localhost:5173"},
	}
	for _, tc := range cases {
		rec := serve(h, http.MethodOptions, "/api/ai-report", "", map[string]string{"Origin": tc.origin})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.want {
			t.Fatalf("origin %q: got %q want %q", tc.origin, got, tc.want)
		}
		if rec.Header().Get("Access-Control-Max-Age") != "86400" {
			t.Fatalf("expected max age header")
		}
	}

	h.AllowedOrigins = nil
	rec := serve(h, http.MethodGet, "/api/health", "", map[string]string{"Origin": "https://any.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example" {
		t.Fatalf("expected echoed origin, got %q", got)
	}
	rec = serve(h, http.MethodGet, "/api/health", "", nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard, got %q", got)
	}
}

func TestRoutingErrors(t *testing.T) {
	h, _ := newHandler(t)
	if rec := serve(h, http.MethodGet, "/api/unknown", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/api/ai-report", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/api/reports", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("reports without archive should 404, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without handler should 404, got %d", rec.Code)
	}
	empty := &datasets.Handler{}
	if rec := serve(empty, http.MethodGet, "/api/health", "", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured handler should 500, got %d", rec.Code)
	}
}

func TestRequestsAreMetered(t *testing.T) {
	h, _ := newHandler(t)
	metrics := core.NewExpvarMetricsRecorder("")
	h.Metrics = metrics
	h.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})

	serve(h, http.MethodGet, "/api/zip-data?zips=10901", "", nil)
	serve(h, http.MethodGet, "/api/zip-data?zips=bogus", "", nil)
	if rec := serve(h, http.MethodGet, "/metrics", "", nil); rec.Body.String() != "# metrics" {
		t.Fatalf("expected metrics handler output")
	}

	counts := metrics.Snapshot().Results["http.zip_data"]
	if counts["success"] != 2 {
		t.Fatalf("client errors count as served requests, got %+v", counts)
	}
}

func waitForStatus(t *testing.T, store reports.Store, id string, want reports.Status) reports.Report {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, ok, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok && r.Status == want {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("report %s never reached %s", id, want)
	return reports.Report{}
}
