// Package datasets exposes the census dataset and narrative report endpoints
// over HTTP.
package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"rocklandcensus/internal/blob"
	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
	"rocklandcensus/internal/narrative"
)

// Route timeouts used when Timeouts leaves a value unset.
const (
	DefaultHealthTimeout   = 5 * time.Second
	DefaultZipDataTimeout  = 60 * time.Second
	DefaultAIReportTimeout = 120 * time.Second
)

// defaultReportLimit bounds GET /api/reports without ?limit=.
const defaultReportLimit = 50

// DatasetBuilder produces a merged dataset for validated keys.
type DatasetBuilder interface {
	Build(ctx context.Context, keys []core.GeoKey) (core.Dataset, error)
}

// Timeouts bounds the work done by each route.
type Timeouts struct {
	Health   time.Duration
	ZipData  time.Duration
	AIReport time.Duration
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Handler serves the public API.
type Handler struct {
	Registry *geo.Registry
	Builder  DatasetBuilder

	// Narrator is nil when no provider key is configured; report requests then
	// fail before any upstream call.
	Narrator          narrative.Narrator
	NarrativeProvider string
	NarrativeKeyName  string
	CensusKeySet      bool

	Archive ReportArchive
	// ArtifactURLExpiry is the lifetime of signed report links. Zero uses the
	// blob default.
	ArtifactURLExpiry time.Duration
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
	Metrics        core.MetricsRecorder

	AllowedOrigins []string
	Timeouts       Timeouts
	Logger         *zap.Logger
}

// NewHandler constructs a handler over the registry and dataset builder.
func NewHandler(reg *geo.Registry, builder DatasetBuilder) *Handler {
	return &Handler{Registry: reg, Builder: builder}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.applyCORS(rec, r)

	route := h.route(rec, r)

	elapsed := time.Since(started)
	if h.Metrics != nil && route != "" {
		h.Metrics.Observe(r.Context(), "http."+route, rec.status < http.StatusInternalServerError, elapsed)
	}
	h.logger().Info("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", elapsed))
}

// route dispatches the request and returns a metrics label for it.
func (h *Handler) route(w http.ResponseWriter, r *http.Request) string {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return ""
	}
	if h.Registry == nil || h.Builder == nil {
		writeError(w, http.StatusInternalServerError, "dataset service not configured")
		return ""
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/health":
		if !allowMethod(w, r, http.MethodGet) {
			return ""
		}
		http.TimeoutHandler(http.HandlerFunc(h.handleHealth), orDefault(h.Timeouts.Health, DefaultHealthTimeout), "health check timed out").ServeHTTP(w, r)
		return "health"
	case path == "/api/zip-data":
		if !allowMethod(w, r, http.MethodGet) {
			return ""
		}
		h.handleZipData(w, r)
		return "zip_data"
	case path == "/api/ai-report":
		if !allowMethod(w, r, http.MethodPost) {
			return ""
		}
		h.handleAIReport(w, r)
		return "ai_report"
	case path == "/api/reports" || strings.HasPrefix(path, "/api/reports/"):
		if h.Archive == nil {
			http.NotFound(w, r)
			return ""
		}
		if !allowMethod(w, r, http.MethodGet) {
			return ""
		}
		h.handleReports(w, r, strings.TrimPrefix(strings.TrimPrefix(path, "/api/reports"), "/"))
		return "reports"
	case path == "/metrics" && h.MetricsHandler != nil:
		h.MetricsHandler.ServeHTTP(w, r)
		return ""
	default:
		http.NotFound(w, r)
		return ""
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", "+http.MethodOptions)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

type healthResponse struct {
	Status            string   `json:"status"`
	CensusKey         bool     `json:"census_key"`
	NarrativeKey      bool     `json:"narrative_key"`
	OpenAIKey         bool     `json:"openai_key"`
	NarrativeProvider string   `json:"narrative_provider"`
	AllowedOrigins    []string `json:"allowed_origins"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	origins := h.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		CensusKey:         h.CensusKeySet,
		NarrativeKey:      h.Narrator != nil,
		OpenAIKey:         h.Narrator != nil && h.NarrativeProvider == narrative.ProviderOpenAI,
		NarrativeProvider: h.NarrativeProvider,
		AllowedOrigins:    origins,
	})
}

type datasetResponse struct {
	Keys     []core.GeoKey `json:"zips"`
	Data     core.Dataset  `json:"data"`
	Summary  string        `json:"ai_summary,omitempty"`
	ReportID string        `json:"report_id,omitempty"`
}

func (h *Handler) handleZipData(w http.ResponseWriter, r *http.Request) {
	keys, err := core.ParseKeys(h.Registry, r.URL.Query().Get("zips"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	format := negotiateFormat(r)
	if format == "" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), orDefault(h.Timeouts.ZipData, DefaultZipDataTimeout))
	defer cancel()
	dataset, err := h.Builder.Build(ctx, keys)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if format == formatCSV {
		streamCSV(w, dataset)
		return
	}
	writeJSON(w, http.StatusOK, datasetResponse{Keys: keys, Data: nonNil(dataset)})
}

type aiReportRequest struct {
	Keys        json.RawMessage `json:"zips"`
	Temperature *float64        `json:"temperature"`
	Instruction string          `json:"user_prompt"`
}

func (h *Handler) handleAIReport(w http.ResponseWriter, r *http.Request) {
	if h.Narrator == nil {
		name := h.NarrativeKeyName
		if name == "" {
			name = "OPENAI_API_KEY"
		}
		writeError(w, http.StatusInternalServerError, "Missing required env var: "+name)
		return
	}

	var req aiReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid report request payload")
		return
	}
	rawKeys, err := decodeKeys(req.Keys)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keys, err := core.ValidateKeys(h.Registry, rawKeys)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	temperature := narrative.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if err := narrative.ValidateTemperature(temperature); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), orDefault(h.Timeouts.AIReport, DefaultAIReportTimeout))
	defer cancel()
	dataset, err := h.Builder.Build(ctx, keys)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	summary, err := narrative.Summarize(ctx, h.Narrator, dataset, req.Instruction, temperature)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	resp := datasetResponse{Keys: keys, Data: nonNil(dataset), Summary: summary}
	if h.Archive != nil && strings.TrimSpace(summary) != "" {
		report, err := h.Archive.Enqueue(r.Context(), ReportInput{
			Keys:        keyStrings(keys),
			Instruction: narrative.TrimInstruction(req.Instruction),
			Temperature: temperature,
			Provider:    h.NarrativeProvider,
			Summary:     summary,
		})
		if err != nil {
			h.logger().Warn("report archive enqueue failed", zap.Error(err))
		} else {
			resp.ReportID = report.ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeKeys accepts the zips field as a list, a comma-delimited string or
// null.
func decodeKeys(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return strings.Split(joined, core.KeyDelimiter), nil
	}
	return nil, errors.New("zips must be a list of strings or a comma-separated string")
}

type reportResponse struct {
	Report      any    `json:"report"`
	Summary     string `json:"summary,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

func (h *Handler) handleReports(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if id == "" {
		limit := defaultReportLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		list, err := h.Archive.List(ctx, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			writeJSON(w, http.StatusOK, map[string]any{"reports": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": list})
		return
	}
	if strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	report, ok, err := h.Archive.Get(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	resp := reportResponse{Report: report}
	if report.ArtifactKey != "" {
		summary, err := h.Archive.Artifact(ctx, report)
		if err != nil {
			h.logger().Warn("report artifact read failed", zap.String("report_id", id), zap.Error(err))
		}
		resp.Summary = summary
		url, err := h.Archive.ArtifactURL(ctx, report, h.ArtifactURLExpiry)
		if err != nil && !errors.Is(err, blob.ErrUnsupported) {
			h.logger().Warn("report artifact url failed", zap.String("report_id", id), zap.Error(err))
		}
		resp.DownloadURL = url
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeFailure maps domain errors onto status codes.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var invalid *core.InvalidKeyError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.logger().Warn("request timed out", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "upstream request timed out")
	default:
		h.logger().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// applyCORS echoes an allowed origin. An unknown origin gets the first
// allowed one; with no allow-list the request origin, or "*", is used.
func (h *Handler) applyCORS(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", negotiateOrigin(r.Header.Get("Origin"), h.AllowedOrigins))
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
	header.Set("Access-Control-Max-Age", "86400")
	header.Add("Vary", "Origin")
}

func negotiateOrigin(origin string, allowed []string) string {
	for _, candidate := range allowed {
		if candidate == "*" {
			if origin != "" {
				return origin
			}
			return "*"
		}
		if origin != "" && candidate == origin {
			return origin
		}
	}
	if len(allowed) > 0 {
		return allowed[0]
	}
	if origin != "" {
		return origin
	}
	return "*"
}

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

func negotiateFormat(r *http.Request) string {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		if strings.Contains(r.Header.Get("Accept"), "text/csv") {
			return formatCSV
		}
		return formatJSON
	}
	switch wanted {
	case formatJSON, formatCSV:
		return wanted
	}
	return ""
}

// streamCSV writes the dataset as an attachment whose header is the union of
// every record's fields.
func streamCSV(w http.ResponseWriter, d core.Dataset) {
	filename := fmt.Sprintf("rockland-zip-data-%s.csv", time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.WriteHeader(http.StatusOK)
	_ = core.WriteCSV(w, d, d.Columns())
}

func keyStrings(keys []core.GeoKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

func nonNil(d core.Dataset) core.Dataset {
	if d == nil {
		return core.Dataset{}
	}
	return d
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
