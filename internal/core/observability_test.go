package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"rocklandcensus/internal/core"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "source.income", true, 20*time.Millisecond)
	rec.Observe(ctx, "source.income", false, 30*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	got, err := promtest.GatherAndCount(reg, "rockland_operation_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected two counter series, got %d", got)
	}
	if _, err := core.NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "dataset.build", true, 1500*time.Microsecond)
	rec.Observe(context.Background(), "dataset.build", false, 500*time.Microsecond)

	snap := rec.Snapshot()
	if snap.DurationsMS["dataset.build"] != 2 {
		t.Fatalf("expected 2ms total, got %v", snap.DurationsMS["dataset.build"])
	}
	if snap.Results["dataset.build"]["success"] != 1 || snap.Results["dataset.build"]["error"] != 1 {
		t.Fatalf("unexpected results: %+v", snap.Results)
	}
	if expvar.Get(rec.Name()) == nil {
		t.Fatalf("expected recorder published as %s", rec.Name())
	}
}

func TestMultiRecorder(t *testing.T) {
	a := core.NewExpvarMetricsRecorder("")
	b := core.NewExpvarMetricsRecorder("")
	core.MultiRecorder{a, nil, b}.Observe(context.Background(), "op", true, time.Millisecond)
	if a.Snapshot().Results["op"]["success"] != 1 || b.Snapshot().Results["op"]["success"] != 1 {
		t.Fatalf("expected both recorders to observe")
	}
}

func TestJSONTraceTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := core.NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "narrative")
	span.End(errors.New("quota"))

	var entry core.JSONTraceEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if entry.Operation != "narrative" || entry.Status != "error" || entry.Error != "quota" {
		t.Fatalf("unexpected span: %+v", entry)
	}
	if len(tracer.Entries()) != 1 {
		t.Fatalf("expected retained span")
	}
}
