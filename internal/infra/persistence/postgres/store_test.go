package postgres_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"rocklandcensus/internal/infra/persistence/postgres"
	"rocklandcensus/internal/infra/persistence/postgres/testutil"
	"rocklandcensus/internal/reports"
)

func TestStoreCreatesSchemaAndUpserts(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := postgres.NewStore(ctx, "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS reports") && strings.Contains(stmt, "JSONB") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected reports DDL, got %v", conn.Execs)
	}

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, status := range []reports.Status{reports.StatusQueued, reports.StatusSucceeded} {
		if err := store.Save(ctx, reports.Report{ID: "r-1", Status: status, Keys: []string{"10901"}, CreatedAt: now}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if n := len(conn.Tables["reports"]); n != 1 {
		t.Fatalf("expected one persisted row, got %d", n)
	}
	got, ok, err := store.Get(ctx, "r-1")
	if err != nil || !ok || got.Status != reports.StatusSucceeded {
		t.Fatalf("unexpected report %+v %v %v", got, ok, err)
	}
}

func TestStoreLoadsExistingRows(t *testing.T) {
	ctx := context.Background()
	db, _ := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	first, err := postgres.NewStore(ctx, "postgres://example")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := first.Save(ctx, reports.Report{ID: "old", Status: reports.StatusSucceeded, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("save: %v", err)
	}

	second, err := postgres.NewStore(ctx, "postgres://example")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	list, err := second.List(ctx, 0)
	if err != nil || len(list) != 1 || list[0].ID != "old" {
		t.Fatalf("expected hydrated report, got %+v %v", list, err)
	}
}

func TestStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	if _, err := postgres.NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}
