package store

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"ai-web-studio/internal/models"
)

func TestMapUniqueViolation(t *testing.T) {
	err := mapUnique(fmt.Errorf("insert job: %w", &pgconn.PgError{Code: "23505", ConstraintName: "generation_jobs_one_active_idx"}))
	if !errors.Is(err, models.ErrActiveJob) {
		t.Fatalf("expected ErrActiveJob got %v", err)
	}
	other := fmt.Errorf("insert job: %w", &pgconn.PgError{Code: "23503"})
	if got := mapUnique(other); got != other {
		t.Fatalf("non-unique errors must pass through, got %v", got)
	}
}

func TestMarshalOptional(t *testing.T) {
	raw, err := marshalOptional[models.ColorScheme](nil)
	if err != nil || raw != nil {
		t.Fatalf("nil must encode as SQL NULL, got %q %v", raw, err)
	}
	raw, err = marshalOptional(&models.ColorScheme{Primary: "#000000"})
	if err != nil || !strings.Contains(string(raw), `"primary":"#000000"`) {
		t.Fatalf("unexpected encoding %q %v", raw, err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "migrations/001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(raw)
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS projects", "generation_jobs_one_active_idx", "WHERE status IN ('pending', 'running')"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}
