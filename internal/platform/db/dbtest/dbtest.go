// Package dbtest gives repository tests an isolated, migrated Postgres schema.
// Tests are skipped unless CAREBOOK_TEST_DATABASE_URL is set.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/migrations"
)

const EnvURL = "CAREBOOK_TEST_DATABASE_URL"

// Open creates a throwaway schema, points a new pool's search_path at it,
// applies every migration and drops the schema when the test ends.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skipf("%s not set; skipping Postgres test", EnvURL)
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	// Extensions are database-wide. Installing btree_gist outside the
	// throwaway schema keeps it alive when a schema is dropped, and the
	// migration's CREATE EXTENSION IF NOT EXISTS becomes a no-op.
	if _, err := admin.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS btree_gist SCHEMA public"); err != nil {
		admin.Close()
		t.Fatalf("install btree_gist: %v", err)
	}
	schema := "carebook_test_" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	cfg, err := db.ParsePoolConfig(url, 4, 0)
	if err != nil {
		admin.Close()
		t.Fatalf("parse url: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		admin.Close()
		t.Fatalf("open pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if _, err := admin.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: drop schema %s: %v", schema, err)
		}
		admin.Close()
	})

	if _, err := db.NewMigrator(pool, migrations.Files).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// SeedUser inserts a user row and returns its id.
func SeedUser(t *testing.T, pool *pgxpool.Pool, role string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, password_hash, role, full_name) VALUES ($1, $2, 'x', $3, $4)`,
		id, id.String()+"@example.com", role, fmt.Sprintf("Test %s %s", role, id.String()[:4]))
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

// SeedDoctor inserts a doctor user and profile and returns the doctor id.
func SeedDoctor(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO doctors (id, user_id, department) VALUES ($1, $2, 'General')`,
		id, SeedUser(t, pool, "doctor"))
	if err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	return id
}

// SeedPatient inserts a patient user and profile and returns the patient id.
func SeedPatient(t *testing.T, pool *pgxpool.Pool, phone string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO patients (id, user_id, phone_number) VALUES ($1, $2, $3)`,
		id, SeedUser(t, pool, "patient"), phone)
	if err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	return id
}
