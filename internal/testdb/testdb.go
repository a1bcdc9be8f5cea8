// Package testdb starts an embedded PostgreSQL for repository and service
// tests and applies the schema.
package testdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/migrations"
)

const (
	user     = "campuslink"
	password = "campuslink_test"
	database = "campuslink_test"
)

// Start boots an embedded PostgreSQL on the given port, applies all
// migrations and returns a connected pool. Cleanup is registered on t.
// Each test package uses its own port so packages can run in parallel.
func Start(t *testing.T, port uint32) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("embedded postgres skipped in -short mode")
	}

	runtimeDir := filepath.Join(os.TempDir(), fmt.Sprintf("campuslink-pg-%d", port))
	cfg := embeddedpostgres.DefaultConfig().
		Port(port).
		Username(user).
		Password(password).
		Database(database).
		RuntimePath(runtimeDir).
		StartTimeout(90 * time.Second)
	// Allow overriding the binary download mirror for environments where
	// the default Maven Central repository is unreachable.
	if repo := os.Getenv("EMBEDDED_POSTGRES_BINARY_REPO_URL"); repo != "" {
		cfg = cfg.BinaryRepositoryURL(repo)
	}
	db := embeddedpostgres.NewDatabase(cfg)
	if err := db.Start(); err != nil {
		t.Fatalf("start embedded postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Stop(); err != nil {
			t.Errorf("stop embedded postgres: %v", err)
		}
	})

	url := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", user, password, port, database)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// Migrate applies the embedded SQL migrations in file order.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("run migration %s: %w", name, err)
		}
	}
	return nil
}

// Reset truncates all domain tables between tests.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := pool.Exec(ctx, `TRUNCATE notification_events, messages, participants, conversations, users CASCADE`)
	if err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}

// SeedUser inserts a directory user and returns its id.
func SeedUser(t *testing.T, pool *pgxpool.Pool, id, fullName, userType string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	email := strings.ToLower(strings.ReplaceAll(fullName, " ", ".")) + "@example.edu"
	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, email, full_name, user_type) VALUES ($1, $2, $3, $4)`,
		id, email, fullName, userType)
	if err != nil {
		t.Fatalf("seed user %s: %v", fullName, err)
	}
	return id
}
