package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func readMigrations(t *testing.T) (string, map[string]map[string]bool) {
	t.Helper()
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}
	return migrationsDir, byVersion
}

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	_, byVersion := readMigrations(t)
	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestInitialMigrationCreatesCoreTables(t *testing.T) {
	migrationsDir, _ := readMigrations(t)
	contents, err := os.ReadFile(filepath.Join(migrationsDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}

	schema := string(contents)
	for _, table := range []string{"users", "refresh_sessions", "revoked_tokens", "files", "shares", "change_requests"} {
		if !strings.Contains(schema, "CREATE TABLE "+table) {
			t.Fatalf("initial migration missing table %s", table)
		}
	}
	for _, status := range []string{"'PENDING'", "'APPROVED'", "'REJECTED'"} {
		if !strings.Contains(schema, status) {
			t.Fatalf("change_requests status constraint missing %s", status)
		}
	}
}

func TestSearchMigrationDerivesVectorFromContentText(t *testing.T) {
	migrationsDir, _ := readMigrations(t)
	contents, err := os.ReadFile(filepath.Join(migrationsDir, "0002_files_fts.up.sql"))
	if err != nil {
		t.Fatalf("read fts migration: %v", err)
	}

	schema := string(contents)
	if !strings.Contains(schema, "ADD COLUMN content_text") {
		t.Fatal("fts migration must add the content_text column TouchFile writes")
	}
	if !strings.Contains(schema, "GENERATED ALWAYS") || !strings.Contains(schema, "coalesce(content_text, '')") {
		t.Fatal("fts vector must be generated from content_text")
	}
	if !strings.Contains(schema, "USING GIN (fts)") {
		t.Fatal("fts column needs its GIN index")
	}
}
