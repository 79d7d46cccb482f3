// This file validates migration SQL files to catch schema mismatches with
// the Go enums early, before MariaDB rejects a write with Error 1265.
package database_test

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/keyxmakerx/larp/internal/plugins/access"
	"github.com/keyxmakerx/larp/internal/plugins/games"
	"github.com/keyxmakerx/larp/internal/plugins/scenarios"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// readMigrations concatenates every file matching pattern.
func readMigrations(t *testing.T, pattern string) string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(migrationsDir(t), pattern))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no migration files match %s", pattern)
	}
	var sb strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String()
}

var quoted = regexp.MustCompile(`'([^']+)'`)

// enumValues returns the members of the ENUM declared for column.
func enumValues(t *testing.T, sql, column string) []string {
	t.Helper()
	re := regexp.MustCompile(`(?s)\b` + column + `\s+ENUM\((.*?)\)`)
	m := re.FindStringSubmatch(sql)
	if m == nil {
		t.Fatalf("no ENUM declared for column %s", column)
	}
	var values []string
	for _, q := range quoted.FindAllStringSubmatch(m[1], -1) {
		values = append(values, q[1])
	}
	return values
}

func assertSameMembers(t *testing.T, column string, sqlValues, goValues []string) {
	t.Helper()
	slices.Sort(sqlValues)
	slices.Sort(goValues)
	if !slices.Equal(sqlValues, goValues) {
		t.Errorf("%s: ENUM has %v, Go declares %v", column, sqlValues, goValues)
	}
}

func TestMigrations_TagSetKinds(t *testing.T) {
	sql := readMigrations(t, "*_scenarios.up.sql")
	var kinds []string
	for _, k := range scenarios.TagSetKinds() {
		kinds = append(kinds, string(k))
	}
	assertSameMembers(t, "action_tags.kind", enumValues(t, sql, "kind"), kinds)
}

func TestMigrations_GameStatuses(t *testing.T) {
	sql := readMigrations(t, "*_games.up.sql")
	var statuses []string
	for _, s := range games.Statuses() {
		statuses = append(statuses, string(s))
	}
	assertSameMembers(t, "games.status", enumValues(t, sql, "status"), statuses)
}

func TestMigrations_KeyScopes(t *testing.T) {
	sql := readMigrations(t, "*_access_keys.up.sql")
	var scopes []string
	for _, s := range access.Scopes() {
		scopes = append(scopes, string(s))
	}
	assertSameMembers(t, "access_keys.scope", enumValues(t, sql, "scope"), scopes)
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing up files: %v", err)
	}

	for _, up := range upFiles {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// TestMigrations_DownDropsEveryTable checks that rolling all the way back
// leaves nothing behind.
func TestMigrations_DownDropsEveryTable(t *testing.T) {
	up := readMigrations(t, "*.up.sql")
	down := readMigrations(t, "*.down.sql")

	created := regexp.MustCompile(`CREATE TABLE (?:IF NOT EXISTS )?(\w+)`).FindAllStringSubmatch(up, -1)
	if len(created) == 0 {
		t.Fatal("no tables created")
	}
	for _, m := range created {
		if !regexp.MustCompile(`DROP TABLE (?:IF EXISTS )?` + m[1] + `\b`).MatchString(down) {
			t.Errorf("table %s is never dropped", m[1])
		}
	}
}
