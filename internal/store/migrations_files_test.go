package store

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"
)

var migrationName = regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

// Every migration version ships an up and a down file, exactly once each.
func TestMigrationFilesComeInPairs(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("..", "..", "db", "migrations"))
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	seen := map[string]map[string]int{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Errorf("unexpected file in migrations dir: %s", entry.Name())
			continue
		}
		version, direction := match[1], match[2]
		if seen[version] == nil {
			seen[version] = map[string]int{}
		}
		seen[version][direction]++
	}

	if len(seen) == 0 {
		t.Fatal("no migrations discovered")
	}

	versions := make([]string, 0, len(seen))
	for version := range seen {
		versions = append(versions, version)
	}
	sort.Strings(versions)

	for _, version := range versions {
		if seen[version]["up"] != 1 || seen[version]["down"] != 1 {
			t.Errorf("version %s: got %d up / %d down files, want exactly one of each",
				version, seen[version]["up"], seen[version]["down"])
		}
	}
}
