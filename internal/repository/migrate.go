package repository

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const migrationTable = "schema_migrations"

// migrationTarget is the driver specific half of the migration runner.
type migrationTarget interface {
	ensureMigrationTable(ctx context.Context) error
	isApplied(ctx context.Context, name string) (bool, error)
	// applyMigration runs upSQL and records name in one transaction.
	applyMigration(ctx context.Context, name, upSQL string) error
}

// applyMigrations executes the *.sql files under root in lexical order, at
// most once per file, and returns the names applied by this call.
func applyMigrations(ctx context.Context, target migrationTarget, migrationFS fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if err := target.ensureMigrationTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	var applied []string
	for _, file := range files {
		name := path.Join(root, file)
		done, err := target.isApplied(ctx, name)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", file, err)
		}
		if done {
			continue
		}

		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}
		if err := target.applyMigration(ctx, name, upSQL); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", file, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// extractUpMigration returns the SQL in the -- +migrate Up section.
func extractUpMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, up)
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, down)
	if downIdx == -1 || downIdx < upIdx {
		return content[upIdx+len(up):]
	}
	return content[upIdx+len(up) : downIdx]
}
