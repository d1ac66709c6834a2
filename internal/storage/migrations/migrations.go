// Package migrations applies the embedded schema files for the
// trade-receipt and price-snapshot stores.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"solana-perp-engine/internal/storage/clickhouse"
	"solana-perp-engine/internal/storage/postgres"
)

//go:embed postgres/*.sql clickhouse/*.sql
var schemaFS embed.FS

// RunPostgresMigrations creates the trade-receipt schema. Safe to call on
// every startup; the statements are idempotent.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	return apply(ctx, "postgres", func(c context.Context, stmt string) error {
		_, err := pool.Exec(c, stmt)
		return err
	})
}

// RunClickhouseMigrations creates the price-snapshot schema. Each file holds
// a single statement; safe to call on every startup.
func RunClickhouseMigrations(ctx context.Context, conn *clickhouse.Conn) error {
	return apply(ctx, "clickhouse", func(c context.Context, stmt string) error {
		return conn.Exec(c, stmt)
	})
}

// apply runs every non-empty .sql file under dir in lexical order, so the
// numeric filename prefixes define the schema history.
func apply(ctx context.Context, dir string, exec func(context.Context, string) error) error {
	entries, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(schemaFS, dir+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		stmt := strings.TrimSpace(string(data))
		if stmt == "" {
			continue
		}
		if err := exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}

	return nil
}
