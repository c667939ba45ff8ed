package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dashgate/dashgate/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in order. The DDL targets
// PostgreSQL; tests run against an equivalent SQLite schema.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id BIGSERIAL PRIMARY KEY,
					group_name VARCHAR(50) NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_by BIGINT,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_by BIGINT,
					deleted_at TIMESTAMP
				);

				CREATE INDEX idx_groups_group_name ON groups(group_name);
				CREATE INDEX idx_groups_deleted_at ON groups(deleted_at);
			`,
		},
		{
			Version:     2,
			Description: "Create pages table",
			SQL: `
				CREATE TABLE IF NOT EXISTS pages (
					id BIGSERIAL PRIMARY KEY,
					page_name VARCHAR(255) NOT NULL,
					page_url VARCHAR(255) NOT NULL,
					is_parent BOOLEAN NOT NULL DEFAULT FALSE,
					parent_id BIGINT REFERENCES pages(id),
					menu_icon VARCHAR(100),
					menu_class VARCHAR(100),
					is_menu BOOLEAN NOT NULL DEFAULT FALSE,
					sort_no INT NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					lang_name VARCHAR(20),
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_by BIGINT,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_by BIGINT,
					deleted_at TIMESTAMP
				);

				CREATE INDEX idx_pages_page_url ON pages(page_url);
				CREATE INDEX idx_pages_parent_id ON pages(parent_id);
				CREATE INDEX idx_pages_menu ON pages(is_menu, is_active, sort_no);
				CREATE INDEX idx_pages_deleted_at ON pages(deleted_at);
			`,
		},
		{
			Version:     3,
			Description: "Create page_group permission table",
			SQL: `
				CREATE TABLE IF NOT EXISTS page_group (
					id BIGSERIAL PRIMARY KEY,
					group_id BIGINT NOT NULL REFERENCES groups(id),
					page_id BIGINT NOT NULL REFERENCES pages(id),
					can_add BOOLEAN NOT NULL DEFAULT FALSE,
					can_edit BOOLEAN NOT NULL DEFAULT FALSE,
					can_delete BOOLEAN NOT NULL DEFAULT FALSE,
					can_view BOOLEAN NOT NULL DEFAULT FALSE,
					can_view_all_detail BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(group_id, page_id)
				);

				CREATE INDEX idx_page_group_group_id ON page_group(group_id);
				CREATE INDEX idx_page_group_page_id ON page_group(page_id);
			`,
		},
		{
			Version:     4,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL,
					group_id BIGINT NOT NULL REFERENCES groups(id),
					designation VARCHAR(100),
					deleted_at TIMESTAMP
				);

				CREATE INDEX idx_users_group_id ON users(group_id);
			`,
		},
		{
			Version:     5,
			Description: "Seed superadmin group",
			SQL: `
				INSERT INTO groups (id, group_name, is_active)
				SELECT 1, 'superadmin', TRUE
				WHERE NOT EXISTS (SELECT 1 FROM groups WHERE id = 1);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own
// transaction, tracked in the dashgate_migrations table.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dashgate_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM dashgate_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read migration versions: %w", err)
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).
			WithField("description", migration.Description).
			Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO dashgate_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
