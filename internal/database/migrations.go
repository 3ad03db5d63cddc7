package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply after the
// base schema exists. Each must be idempotent (IF NOT EXISTS, etc.).
var migrations = []migration{
	{
		name:  "add AlarmRecordStorage.tenant_id/farm_id passthrough",
		sql:   `ALTER TABLE "AlarmRecordStorage" ADD COLUMN IF NOT EXISTS tenant_id text, ADD COLUMN IF NOT EXISTS farm_id text`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'AlarmRecordStorage' AND column_name = 'tenant_id')`,
	},
	{
		name:  "add AlarmRecordStorage.day_age",
		sql:   `ALTER TABLE "AlarmRecordStorage" ADD COLUMN IF NOT EXISTS day_age integer`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'AlarmRecordStorage' AND column_name = 'day_age')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. If the apply fails the error is returned;
// the caller should treat this as fatal since later queries assume the
// columns exist.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{failed: m, pending: pending[applied:], err: err}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails. It includes the SQL
// needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart alarm-player.")
	return b.String()
}
