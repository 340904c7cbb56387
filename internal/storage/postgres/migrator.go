package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsGlob = "sql/migrations/*.sql"
	// migrationLockKey: ключ pg_advisory_lock, общий для всех экземпляров сервиса.
	migrationLockKey  = int64(47303202)
	migrationTimeout  = 5 * time.Second
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationState описывает одну миграцию и то, применена ли она.
type MigrationState struct {
	Version int64
	Name    string
	Applied bool
}

// MigrateUp применяет up-миграции. steps=0 применяет все доступные.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		done := 0
		for _, m := range migrations {
			if applied[m.Version] {
				continue
			}
			if err := runMigration(ctx, conn, m, true); err != nil {
				return err
			}
			done++
			if steps > 0 && done >= steps {
				break
			}
		}
		return nil
	})
}

// MigrateDown откатывает последние миграции. steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}

	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration) error {
		byVersion := make(map[int64]migration, len(migrations))
		for _, m := range migrations {
			byVersion[m.Version] = m
		}

		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
		if len(versions) > steps {
			versions = versions[:steps]
		}

		for _, v := range versions {
			m, ok := byVersion[v]
			if !ok {
				return fmt.Errorf("cannot rollback unknown migration version %d", v)
			}
			if err := runMigration(ctx, conn, m, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает текущую версию и количество применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	plan, err := s.MigrationPlan(ctx)
	if err != nil {
		return 0, 0, err
	}

	var (
		version int64
		count   int
	)
	for _, st := range plan {
		if !st.Applied {
			continue
		}
		count++
		if st.Version > version {
			version = st.Version
		}
	}
	return version, count, nil
}

// MigrationPlan перечисляет встроенные миграции по возрастанию версии с отметкой о применении.
func (s *Store) MigrationPlan(ctx context.Context) ([]MigrationState, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("postgres store is not initialized")
	}

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	conn, err := s.db.Conn(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(queryCtx, migrationTableDDL); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(queryCtx, conn)
	if err != nil {
		return nil, err
	}

	plan := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		plan = append(plan, MigrationState{Version: m.Version, Name: m.Name, Applied: applied[m.Version]})
	}
	return plan, nil
}

// withMigrationLock выполняет fn на выделенном соединении под advisory lock.
func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn, []migration) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	return fn(conn, migrations)
}

// runMigration применяет или откатывает одну миграцию вместе с записью в schema_migrations.
func runMigration(ctx context.Context, conn *sql.Conn, m migration, up bool) (err error) {
	direction, body := "down", m.DownSQL
	if up {
		direction, body = "up", m.UpSQL
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %d): %w", direction, m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}

	if up {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`, m.Version, m.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		result[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return result, nil
}

// parseMigrationFileName разбирает имя вида 0001_name.up.sql.
func parseMigrationFileName(base string) (version int64, name, direction string, err error) {
	matches := migrationFilePattern.FindStringSubmatch(base)
	if len(matches) != 4 {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}
	version, err = strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("parse migration version from %s: %w", base, err)
	}
	return version, matches[2], matches[3], nil
}

func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		version, name, direction, err := parseMigrationFileName(base)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, name)
		}

		target := &m.DownSQL
		if direction == "up" {
			target = &m.UpSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	return migrations, nil
}
