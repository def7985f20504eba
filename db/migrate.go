package db

import (
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration files are named NNN_description.sql.
var migrationName = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.sql$`)

// Migration is one embedded schema change.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// ErrSchemaTooNew means the database was migrated by a newer ctxeng.
var ErrSchemaTooNew = errors.New("database schema is newer than this binary")

// Migrate applies every pending embedded migration, each in its own
// transaction together with its schema_migrations row. A nil log is silent.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	return migrateFS(db, migrations, log)
}

func migrateFS(db *sql.DB, fsys fs.FS, log *zap.SugaredLogger) error {
	log = logger.OrNop(log)

	all, err := loadMigrations(fsys)
	if err != nil {
		return err
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(all))
	for _, m := range all {
		known[m.Version] = true
	}
	for v := range applied {
		if !known[v] {
			return errors.WithHintf(
				errors.Wrapf(ErrSchemaTooNew, "unknown migration %s", v),
				"upgrade ctxeng or point --db-path at another database",
			)
		}
	}

	pending := 0
	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		log.Infow("Applying migration", "version", m.Version, "name", m.Name)
		if err := apply(db, m); err != nil {
			return err
		}
		pending++
	}

	log.Debugw("Schema up to date", logger.FieldCount, len(all), "applied", pending)
	return nil
}

// loadMigrations reads and orders the migration files in fsys.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var out []Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		parts := migrationName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, errors.Newf("migration %s is not named NNN_description.sql", entry.Name())
		}
		if prev, dup := seen[parts[1]]; dup {
			return nil, errors.Newf("migrations %s and %s share version %s", prev, entry.Name(), parts[1])
		}
		seen[parts[1]] = entry.Name()

		body, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", entry.Name())
		}
		out = append(out, Migration{Version: parts[1], Name: parts[2], SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// appliedVersions returns the recorded versions, empty on a fresh database.
func appliedVersions(db *sql.DB) (map[string]bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&n)
	if err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}
	applied := make(map[string]bool)
	if n == 0 {
		return applied, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		applied[v] = true
	}
	return applied, errors.Wrap(rows.Err(), "read schema_migrations")
}

func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin migration %s", m.Version)
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "migration %s_%s", m.Version, m.Name)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record migration %s", m.Version)
	}
	return errors.Wrapf(tx.Commit(), "commit migration %s", m.Version)
}
