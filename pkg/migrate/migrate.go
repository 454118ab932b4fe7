package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/lgulliver/pdfshrink/pkg/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migration is one versioned schema change read from NNN_name.sql
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Status describes one known migration and whether it is applied
type Status struct {
	Version int
	Name    string
	Applied bool
}

// Migrator applies embedded SQL migrations to the job-history database
type Migrator struct {
	db         *sql.DB
	migrations []Migration
}

// Open connects to PostgreSQL with cfg and loads the migrations under dir
func Open(ctx context.Context, cfg *config.DatabaseConfig, fsys fs.FS, dir string) (*Migrator, error) {
	if cfg.Driver != "postgres" {
		return nil, fmt.Errorf("SQL migrations target postgres, configured driver is %q", cfg.Driver)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := New(db, fsys, dir)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// New builds a migrator over an open database
func New(db *sql.DB, fsys fs.FS, dir string) (*Migrator, error) {
	migrations, err := Load(fsys, dir)
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, migrations: migrations}, nil
}

// Load reads every .sql file in dir, ordered by version. Unparseable file
// names and duplicate versions are errors.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		mig, err := parse(entry.Name(), string(content))
		if err != nil {
			return nil, err
		}
		if other, dup := seen[mig.Version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, entry.Name(), mig.Version)
		}
		seen[mig.Version] = entry.Name()
		migrations = append(migrations, mig)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parse reads a file named like 001_compression_jobs.sql
func parse(filename, content string) (Migration, error) {
	prefix, rest, ok := strings.Cut(strings.TrimSuffix(filename, ".sql"), "_")
	if !ok || rest == "" {
		return Migration{}, fmt.Errorf("invalid migration filename %q: want NNN_name.sql", filename)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return Migration{}, fmt.Errorf("invalid migration version in %q", filename)
	}

	up, down := split(content)
	if strings.TrimSpace(up) == "" {
		return Migration{}, fmt.Errorf("migration %q has no up section", filename)
	}
	return Migration{Version: version, Name: rest, Up: up, Down: down}, nil
}

// split separates the sections introduced by the Up and Down markers. Text
// before any marker belongs to Up.
func split(content string) (up, down string) {
	var upLines, downLines []string
	target := &upLines
	for _, line := range strings.Split(content, "\n") {
		switch strings.TrimSpace(line) {
		case upMarker:
			target = &upLines
			continue
		case downMarker:
			target = &downLines
			continue
		}
		*target = append(*target, line)
	}
	return strings.TrimSpace(strings.Join(upLines, "\n")), strings.TrimSpace(strings.Join(downLines, "\n"))
}

// pending returns the migrations whose version is not in applied
func pending(all []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, mig := range all {
		if !applied[mig.Version] {
			out = append(out, mig)
		}
	}
	return out
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]bool, []int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, nil, err
	}

	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	set := make(map[int]bool)
	var ordered []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		set[v] = true
		ordered = append(ordered, v)
	}
	return set, ordered, rows.Err()
}

// Up applies every pending migration in version order, each in its own transaction
func (m *Migrator) Up(ctx context.Context) error {
	set, _, err := m.applied(ctx)
	if err != nil {
		return err
	}

	todo := pending(m.migrations, set)
	if len(todo) == 0 {
		log.Info().Msg("no pending migrations")
		return nil
	}

	for _, mig := range todo {
		err := m.inTx(ctx, mig.Up,
			"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("applied migration")
	}
	return nil
}

// Down reverts the most recently applied migration
func (m *Migrator) Down(ctx context.Context) error {
	_, ordered, err := m.applied(ctx)
	if err != nil {
		return err
	}
	if len(ordered) == 0 {
		log.Info().Msg("no migrations to roll back")
		return nil
	}

	last := ordered[len(ordered)-1]
	for _, mig := range m.migrations {
		if mig.Version != last {
			continue
		}
		if strings.TrimSpace(mig.Down) == "" {
			return fmt.Errorf("migration %d (%s) has no down section", mig.Version, mig.Name)
		}
		if err := m.inTx(ctx, mig.Down, "DELETE FROM schema_migrations WHERE version = $1", mig.Version); err != nil {
			return fmt.Errorf("rollback %d (%s): %w", mig.Version, mig.Name, err)
		}
		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("rolled back migration")
		return nil
	}
	return fmt.Errorf("migration file for applied version %d not found", last)
}

// Status lists every known migration with its applied state
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	set, _, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(m.migrations))
	for _, mig := range m.migrations {
		out = append(out, Status{Version: mig.Version, Name: mig.Name, Applied: set[mig.Version]})
	}
	return out, nil
}

// inTx runs a schema statement and its bookkeeping statement atomically
func (m *Migrator) inTx(ctx context.Context, schema, bookkeeping string, args ...interface{}) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("failed to update schema_migrations: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection
func (m *Migrator) Close() error {
	return m.db.Close()
}
