package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrUnknownCode = errors.New("unknown traceability code")

// Record is a registry row.
type Record struct {
	Code       string    `json:"code" yaml:"code"`
	Info       Info      `json:"info" yaml:"info"`
	Output     string    `json:"output,omitempty" yaml:"output,omitempty"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// Registry remembers every produced artifact so a printed code can be
// traced back to its project and version.
type Registry struct {
	db *sql.DB
}

// DefaultRegistryPath is ~/.cache/tabloide/trace.db.
func DefaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "tabloide", "trace.db"), nil
}

// OpenRegistry opens or creates the registry database.
func OpenRegistry(path string) (*Registry, error) {
	if path == "" {
		var err error
		if path, err = DefaultRegistryPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS trace (
			code        TEXT PRIMARY KEY,
			project     TEXT NOT NULL,
			version     INTEGER NOT NULL,
			created_at  TEXT NOT NULL,
			operator    TEXT,
			machine     TEXT,
			output      TEXT,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_trace_project ON trace(project, version);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Record stores info under its code. Recording the same code again updates
// the output path.
func (r *Registry) Record(ctx context.Context, info Info, output string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trace (code, project, version, created_at, operator, machine, output)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET output = excluded.output`,
		info.Code(), info.ProjectID, info.Version,
		info.CreatedAt.UTC().Format(time.RFC3339Nano),
		info.Operator, info.MachineID, output)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", info.Label(), err)
	}
	return nil
}

// Lookup finds a record by code, with or without the TB- prefix.
func (r *Registry) Lookup(ctx context.Context, code string) (*Record, error) {
	if c, ok := FindCode(code); ok {
		code = c
	}
	rows, err := r.query(ctx, "WHERE code = ?", code)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, code)
	}
	return &rows[0], nil
}

// History lists the records of a project, newest version first.
func (r *Registry) History(ctx context.Context, project string) ([]Record, error) {
	return r.query(ctx, "WHERE project = ? ORDER BY version DESC, created_at DESC", project)
}

func (r *Registry) query(ctx context.Context, where string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, project, version, created_at, COALESCE(operator, ''), COALESCE(machine, ''),
		       COALESCE(output, ''), recorded_at
		FROM trace `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var created string
		if err := rows.Scan(&rec.Code, &rec.Info.ProjectID, &rec.Info.Version, &created,
			&rec.Info.Operator, &rec.Info.MachineID, &rec.Output, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to read registry row: %w", err)
		}
		if rec.Info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("invalid creation time %q for %s: %w", created, rec.Code, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
