package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding queries, responses, and the farmer
// profile. Queries and responses survive restarts and offline periods; ids are
// AUTOINCREMENT so they are never reused, even after deletion.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "kisan.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Queries ---

// SaveQuery inserts a new query and returns its generated id.
func (s *Store) SaveQuery(prompt, kind, status string) (int64, error) {
	if kind == "" {
		kind = KindText
	}
	if status == "" {
		status = StatusPending
	}
	res, err := s.db.Exec(`
		INSERT INTO queries (prompt, kind, status, created_at)
		VALUES (?, ?, ?, ?)`,
		prompt, kind, status, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuery returns the query with the given id.
func (s *Store) GetQuery(id int64) (Query, error) {
	var q Query
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, prompt, kind, status, created_at
		FROM queries WHERE id = ?`, id,
	).Scan(&q.ID, &q.Prompt, &q.Kind, &q.Status, &createdAt)
	if err == sql.ErrNoRows {
		return Query{}, ErrNotFound
	}
	if err != nil {
		return Query{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Query{}, fmt.Errorf("parsing created_at: %w", err)
	}
	q.CreatedAt = t
	return q, nil
}

// GetPending returns all pending queries in submission order, oldest first,
// so reconnect replay preserves the conversational order.
func (s *Store) GetPending() ([]Query, error) {
	return s.queryList(`
		SELECT id, prompt, kind, status, created_at
		FROM queries WHERE status = ? ORDER BY created_at ASC, id ASC`, StatusPending)
}

// ListQueries returns the most recent queries, newest first.
func (s *Store) ListQueries(limit int) ([]Query, error) {
	return s.queryList(`
		SELECT id, prompt, kind, status, created_at
		FROM queries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

func (s *Store) queryList(query string, args ...any) ([]Query, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Query
	for rows.Next() {
		var q Query
		var createdAt string
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Kind, &q.Status, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		q.CreatedAt = t
		results = append(results, q)
	}
	return results, rows.Err()
}

// UpdateQueryStatus sets the status of a single query.
// Returns ErrNotFound if the id does not exist.
func (s *Store) UpdateQueryStatus(id int64, status string) error {
	res, err := s.db.Exec(`UPDATE queries SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns the number of queries with the given status.
func (s *Store) CountByStatus(status string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM queries WHERE status = ?`, status).Scan(&n)
	return n, err
}

// DeleteQuery removes a query and any responses referencing it.
// The dispatcher never deletes; this backs the data purge surface only.
func (s *Store) DeleteQuery(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM responses WHERE query_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// --- Responses ---

// SaveResponse inserts the answer for a query and returns its generated id.
// The referenced query must exist; ErrNotFound is returned otherwise, so a
// response can never be recorded against a query id that was never created.
func (s *Store) SaveResponse(queryID int64, body string) (int64, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queries WHERE id = ?`, queryID).Scan(&exists); err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	res, err := s.db.Exec(`
		INSERT INTO responses (query_id, body, created_at)
		VALUES (?, ?, ?)`,
		queryID, body, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetResponsesFor returns all responses recorded for a query, oldest first.
// The dispatcher guarantees at most one per query.
func (s *Store) GetResponsesFor(queryID int64) ([]Response, error) {
	rows, err := s.db.Query(`
		SELECT id, query_id, body, created_at
		FROM responses WHERE query_id = ? ORDER BY created_at ASC, id ASC`, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Response
	for rows.Next() {
		var r Response
		var createdAt string
		if err := rows.Scan(&r.ID, &r.QueryID, &r.Body, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Farmer profile ---

// SetProfileKey upserts one profile field.
func (s *Store) SetProfileKey(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO farmer_profile (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetProfileKey returns one profile field, or ErrNotFound.
func (s *Store) GetProfileKey(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM farmer_profile WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// GetAllProfileKeys returns the whole farmer profile as a map.
func (s *Store) GetAllProfileKeys() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM farmer_profile")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}
