// Package journal persists closed connection records to rolling SQLite
// databases, written asynchronously off a bounded queue.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dbPrefix = "journal-"
	dbSuffix = ".db"
)

// Row is one persisted connection record.
type Row struct {
	ID          string
	ClosedAtNs  int64
	Destination string
	Port        int
	Protocol    string
	Kind        string
	State       string
	DurationNs  int64
	BytesIn     int64
	BytesOut    int64
	LatencyNs   int64
	CloseReason string
	Country     string
}

// Repo manages rolling journal databases under one directory. Each file is
// named journal-<unix_ms>.db; the newest is the active write target. The
// mutex keeps the active-handle swap during rotation from racing queries
// issued by API handlers.
type Repo struct {
	dir         string
	maxBytes    int64
	retainCount int

	mu         sync.Mutex
	activeDB   *sql.DB
	activePath string
}

// NewRepo creates a Repo. maxBytes controls rotation of the active DB;
// retainCount caps how many historical files are kept.
func NewRepo(dir string, maxBytes int64, retainCount int) *Repo {
	if maxBytes <= 0 {
		maxBytes = 128 * 1024 * 1024 // 128 MB default
	}
	if retainCount <= 0 {
		retainCount = 5
	}
	return &Repo{dir: dir, maxBytes: maxBytes, retainCount: retainCount}
}

// Open opens (or creates) the active journal database, reusing the newest
// existing file when one is present.
func (r *Repo) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("journal: mkdir %s: %w", r.dir, err)
	}
	files, err := r.listDBFiles()
	if err != nil {
		return err
	}
	if len(files) > 0 {
		if err := r.openDB(files[len(files)-1]); err != nil {
			return err
		}
		return r.prune()
	}
	return r.rotate()
}

// Close closes the active database.
func (r *Repo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeDB == nil {
		return nil
	}
	err := r.activeDB.Close()
	r.activeDB = nil
	r.activePath = ""
	return err
}

// Insert writes a batch of rows in one transaction, rotating first when
// the active file has outgrown maxBytes.
func (r *Repo) Insert(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeDB == nil {
		return fmt.Errorf("journal: repo not open")
	}
	if info, err := os.Stat(r.activePath); err == nil && info.Size() >= r.maxBytes {
		if err := r.rotate(); err != nil {
			return err
		}
	}

	tx, err := r.activeDB.Begin()
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO connection_journal
		(id, closed_at_ns, destination, port, protocol, kind, state,
		 duration_ns, bytes_in, bytes_out, latency_ns, close_reason, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("journal: prepare: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(
			row.ID, row.ClosedAtNs, row.Destination, row.Port, row.Protocol,
			row.Kind, row.State, row.DurationNs, row.BytesIn, row.BytesOut,
			row.LatencyNs, row.CloseReason, row.Country,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("journal: insert %s: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: commit: %w", err)
	}
	return nil
}

// Filter narrows Query results. Zero values mean no constraint.
type Filter struct {
	Destination string
	Kind        string
	Limit       int
	Offset      int
}

// Query reads rows from the active database, newest first.
func (r *Repo) Query(f Filter) ([]Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeDB == nil {
		return nil, fmt.Errorf("journal: repo not open")
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}

	var where []string
	var args []any
	if f.Destination != "" {
		where = append(where, "destination = ?")
		args = append(args, f.Destination)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	q := `SELECT id, closed_at_ns, destination, port, protocol, kind, state,
		duration_ns, bytes_in, bytes_out, latency_ns, close_reason, country
		FROM connection_journal`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY closed_at_ns DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := r.activeDB.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(
			&row.ID, &row.ClosedAtNs, &row.Destination, &row.Port, &row.Protocol,
			&row.Kind, &row.State, &row.DurationNs, &row.BytesIn, &row.BytesOut,
			&row.LatencyNs, &row.CloseReason, &row.Country,
		); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// rotate closes the active DB (if any), creates a fresh file, migrates it,
// and prunes old files. Caller holds r.mu.
func (r *Repo) rotate() error {
	if r.activeDB != nil {
		if err := r.activeDB.Close(); err != nil {
			return fmt.Errorf("journal: close before rotate: %w", err)
		}
		r.activeDB = nil
	}
	path := filepath.Join(r.dir, fmt.Sprintf("%s%d%s", dbPrefix, time.Now().UnixMilli(), dbSuffix))
	if err := r.openDB(path); err != nil {
		return err
	}
	return r.prune()
}

func (r *Repo) openDB(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := migrateDB(db); err != nil {
		_ = db.Close()
		return err
	}
	r.activeDB = db
	r.activePath = path
	return nil
}

// listDBFiles returns journal file paths sorted oldest to newest.
func (r *Repo) listDBFiles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read dir %s: %w", r.dir, err)
	}
	type dbFile struct {
		path string
		ts   int64
	}
	var files []dbFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, dbPrefix) || !strings.HasSuffix(name, dbSuffix) {
			continue
		}
		tsStr := strings.TrimSuffix(strings.TrimPrefix(name, dbPrefix), dbSuffix)
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue // not one of ours
		}
		files = append(files, dbFile{path: filepath.Join(r.dir, name), ts: ts})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ts < files[j].ts })
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// prune deletes the oldest files beyond retainCount, never the active one.
func (r *Repo) prune() error {
	files, err := r.listDBFiles()
	if err != nil {
		return err
	}
	for len(files) > r.retainCount {
		victim := files[0]
		files = files[1:]
		if victim == r.activePath {
			continue
		}
		if err := os.Remove(victim); err != nil {
			return fmt.Errorf("journal: prune %s: %w", victim, err)
		}
	}
	return nil
}
