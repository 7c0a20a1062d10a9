package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/remote-engine/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(now time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id          TEXT PRIMARY KEY,
		fen         TEXT NOT NULL,
		moves       TEXT,
		time_ms     INTEGER NOT NULL,
		multipv     INTEGER NOT NULL DEFAULT 1,
		generation  INTEGER NOT NULL,
		superseded  INTEGER NOT NULL DEFAULT 0,
		bestmove    TEXT NOT NULL,
		threat      TEXT NOT NULL,
		is_mate     INTEGER NOT NULL DEFAULT 0,
		value       INTEGER NOT NULL DEFAULT 0,
		depth       INTEGER NOT NULL DEFAULT 0,
		lines       TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_fen ON analyses(fen);
	CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

const analysisColumns = `id, fen, moves, time_ms, multipv, generation, superseded,
	bestmove, threat, is_mate, value, depth, lines, created_at`

func (s *SQLiteStore) Record(ctx context.Context, p RecordParams) (*model.Analysis, error) {
	if p.FEN == "" {
		return nil, fmt.Errorf("record analysis: fen is required")
	}
	now := time.Now().UTC()
	id := s.newID(now)

	var moves *string
	if len(p.Moves) > 0 {
		joined := strings.Join(p.Moves, " ")
		moves = &joined
	}

	var linesJSON *string
	if len(p.Lines) > 0 {
		b, err := json.Marshal(p.Lines)
		if err != nil {
			return nil, fmt.Errorf("encode lines: %w", err)
		}
		js := string(b)
		linesJSON = &js
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (`+analysisColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.FEN, moves, p.TimeMillis, p.MultiPV, int64(p.Generation), p.Superseded,
		p.BestMove, p.Threat, p.IsMate, p.Value, p.Depth, linesJSON,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert analysis: %w", err)
	}

	return &model.Analysis{
		ID:         id,
		FEN:        p.FEN,
		Moves:      p.Moves,
		TimeMillis: p.TimeMillis,
		MultiPV:    p.MultiPV,
		Generation: p.Generation,
		Superseded: p.Superseded,
		BestMove:   p.BestMove,
		Threat:     p.Threat,
		IsMate:     p.IsMate,
		Value:      p.Value,
		Depth:      p.Depth,
		Lines:      p.Lines,
		CreatedAt:  now,
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Analysis, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1 = 1"}
	var args []interface{}
	if p.FEN != "" {
		where = append(where, "fen = ?")
		args = append(args, p.FEN)
	}
	if p.Superseded != nil {
		where = append(where, "superseded = ?")
		args = append(args, *p.Superseded)
	}

	query := fmt.Sprintf(`SELECT %s FROM analyses WHERE %s ORDER BY id DESC LIMIT ?`,
		analysisColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	return s.query(ctx, query, args...)
}

func (s *SQLiteStore) Prune(ctx context.Context, p PruneParams) (int, error) {
	if p.OlderThan <= 0 {
		return 0, fmt.Errorf("prune: age must be positive")
	}
	cutoff := time.Now().UTC().Add(-p.OlderThan).Format(time.RFC3339Nano)

	if p.DryRun {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM analyses WHERE created_at < ?`, cutoff).Scan(&n)
		return n, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]model.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row scanner) (model.Analysis, error) {
	var a model.Analysis
	var moves, linesJSON sql.NullString
	var generation int64
	var createdAt string

	err := row.Scan(
		&a.ID, &a.FEN, &moves, &a.TimeMillis, &a.MultiPV, &generation, &a.Superseded,
		&a.BestMove, &a.Threat, &a.IsMate, &a.Value, &a.Depth, &linesJSON, &createdAt,
	)
	if err != nil {
		return a, err
	}

	a.Generation = uint64(generation)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if moves.Valid && moves.String != "" {
		a.Moves = strings.Fields(moves.String)
	}
	if linesJSON.Valid {
		if err := json.Unmarshal([]byte(linesJSON.String), &a.Lines); err != nil {
			return a, fmt.Errorf("decode lines of %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// ParseAge parses an age string like "7d", "24h", "30m" into a time.Duration.
var ageRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

func ParseAge(s string) (time.Duration, error) {
	m := ageRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid format %q (use e.g. 7d, 24h, 30m, 60s)", s)
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("unknown unit %q", m[2])
}
