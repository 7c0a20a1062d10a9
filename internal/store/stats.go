package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath             string          `json:"db_path"`
	DBSizeBytes        int64           `json:"db_size_bytes"`
	TotalAnalyses      int             `json:"total_analyses"`
	SupersededAnalyses int             `json:"superseded_analyses"`
	DistinctPositions  int             `json:"distinct_positions"`
	MaxGeneration      uint64          `json:"max_generation"`
	Positions          []PositionStats `json:"positions"`
}

// PositionStats holds per-position counts.
type PositionStats struct {
	FEN      string `json:"fen"`
	Count    int    `json:"count"`
	MaxDepth int    `json:"max_depth"`
}

// Stats returns database statistics. Positions lists the ten most analysed.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	var maxGen int64
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&st.TotalAnalyses)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses WHERE superseded = 1`).Scan(&st.SupersededAnalyses)
	s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT fen) FROM analyses`).Scan(&st.DistinctPositions)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(generation), 0) FROM analyses`).Scan(&maxGen)
	st.MaxGeneration = uint64(maxGen)

	rows, err := s.db.QueryContext(ctx, `
		SELECT fen, COUNT(*) AS cnt, MAX(depth) AS max_depth
		FROM analyses
		GROUP BY fen ORDER BY cnt DESC, fen LIMIT 10`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ps PositionStats
		rows.Scan(&ps.FEN, &ps.Count, &ps.MaxDepth)
		st.Positions = append(st.Positions, ps)
	}

	return st, nil
}
