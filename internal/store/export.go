package store

import (
	"context"
	"strings"

	"github.com/rcliao/remote-engine/internal/model"
)

// ExportAll returns every stored analysis oldest first, optionally filtered by position.
func (s *SQLiteStore) ExportAll(ctx context.Context, fen string) ([]model.Analysis, error) {
	where := []string{"1 = 1"}
	args := []interface{}{}

	if fen != "" {
		where = append(where, "fen = ?")
		args = append(args, fen)
	}

	query := `SELECT ` + analysisColumns + `
	          FROM analyses WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	return s.query(ctx, query, args...)
}
