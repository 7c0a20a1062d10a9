package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/remote-engine/internal/model"
)

const (
	startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	afterE4  = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleParams(fen string, gen uint64) RecordParams {
	score, depth, multiPV := 31, 12, 1
	return RecordParams{
		FEN:        fen,
		TimeMillis: 1500,
		MultiPV:    1,
		Generation: gen,
		BestMove:   "d2d4",
		Threat:     "d7d5",
		Value:      31,
		Depth:      12,
		Lines: []model.Line{{
			Move:     "d2d4",
			Depth:    depth,
			MultiPV:  &multiPV,
			PV:       []string{"d2d4", "d7d5"},
			RawScore: "cp +31",
			Score:    &score,
		}},
	}
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := sampleParams(startFEN, 7)
	p.Moves = []string{"e2e4", "e7e5"}
	p.Superseded = true
	rec, err := s.Record(ctx, p)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected non-empty ID")
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FEN != startFEN || got.BestMove != "d2d4" || got.Threat != "d7d5" {
		t.Errorf("unexpected record %+v", got)
	}
	if got.Generation != 7 || !got.Superseded || got.TimeMillis != 1500 {
		t.Errorf("generation/superseded/time not persisted: %+v", got)
	}
	if len(got.Moves) != 2 || got.Moves[1] != "e7e5" {
		t.Errorf("moves = %v", got.Moves)
	}
	if len(got.Lines) != 1 || got.Lines[0].Score == nil || *got.Lines[0].Score != 31 {
		t.Fatalf("lines not round-tripped: %+v", got.Lines)
	}
	if got.Lines[0].Mate != nil {
		t.Error("mate should stay unset for a centipawn line")
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordRequiresFEN(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Record(context.Background(), RecordParams{}); err == nil {
		t.Error("expected error for empty fen")
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Record(ctx, sampleParams(startFEN, 1))
	s.Record(ctx, sampleParams(afterE4, 2))
	last, _ := s.Record(ctx, sampleParams(startFEN, 3))

	all, err := s.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].ID != last.ID {
		t.Errorf("expected newest first, got generation %d", all[0].Generation)
	}

	byFEN, _ := s.List(ctx, ListParams{FEN: startFEN})
	if len(byFEN) != 2 {
		t.Errorf("expected 2 for start position, got %d", len(byFEN))
	}

	limited, _ := s.List(ctx, ListParams{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestListSupersededFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := sampleParams(startFEN, 1)
	p.Superseded = true
	s.Record(ctx, p)
	s.Record(ctx, sampleParams(startFEN, 2))

	yes, no := true, false
	sup, _ := s.List(ctx, ListParams{Superseded: &yes})
	if len(sup) != 1 || sup[0].Generation != 1 {
		t.Errorf("superseded filter: %+v", sup)
	}
	fresh, _ := s.List(ctx, ListParams{Superseded: &no})
	if len(fresh) != 1 || fresh[0].Generation != 2 {
		t.Errorf("fresh filter: %+v", fresh)
	}
}

func TestExportAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Record(ctx, sampleParams(startFEN, 1))
	s.Record(ctx, sampleParams(afterE4, 2))

	all, err := s.ExportAll(ctx, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(all) != 2 || all[0].Generation != 1 {
		t.Errorf("expected oldest first, got %+v", all)
	}

	one, _ := s.ExportAll(ctx, afterE4)
	if len(one) != 1 || one[0].FEN != afterE4 {
		t.Errorf("fen filter: %+v", one)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Record(ctx, sampleParams(startFEN, 1))
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `UPDATE analyses SET created_at = ?`, old); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	s.Record(ctx, sampleParams(afterE4, 2))

	n, err := s.Prune(ctx, PruneParams{OlderThan: 24 * time.Hour, DryRun: true})
	if err != nil || n != 1 {
		t.Fatalf("dry run: n=%d err=%v", n, err)
	}
	if all, _ := s.List(ctx, ListParams{}); len(all) != 2 {
		t.Errorf("dry run deleted rows")
	}

	n, err = s.Prune(ctx, PruneParams{OlderThan: 24 * time.Hour})
	if err != nil || n != 1 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
	all, _ := s.List(ctx, ListParams{})
	if len(all) != 1 || all[0].FEN != afterE4 {
		t.Errorf("unexpected survivors %+v", all)
	}

	if _, err := s.Prune(ctx, PruneParams{}); err == nil {
		t.Error("expected error for zero age")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := sampleParams(startFEN, 1)
	p.Superseded = true
	s.Record(ctx, p)
	s.Record(ctx, sampleParams(startFEN, 2))
	s.Record(ctx, sampleParams(afterE4, 5))

	st, err := s.Stats(ctx, "test.db")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalAnalyses != 3 || st.SupersededAnalyses != 1 || st.DistinctPositions != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.MaxGeneration != 5 {
		t.Errorf("max generation = %d, want 5", st.MaxGeneration)
	}
	if len(st.Positions) != 2 || st.Positions[0].FEN != startFEN || st.Positions[0].Count != 2 {
		t.Errorf("unexpected positions %+v", st.Positions)
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"7d", 7 * 24 * time.Hour},
		{"24h", 24 * time.Hour},
		{"30m", 30 * time.Minute},
		{"60s", time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseAge(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseAge(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	for _, bad := range []string{"", "7", "1w", "-1d"} {
		if _, err := ParseAge(bad); err == nil {
			t.Errorf("ParseAge(%q) should fail", bad)
		}
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}
