// Package engine defines the chess engine capability the analysis coordinator
// drives, and a UCI subprocess implementation of it.
package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidRequest marks a structurally invalid position or time budget.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEngineFailure marks a crashed engine process or a protocol desync.
	ErrEngineFailure = errors.New("engine failure")
)

// NoMove is printed wherever a move is expected but none exists.
const NoMove = "(none)"

// Score is a side-to-move relative evaluation. Value is a distance to mate
// when Mate is set, centipawns otherwise.
type Score struct {
	Mate  bool
	Value int
}

// Cp returns a centipawn score.
func Cp(v int) Score { return Score{Value: v} }

// MateIn returns a mate score. Negative n means the side to move gets mated.
func MateIn(n int) Score { return Score{Mate: true, Value: n} }

// String renders the score the way UCI tooling conventionally prints a
// relative score: "+35", "0", "-12", "#+3", "#-2".
func (s Score) String() string {
	if s.Mate {
		if s.Value > 0 {
			return "#+" + strconv.Itoa(s.Value)
		}
		return "#-" + strconv.Itoa(-s.Value)
	}
	if s.Value > 0 {
		return "+" + strconv.Itoa(s.Value)
	}
	return strconv.Itoa(s.Value)
}

// Negate flips the point of view.
func (s Score) Negate() Score {
	return Score{Mate: s.Mate, Value: -s.Value}
}

// LineRecord is one principal variation as last reported by the engine.
// Telemetry fields are nil when the engine did not send them.
type LineRecord struct {
	Depth    int
	SelDepth *int
	MultiPV  int
	Score    Score
	Nodes    *int64
	NPS      *int64
	HashFull *int
	TBHits   *int64
	Time     *int
	PV       []string
}

// Session is one streaming analysis of a single position.
type Session interface {
	// Next blocks until the engine reports another line. It returns io.EOF
	// once the search has finished.
	Next(ctx context.Context) (LineRecord, error)

	// Close stops the search if it is still running and returns the final
	// line per multi-PV rank, ordered by rank. It is safe to call more than once.
	Close() ([]LineRecord, error)
}

// Engine is a single engine process. It can only think about one position at
// a time: callers must not open a second session before closing the first.
type Engine interface {
	StartSession(ctx context.Context, pos Position, limit time.Duration, multiPV int) (Session, error)
	SetOption(ctx context.Context, name, value string) error
	ReportedConfiguration() map[string]any
	IsManagedOption(name string) bool
	Close() error
}

// managedOptions are handled by the engine wrapper itself and must not be sent
// as raw setoption commands.
var managedOptions = map[string]bool{
	"uci_chess960": true,
	"uci_variant":  true,
	"multipv":      true,
	"ponder":       true,
}

// IsManaged reports whether name is one of the wrapper-managed UCI options.
// Comparison is case-insensitive.
func IsManaged(name string) bool {
	return managedOptions[strings.ToLower(name)]
}
