package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// Position is a FEN plus the UCI moves played from it.
type Position struct {
	FEN   string
	Moves []string
}

var uciMoveRegex = regexp.MustCompile(`^([a-h][1-8][a-h][1-8][qrbn]?|0000)$`)

// ParsePosition checks the structure of a FEN and a space separated move list.
// It does not check legality; the engine is trusted with that.
func ParsePosition(fen, moves string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return Position{}, fmt.Errorf("%w: empty fen", ErrInvalidRequest)
	}
	fields := strings.Fields(fen)
	if len(fields) > 6 {
		return Position{}, fmt.Errorf("%w: fen has %d fields", ErrInvalidRequest, len(fields))
	}
	if ranks := strings.Split(fields[0], "/"); len(ranks) != 8 {
		return Position{}, fmt.Errorf("%w: fen board has %d ranks", ErrInvalidRequest, len(ranks))
	}
	if len(fields) > 1 && fields[1] != "w" && fields[1] != "b" {
		return Position{}, fmt.Errorf("%w: invalid side to move %q", ErrInvalidRequest, fields[1])
	}

	pos := Position{FEN: strings.Join(fields, " ")}
	for _, m := range strings.Fields(moves) {
		if !uciMoveRegex.MatchString(m) {
			return Position{}, fmt.Errorf("%w: invalid move %q", ErrInvalidRequest, m)
		}
		pos.Moves = append(pos.Moves, m)
	}
	return pos, nil
}

// WhiteToMove reports the side to move after all moves have been played.
// A FEN without a side field is treated as White to move.
func (p Position) WhiteToMove() bool {
	white := true
	if fields := strings.Fields(p.FEN); len(fields) > 1 {
		white = fields[1] == "w"
	}
	if len(p.Moves)%2 == 1 {
		white = !white
	}
	return white
}

// Command renders the UCI position command.
func (p Position) Command() string {
	cmd := "position fen " + p.FEN
	if len(p.Moves) > 0 {
		cmd += " moves " + strings.Join(p.Moves, " ")
	}
	return cmd
}
