// Package model defines the analysis data types served and stored.
package model

import "time"

// Line is one formatted principal variation. Terminal lines (game over) carry
// only Move, Depth, RawScore and one of Score or Mate.
type Line struct {
	Move     string   `json:"move"`
	Depth    int      `json:"depth"`
	SelDepth *int     `json:"seldepth,omitempty"`
	MultiPV  *int     `json:"multipv,omitempty"`
	Nodes    *int64   `json:"nodes,omitempty"`
	NPS      *int64   `json:"nps,omitempty"`
	HashFull *int     `json:"hashfull,omitempty"`
	TBHits   *int64   `json:"tbhits,omitempty"`
	Time     *int     `json:"time,omitempty"`
	PV       []string `json:"pv,omitempty"`
	RawScore string   `json:"rawScore"`
	Score    *int     `json:"score,omitempty"`
	Mate     *int     `json:"mate,omitempty"`
}

// Envelope is the response to an analysis request.
type Envelope struct {
	BestMove string `json:"bestmove"`
	Threat   string `json:"threat"`
	Lines    []Line `json:"lines"`
}

// Analysis is a served analysis as kept in the history store.
type Analysis struct {
	ID         string    `json:"id"`
	FEN        string    `json:"fen"`
	Moves      []string  `json:"moves,omitempty"`
	TimeMillis int64     `json:"time_ms"`
	MultiPV    int       `json:"multipv"`
	Generation uint64    `json:"generation"`
	Superseded bool      `json:"superseded"`
	BestMove   string    `json:"bestmove"`
	Threat     string    `json:"threat"`
	IsMate     bool      `json:"is_mate"`
	Value      int       `json:"value"`
	Depth      int       `json:"depth"`
	Lines      []Line    `json:"lines,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
