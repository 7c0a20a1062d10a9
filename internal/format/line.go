package format

import (
	"github.com/rcliao/remote-engine/internal/engine"
	"github.com/rcliao/remote-engine/internal/model"
)

// Line formats one engine line. A depth of 0 means the game is over
// (checkmate or stalemate) and no move exists.
func Line(rec engine.LineRecord, whiteToMove bool) model.Line {
	enc := Encode(rec.Score, whiteToMove, rec.Depth)
	prefix := "cp "
	if rec.Score.Mate {
		prefix = "mate "
	}

	var out model.Line
	if rec.Depth == 0 {
		out = model.Line{
			Move:     engine.NoMove,
			Depth:    0,
			RawScore: prefix + rec.Score.String(),
		}
	} else {
		multiPV := rec.MultiPV
		pv := append([]string{}, rec.PV...)
		move := engine.NoMove
		if len(pv) > 0 {
			move = pv[0]
		}
		out = model.Line{
			Move:     move,
			Depth:    rec.Depth,
			SelDepth: rec.SelDepth,
			MultiPV:  &multiPV,
			Nodes:    rec.Nodes,
			NPS:      rec.NPS,
			HashFull: rec.HashFull,
			TBHits:   rec.TBHits,
			Time:     rec.Time,
			PV:       pv,
			RawScore: prefix + rec.Score.String(),
		}
	}

	v := enc.Value
	if enc.IsMate {
		out.Mate = &v
	} else {
		out.Score = &v
	}
	return out
}

// Lines builds the envelope for a set of lines already ordered by multi-PV
// rank. Best move and threat come from the first line only.
func Lines(recs []engine.LineRecord, whiteToMove bool) model.Envelope {
	if len(recs) == 0 {
		// No info line at all: the engine had nothing to search.
		recs = []engine.LineRecord{{Depth: 0, MultiPV: 1, Score: engine.Cp(0)}}
	}

	env := model.Envelope{
		BestMove: engine.NoMove,
		Threat:   engine.NoMove,
		Lines:    make([]model.Line, 0, len(recs)),
	}
	for _, rec := range recs {
		env.Lines = append(env.Lines, Line(rec, whiteToMove))
	}

	if first := recs[0]; first.Depth > 0 {
		if len(first.PV) > 0 {
			env.BestMove = first.PV[0]
		}
		if len(first.PV) > 1 {
			env.Threat = first.PV[1]
		}
	}
	return env
}

// Best encodes the first line's score, or a zero centipawn score when there
// are no lines.
func Best(recs []engine.LineRecord, whiteToMove bool) EncodedScore {
	if len(recs) == 0 {
		return EncodedScore{}
	}
	return Encode(recs[0].Score, whiteToMove, recs[0].Depth)
}
