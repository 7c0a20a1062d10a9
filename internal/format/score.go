// Package format turns engine line records into the JSON shapes served to clients.
package format

import "github.com/rcliao/remote-engine/internal/engine"

// EncodedScore is a score from White's point of view.
type EncodedScore struct {
	IsMate bool `json:"is_mate"`
	Value  int  `json:"value"`
	Depth  int  `json:"depth"`
}

// Absolute reorients a side-to-move relative score to White's point of view.
func Absolute(s engine.Score, whiteToMove bool) engine.Score {
	if whiteToMove {
		return s
	}
	return s.Negate()
}

// Encode reorients s to White's point of view and tags it with the depth it
// was observed at.
func Encode(s engine.Score, whiteToMove bool, depth int) EncodedScore {
	abs := Absolute(s, whiteToMove)
	return EncodedScore{IsMate: abs.Mate, Value: abs.Value, Depth: depth}
}
