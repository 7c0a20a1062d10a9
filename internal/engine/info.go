package engine

import (
	"strconv"
	"strings"
)

// infoLine is one parsed "info" line. Optional fields left nil (and Depth
// when hasDepth is false) were absent from the line.
type infoLine struct {
	LineRecord
	hasDepth bool
}

// mergeInto overlays the fields present on the line onto prev, the record
// already known for the same rank.
func (u infoLine) mergeInto(prev LineRecord) LineRecord {
	out := prev
	out.MultiPV = u.MultiPV
	out.Score = u.Score
	if u.hasDepth {
		out.Depth = u.Depth
	}
	if u.SelDepth != nil {
		out.SelDepth = u.SelDepth
	}
	if u.Nodes != nil {
		out.Nodes = u.Nodes
	}
	if u.NPS != nil {
		out.NPS = u.NPS
	}
	if u.HashFull != nil {
		out.HashFull = u.HashFull
	}
	if u.TBHits != nil {
		out.TBHits = u.TBHits
	}
	if u.Time != nil {
		out.Time = u.Time
	}
	if u.PV != nil {
		out.PV = u.PV
	}
	return out
}

// parseInfo parses a UCI "info" line. It reports false for lines that carry
// no score, such as currmove updates and "info string" chatter.
func parseInfo(line string) (infoLine, bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || tokens[0] != "info" {
		return infoLine{}, false
	}

	rec := infoLine{LineRecord: LineRecord{MultiPV: 1}}
	hasScore := false
	for i := 1; i < len(tokens); i++ {
		next := func() string {
			if i+1 < len(tokens) {
				i++
				return tokens[i]
			}
			return ""
		}
		switch tokens[i] {
		case "string":
			return infoLine{}, false
		case "depth":
			if n, err := strconv.Atoi(next()); err == nil {
				rec.Depth, rec.hasDepth = n, true
			}
		case "seldepth":
			rec.SelDepth = intPtr(next())
		case "multipv":
			if n, err := strconv.Atoi(next()); err == nil && n > 0 {
				rec.MultiPV = n
			}
		case "score":
			kind := next()
			v, err := strconv.Atoi(next())
			if err != nil {
				continue
			}
			switch kind {
			case "cp":
				rec.Score, hasScore = Cp(v), true
			case "mate":
				rec.Score, hasScore = MateIn(v), true
			}
		case "lowerbound", "upperbound":
		case "nodes":
			rec.Nodes = int64Ptr(next())
		case "nps":
			rec.NPS = int64Ptr(next())
		case "hashfull":
			rec.HashFull = intPtr(next())
		case "tbhits":
			rec.TBHits = int64Ptr(next())
		case "time":
			rec.Time = intPtr(next())
		case "pv":
			rec.PV = append([]string(nil), tokens[i+1:]...)
			i = len(tokens)
		case "currmove", "currmovenumber", "cpuload":
			i++
		case "wdl":
			i += 3
		case "refutation", "currline":
			// Variable length move lists; nothing after them is ours.
			i = len(tokens)
		}
	}
	return rec, hasScore
}

func intPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func int64Ptr(s string) *int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
