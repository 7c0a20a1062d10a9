// Package options tracks engine option overrides and merges them with the
// engine's own reported configuration.
package options

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Engine is the part of the engine an option store needs.
type Engine interface {
	SetOption(ctx context.Context, name, value string) error
	ReportedConfiguration() map[string]any
	IsManagedOption(name string) bool
}

// Store holds locally set option values. It has no lock of its own: every
// caller already holds the coordinator's engine lock.
type Store struct {
	eng    Engine
	values map[string]any
}

// New returns an empty store bound to eng.
func New(eng Engine) *Store {
	return &Store{eng: eng, values: make(map[string]any)}
}

// Set records name=value and forwards it to the engine unless the engine
// manages that option itself. The local value is kept even if forwarding
// fails.
func (s *Store) Set(ctx context.Context, name string, value any) (map[string]any, error) {
	s.values[name] = value
	if !s.eng.IsManagedOption(name) {
		if err := s.eng.SetOption(ctx, name, Render(value)); err != nil {
			return nil, fmt.Errorf("set option %s: %w", name, err)
		}
	}
	return s.Snapshot(), nil
}

// Snapshot returns the engine's reported configuration overlaid with local
// values. Local values win.
func (s *Store) Snapshot() map[string]any {
	out := s.eng.ReportedConfiguration()
	if out == nil {
		out = make(map[string]any, len(s.values))
	}
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Get returns the local value for name. There is no fallback to the engine.
func (s *Store) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// MultiPV is the number of lines to compute, from a local MultiPV value of
// any case. It defaults to 1.
func (s *Store) MultiPV() int {
	v, ok := s.Get("MultiPV")
	if !ok {
		for k, val := range s.values {
			if strings.EqualFold(k, "MultiPV") {
				v, ok = val, true
				break
			}
		}
	}
	if !ok {
		return 1
	}
	n, ok := toInt(v)
	if !ok || n < 1 {
		return 1
	}
	return n
}

// Render formats a JSON-decoded value as a UCI option value.
func Render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
