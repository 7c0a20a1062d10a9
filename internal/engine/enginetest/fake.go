// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rcliao/remote-engine/internal/engine"
)

// Call is one recorded interaction with the fake.
type Call struct {
	Op    string // "setoption", "start", "close"
	Name  string
	Value string
}

// Fake implements engine.Engine. Sessions either replay Lines (followed by
// end of stream) or, when Manual is set, wait for the test to Feed them.
// Forwarded options show up in Reported unless StaticReported is set, which
// models an engine whose reported configuration never reflects them.
type Fake struct {
	Lines          []engine.LineRecord
	Manual         bool
	Reported       map[string]any
	StaticReported bool

	SetOptionErr error
	StartErr     error
	NextErr      error // returned by Next after the scripted lines
	CloseErr     error

	mu         sync.Mutex
	calls      []Call
	open       int
	maxOpen    int
	violations int
	sessions   []*Session
	started    chan *Session
}

var _ engine.Engine = (*Fake)(nil)

// New returns a fake that replays lines in every session.
func New(lines ...engine.LineRecord) *Fake {
	return &Fake{
		Lines:    lines,
		Reported: map[string]any{},
		started:  make(chan *Session, 256),
	}
}

// Started delivers sessions as soon as they have been opened. Sessions are
// dropped from the channel once its buffer is full.
func (f *Fake) Started() <-chan *Session { return f.started }

func (f *Fake) record(c Call) {
	f.calls = append(f.calls, c)
}

// StartSession opens a session. Opening a second session while one is still
// open counts as a violation and fails.
func (f *Fake) StartSession(ctx context.Context, pos engine.Position, limit time.Duration, multiPV int) (engine.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "start", Name: pos.FEN})
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.open > 0 {
		f.violations++
		return nil, errors.New("enginetest: session already open")
	}
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}

	s := &Session{
		fake:    f,
		Pos:     pos,
		Limit:   limit,
		MultiPV: multiPV,
		Index:   len(f.sessions),
		latest:  map[int]engine.LineRecord{},
		nextErr: f.NextErr,
	}
	if f.Manual {
		s.updates = make(chan engine.LineRecord)
	} else {
		s.updates = make(chan engine.LineRecord, len(f.Lines))
		for _, l := range f.Lines {
			s.updates <- l
		}
		close(s.updates)
	}
	f.sessions = append(f.sessions, s)
	select {
	case f.started <- s:
	default:
	}
	return s, nil
}

func (f *Fake) SetOption(ctx context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "setoption", Name: name, Value: value})
	if f.SetOptionErr != nil {
		return f.SetOptionErr
	}
	if !f.StaticReported {
		f.Reported[name] = value
	}
	return nil
}

func (f *Fake) ReportedConfiguration() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(f.Reported))
	for k, v := range f.Reported {
		out[k] = v
	}
	return out
}

func (f *Fake) IsManagedOption(name string) bool { return engine.IsManaged(name) }

func (f *Fake) Close() error { return nil }

// Calls returns a copy of the call log.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// SetOptionNames lists the option names forwarded to the engine, in order.
func (f *Fake) SetOptionNames() []string {
	var names []string
	for _, c := range f.Calls() {
		if c.Op == "setoption" {
			names = append(names, c.Name)
		}
	}
	return names
}

// MaxOpen is the highest number of simultaneously open sessions observed.
func (f *Fake) MaxOpen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

// Violations counts attempts to open a session while another was open.
func (f *Fake) Violations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.violations
}

// Open is the number of sessions currently open.
func (f *Fake) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Session is a fake engine.Session.
type Session struct {
	Pos     engine.Position
	Limit   time.Duration
	MultiPV int
	Index   int

	fake    *Fake
	updates chan engine.LineRecord
	nextErr error

	mu     sync.Mutex
	latest map[int]engine.LineRecord
	closed bool
}

// Feed delivers one line to a manual session. It blocks until Next takes it.
func (s *Session) Feed(rec engine.LineRecord) { s.updates <- rec }

// Offer is Feed with a timeout. It reports whether Next took the line.
func (s *Session) Offer(rec engine.LineRecord, d time.Duration) bool {
	select {
	case s.updates <- rec:
		return true
	case <-time.After(d):
		return false
	}
}

// End finishes a manual session's stream.
func (s *Session) End() { close(s.updates) }

// Fail finishes a manual session's stream with err instead of end of stream.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	s.nextErr = err
	s.mu.Unlock()
	close(s.updates)
}

func (s *Session) Next(ctx context.Context) (engine.LineRecord, error) {
	select {
	case <-ctx.Done():
		return engine.LineRecord{}, ctx.Err()
	case rec, ok := <-s.updates:
		if !ok {
			s.mu.Lock()
			err := s.nextErr
			s.mu.Unlock()
			if err != nil {
				return engine.LineRecord{}, err
			}
			return engine.LineRecord{}, io.EOF
		}
		if rec.MultiPV == 0 {
			rec.MultiPV = 1
		}
		s.mu.Lock()
		s.latest[rec.MultiPV] = rec
		s.mu.Unlock()
		return rec, nil
	}
}

func (s *Session) Close() ([]engine.LineRecord, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.lines(), nil
	}
	s.closed = true
	s.mu.Unlock()

	s.fake.mu.Lock()
	s.fake.open--
	s.fake.record(Call{Op: "close", Name: s.Pos.FEN})
	closeErr := s.fake.CloseErr
	s.fake.mu.Unlock()
	if closeErr != nil {
		return nil, closeErr
	}
	return s.lines(), nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) lines() []engine.LineRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	ranks := make([]int, 0, len(s.latest))
	for r := range s.latest {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	out := make([]engine.LineRecord, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, s.latest[r])
	}
	return out
}
