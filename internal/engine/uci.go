package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// UCIConfig configures a UCI engine subprocess.
type UCIConfig struct {
	Path             string
	Args             []string
	Env              []string // appended to the current environment
	Logger           *slog.Logger
	HandshakeTimeout time.Duration // default 10s
	StopTimeout      time.Duration // default 10s, bounds the drain after "stop"
}

// UCI drives a chess engine subprocess over the UCI protocol.
type UCI struct {
	cfg    UCIConfig
	log    *slog.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	exited chan struct{}

	readErr error // valid once lines is closed
	waitErr error // valid once exited is closed

	writeMu sync.Mutex

	mu          sync.Mutex
	name        string
	config      map[string]any
	optionNames map[string]string // lower-case -> canonical
	multiPV     int
	session     *uciSession
	closed      bool
	broken      error // set once the output stream no longer matches our commands
}

var _ Engine = (*UCI)(nil)

// StartUCI spawns the engine and completes the uci/isready handshake.
func StartUCI(ctx context.Context, cfg UCIConfig) (*UCI, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path required")
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	cmd := exec.Command(cfg.Path, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	e := &UCI{
		cfg:         cfg,
		log:         log.With("engine", cfg.Path),
		cmd:         cmd,
		stdin:       stdin,
		lines:       make(chan string, 256),
		exited:      make(chan struct{}),
		config:      make(map[string]any),
		optionNames: make(map[string]string),
		multiPV:     1,
	}
	go e.readLoop(stdout)

	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := e.handshake(hctx); err != nil {
		e.Close()
		return nil, err
	}
	e.log.Info("engine ready", "name", e.name, "options", len(e.config))
	return e, nil
}

func (e *UCI) readLoop(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		e.lines <- strings.TrimSpace(sc.Text())
	}
	e.readErr = sc.Err()
	if e.readErr == nil {
		e.readErr = io.EOF
	}
	close(e.lines)
	e.waitErr = e.cmd.Wait()
	close(e.exited)
}

func (e *UCI) send(cmd string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.log.Debug("engine <", "cmd", cmd)
	if _, err := io.WriteString(e.stdin, cmd+"\n"); err != nil {
		return fmt.Errorf("%w: write %q: %v", ErrEngineFailure, cmd, err)
	}
	return nil
}

func (e *UCI) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-e.lines:
		if !ok {
			return "", fmt.Errorf("%w: engine output closed: %v", ErrEngineFailure, e.readErr)
		}
		e.log.Debug("engine >", "line", line)
		return line, nil
	}
}

func (e *UCI) handshake(ctx context.Context) error {
	if err := e.send("uci"); err != nil {
		return err
	}
	for {
		line, err := e.readLine(ctx)
		if err != nil {
			return fmt.Errorf("uci handshake: %w", err)
		}
		switch {
		case line == "uciok":
			return e.sync(ctx)
		case strings.HasPrefix(line, "id name "):
			e.name = strings.TrimPrefix(line, "id name ")
		case strings.HasPrefix(line, "option "):
			e.addOption(line)
		}
	}
}

// sync sends isready and waits for readyok.
func (e *UCI) sync(ctx context.Context) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	for {
		line, err := e.readLine(ctx)
		if err != nil {
			return fmt.Errorf("isready: %w", err)
		}
		if line == "readyok" {
			return nil
		}
	}
}

var optionKeywords = map[string]bool{"name": true, "type": true, "default": true, "min": true, "max": true, "var": true}

// addOption records an "option name X type T default D" declaration.
func (e *UCI) addOption(line string) {
	fields := map[string][]string{}
	var key string
	for _, tok := range strings.Fields(line)[1:] {
		if optionKeywords[tok] {
			key = tok
			if _, ok := fields[key]; !ok {
				fields[key] = []string{}
			}
			continue
		}
		if key != "" {
			fields[key] = append(fields[key], tok)
		}
	}
	name := strings.Join(fields["name"], " ")
	if name == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.optionNames[strings.ToLower(name)] = name

	def, hasDefault := fields["default"]
	if !hasDefault {
		return
	}
	raw := strings.Join(def, " ")
	switch strings.Join(fields["type"], " ") {
	case "spin":
		if n, err := strconv.Atoi(raw); err == nil {
			e.config[name] = n
			return
		}
	case "check":
		e.config[name] = raw == "true"
		return
	case "button":
		return
	}
	if raw == "<empty>" {
		raw = ""
	}
	e.config[name] = raw
}

// SetOption sends a setoption command. Names the engine never declared are
// forwarded as given.
func (e *UCI) SetOption(ctx context.Context, name, value string) error {
	e.mu.Lock()
	if e.broken != nil {
		err := e.broken
		e.mu.Unlock()
		return err
	}
	canonical, ok := e.optionNames[strings.ToLower(name)]
	if !ok {
		canonical = name
	}
	e.mu.Unlock()

	if err := e.send(fmt.Sprintf("setoption name %s value %s", canonical, value)); err != nil {
		return err
	}
	if err := e.sync(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.config[canonical] = value
	e.mu.Unlock()
	return nil
}

// ReportedConfiguration returns the option defaults the engine declared,
// updated with every value set since.
func (e *UCI) ReportedConfiguration() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.config))
	for k, v := range e.config {
		out[k] = v
	}
	return out
}

// IsManagedOption reports whether name is handled by StartSession itself.
func (e *UCI) IsManagedOption(name string) bool {
	return IsManaged(name)
}

// Name is the engine's self-reported name.
func (e *UCI) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

// StartSession positions the engine and starts a timed search.
func (e *UCI) StartSession(ctx context.Context, pos Position, limit time.Duration, multiPV int) (Session, error) {
	if multiPV < 1 {
		multiPV = 1
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: time budget must be positive", ErrInvalidRequest)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: engine closed", ErrEngineFailure)
	}
	if e.broken != nil {
		err := e.broken
		e.mu.Unlock()
		return nil, err
	}
	if e.session != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: session already open", ErrEngineFailure)
	}
	changeMultiPV := e.multiPV != multiPV
	_, supportsMultiPV := e.optionNames["multipv"]
	e.mu.Unlock()

	if changeMultiPV && supportsMultiPV {
		if err := e.send(fmt.Sprintf("setoption name MultiPV value %d", multiPV)); err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.multiPV = multiPV
		e.mu.Unlock()
	}
	if err := e.send(pos.Command()); err != nil {
		return nil, err
	}
	if err := e.send(fmt.Sprintf("go movetime %d", limit.Milliseconds())); err != nil {
		return nil, err
	}

	s := &uciSession{eng: e, lines: make(map[int]LineRecord)}
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
	return s, nil
}

// fail marks the engine unusable and kills the process. Output still in
// flight from an abandoned search would otherwise be read as the next one's.
func (e *UCI) fail(cause error) {
	e.mu.Lock()
	if e.broken == nil {
		e.broken = fmt.Errorf("%w: engine out of sync: %v", ErrEngineFailure, cause)
	}
	e.mu.Unlock()

	e.log.Error("engine out of sync, killing", "error", cause)
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
}

// Done is closed once the engine process has exited.
func (e *UCI) Done() <-chan struct{} { return e.exited }

// Close asks the engine to quit and kills it if it does not.
func (e *UCI) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	_ = e.send("quit")
	_ = e.stdin.Close()

	// Keep draining output so the reader can reach Wait.
	lines := e.lines
	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-e.exited:
			e.log.Debug("engine exited", "error", e.waitErr)
			return nil
		case _, ok := <-lines:
			if !ok {
				lines = nil
			}
		case <-timeout:
			e.log.Warn("engine did not quit, killing")
			_ = e.cmd.Process.Kill()
			timeout = nil
		}
	}
}

type uciSession struct {
	eng      *UCI
	lines    map[int]LineRecord
	finished bool

	closed   bool
	final    []LineRecord
	closeErr error
}

func (s *uciSession) Next(ctx context.Context) (LineRecord, error) {
	for !s.finished {
		line, err := s.eng.readLine(ctx)
		if err != nil {
			return LineRecord{}, err
		}
		if rec, ok := s.consume(line); ok {
			return rec, nil
		}
	}
	return LineRecord{}, io.EOF
}

func (s *uciSession) consume(line string) (LineRecord, bool) {
	if strings.HasPrefix(line, "bestmove") {
		s.finished = true
		return LineRecord{}, false
	}
	u, ok := parseInfo(line)
	if !ok {
		return LineRecord{}, false
	}
	rec := u.mergeInto(s.lines[u.MultiPV])
	s.lines[u.MultiPV] = rec
	return rec, true
}

func (s *uciSession) Close() ([]LineRecord, error) {
	if s.closed {
		return s.final, s.closeErr
	}
	s.closed = true
	defer func() {
		s.eng.mu.Lock()
		s.eng.session = nil
		s.eng.mu.Unlock()
	}()

	if !s.finished {
		if err := s.eng.send("stop"); err != nil {
			s.eng.fail(err)
			s.closeErr = err
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.eng.cfg.StopTimeout)
		defer cancel()
		for !s.finished {
			line, err := s.eng.readLine(ctx)
			if err != nil {
				if ctx.Err() != nil {
					err = fmt.Errorf("%w: no bestmove after stop", ErrEngineFailure)
				}
				s.eng.fail(err)
				s.closeErr = err
				return nil, err
			}
			s.consume(line)
		}
	}

	ranks := make([]int, 0, len(s.lines))
	for r := range s.lines {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		s.final = append(s.final, s.lines[r])
	}
	return s.final, nil
}
