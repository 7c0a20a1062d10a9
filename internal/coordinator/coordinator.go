// Package coordinator serializes analysis requests against a single engine
// process and lets newer requests cut older ones short.
//
// Every analysis request takes a new generation number. The engine itself is
// guarded by one lock held for a whole session; the generation counter has its
// own lock so a running session can cheaply ask "has anyone newer arrived?"
// between engine updates. A session that finds it has been superseded stops
// polling, closes its session and still answers its caller with whatever
// lines it has.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rcliao/remote-engine/internal/engine"
	"github.com/rcliao/remote-engine/internal/format"
	"github.com/rcliao/remote-engine/internal/model"
	"github.com/rcliao/remote-engine/internal/observability"
	"github.com/rcliao/remote-engine/internal/options"
)

// Request is one analysis request.
type Request struct {
	FEN   string
	Moves string        // space separated UCI moves played after FEN
	Time  time.Duration // think time budget
}

// Analysis is the outcome of one request.
type Analysis struct {
	Envelope   model.Envelope
	Position   engine.Position
	Limit      time.Duration
	MultiPV    int
	Generation uint64
	// Superseded is set when a newer request arrived before this one got to
	// finish, so the engine was stopped early.
	Superseded bool
	Best       format.EncodedScore
}

// Config holds the coordinator's optional collaborators.
type Config struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// Coordinator owns the engine, its option store and the generation counter.
type Coordinator struct {
	eng     engine.Engine
	opts    *options.Store
	log     *slog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	genMu sync.Mutex
	gen   uint64

	// engineMu guards eng and opts for a whole session or configure call.
	engineMu sync.Mutex
}

// New returns a coordinator for eng.
func New(eng engine.Engine, cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/rcliao/remote-engine/internal/coordinator")
	}
	return &Coordinator{
		eng:     eng,
		opts:    options.New(eng),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
}

// Generation returns the latest generation handed out.
func (c *Coordinator) Generation() uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gen
}

func (c *Coordinator) nextGeneration() uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.gen++
	c.metrics.SetGeneration(c.gen)
	return c.gen
}

func (c *Coordinator) stale(gen uint64) bool {
	return c.Generation() != gen
}

// Analyse runs one analysis. It blocks until the engine is free, then
// searches for at most req.Time, less if a newer request arrives meanwhile.
// Requests that fail validation never take a generation.
func (c *Coordinator) Analyse(ctx context.Context, req Request) (*Analysis, error) {
	pos, err := engine.ParsePosition(req.FEN, req.Moves)
	if err != nil {
		c.metrics.ObserveAnalysis(observability.OutcomeInvalid, 0)
		return nil, err
	}
	if req.Time <= 0 {
		c.metrics.ObserveAnalysis(observability.OutcomeInvalid, 0)
		return nil, fmt.Errorf("%w: time must be positive", engine.ErrInvalidRequest)
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.Analyse")
	defer span.End()

	gen := c.nextGeneration()
	log := c.log.With("generation", gen)
	span.SetAttributes(attribute.Int64("analysis.generation", int64(gen)))

	waitStart := time.Now()
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	c.metrics.ObserveLockWait(time.Since(waitStart))
	heldFrom := time.Now()

	superseded := c.stale(gen)
	if superseded {
		log.Debug("superseded while waiting for the engine")
	}

	multiPV := c.opts.MultiPV()
	lines, cut, err := c.run(ctx, pos, req.Time, multiPV, gen)
	if err != nil {
		c.metrics.ObserveAnalysis(observability.OutcomeError, time.Since(heldFrom))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("analysis failed", "fen", pos.FEN, "error", err)
		return nil, err
	}
	superseded = superseded || cut
	if !superseded && c.stale(gen) {
		log.Debug("newer request arrived after the search finished")
	}

	outcome := observability.OutcomeComplete
	if superseded {
		outcome = observability.OutcomeSuperseded
	}
	c.metrics.ObserveAnalysis(outcome, time.Since(heldFrom))
	span.SetAttributes(
		attribute.Bool("analysis.superseded", superseded),
		attribute.Int("analysis.multipv", multiPV),
		attribute.Int("analysis.lines", len(lines)),
	)

	white := pos.WhiteToMove()
	a := &Analysis{
		Envelope:   format.Lines(lines, white),
		Position:   pos,
		Limit:      req.Time,
		MultiPV:    multiPV,
		Generation: gen,
		Superseded: superseded,
		Best:       format.Best(lines, white),
	}
	log.Info("analysis done",
		"fen", pos.FEN,
		"multipv", multiPV,
		"bestmove", a.Envelope.BestMove,
		"superseded", superseded,
		"held", time.Since(heldFrom))
	return a, nil
}

// run drives one session to completion or until gen goes stale. The session
// is closed on every path; its final lines are returned only when nothing
// failed.
func (c *Coordinator) run(ctx context.Context, pos engine.Position, limit time.Duration, multiPV int, gen uint64) (lines []engine.LineRecord, cut bool, err error) {
	sess, err := c.eng.StartSession(ctx, pos, limit, multiPV)
	if err != nil {
		return nil, false, engineError(err)
	}
	defer func() {
		final, cerr := sess.Close()
		if err != nil {
			return
		}
		if cerr != nil {
			lines, err = nil, engineError(cerr)
			return
		}
		lines = final
	}()

	for {
		if _, err := sess.Next(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, false, nil
			}
			return nil, false, engineError(err)
		}
		if c.stale(gen) {
			return nil, true, nil
		}
	}
}

// engineError marks unclassified engine errors as engine failures. Context
// errors and already classified errors pass through.
func engineError(err error) error {
	switch {
	case errors.Is(err, engine.ErrEngineFailure),
		errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", engine.ErrEngineFailure, err)
}

// Configure applies option updates in name order and returns the merged
// configuration. It waits for any running analysis to finish first.
func (c *Coordinator) Configure(ctx context.Context, values map[string]any) (map[string]any, error) {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := c.opts.Set(ctx, name, values[name]); err != nil {
			c.log.Error("configure failed", "option", name, "error", err)
			return nil, engineError(err)
		}
		c.metrics.ObserveConfigure(!c.eng.IsManagedOption(name))
		c.log.Info("option set", "option", name, "value", values[name])
	}
	return c.opts.Snapshot(), nil
}

// Config returns the merged configuration without changing it.
func (c *Coordinator) Config(ctx context.Context) map[string]any {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.opts.Snapshot()
}
