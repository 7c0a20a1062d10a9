package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rcliao/remote-engine/internal/coordinator"
	"github.com/rcliao/remote-engine/internal/engine"
	"github.com/rcliao/remote-engine/internal/store"
)

type handlers struct {
	analyzer Analyzer
	history  History
	log      *slog.Logger
	engine   string
}

func (h *handlers) handleAnalyse(c *gin.Context) {
	var req AnalyseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationMessage(err)})
		return
	}

	limit := time.Duration(*req.Time * float64(time.Millisecond))
	a, err := h.analyzer.Analyse(c.Request.Context(), coordinator.Request{
		FEN:   req.FEN,
		Moves: req.Moves,
		Time:  limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if h.history != nil {
		h.record(context.WithoutCancel(c.Request.Context()), a)
	}

	c.Header(HeaderGeneration, strconv.FormatUint(a.Generation, 10))
	c.Header(HeaderSuperseded, strconv.FormatBool(a.Superseded))
	c.JSON(http.StatusOK, a.Envelope)
}

// record stores a served analysis. Failures are logged, never returned.
func (h *handlers) record(ctx context.Context, a *coordinator.Analysis) {
	_, err := h.history.Record(ctx, store.RecordParams{
		FEN:        a.Position.FEN,
		Moves:      a.Position.Moves,
		TimeMillis: a.Limit.Milliseconds(),
		MultiPV:    a.MultiPV,
		Generation: a.Generation,
		Superseded: a.Superseded,
		BestMove:   a.Envelope.BestMove,
		Threat:     a.Envelope.Threat,
		IsMate:     a.Best.IsMate,
		Value:      a.Best.Value,
		Depth:      a.Best.Depth,
		Lines:      a.Envelope.Lines,
	})
	if err != nil {
		h.log.Warn("record analysis", "generation", a.Generation, "error", err)
	}
}

func (h *handlers) handleConfigure(c *gin.Context) {
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	snap, err := h.analyzer.Configure(c.Request.Context(), values)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.analyzer.Config(c.Request.Context()))
}

func (h *handlers) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"engine":     h.engine,
		"generation": h.analyzer.Generation(),
	})
}

func (h *handlers) handleHistoryList(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := validate.Struct(q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationMessage(err)})
		return
	}

	analyses, err := h.history.List(c.Request.Context(), store.ListParams{
		FEN:        q.FEN,
		Superseded: q.Superseded,
		Limit:      q.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": analyses, "count": len(analyses)})
}

func (h *handlers) handleHistoryGet(c *gin.Context) {
	a, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrEngineFailure):
		status = http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
