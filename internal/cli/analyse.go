package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/remote-engine/internal/coordinator"
	"github.com/rcliao/remote-engine/internal/engine"
	"github.com/rcliao/remote-engine/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyse <executable> [-- engine args...]",
		Short: "Analyse one position and print the result",
		Long:  "Start the engine, analyse a single position and print the same JSON envelope POST /analyse returns.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAnalyse,
	}

	cmd.Flags().String("fen", "", "Position to analyse (required)")
	cmd.Flags().String("moves", "", "Space-separated UCI moves played after the position")
	cmd.Flags().IntP("time", "t", 1000, "Think time in milliseconds")
	cmd.Flags().StringArrayP("option", "o", nil, "Engine option as Name:Value (repeatable)")
	cmd.Flags().Bool("record", false, "Also record the analysis in the history database")

	cmd.MarkFlagRequired("fen")

	RootCmd.AddCommand(cmd)
}

func runAnalyse(cmd *cobra.Command, args []string) {
	fen, _ := cmd.Flags().GetString("fen")
	moves, _ := cmd.Flags().GetString("moves")
	millis, _ := cmd.Flags().GetInt("time")
	optFlags, _ := cmd.Flags().GetStringArray("option")
	record, _ := cmd.Flags().GetBool("record")

	log := newLogger()
	opts, err := parseOptions(optFlags)
	if err != nil {
		exitErr("options", err)
	}

	ctx := cmd.Context()
	eng, err := engine.StartUCI(ctx, engine.UCIConfig{Path: args[0], Args: args[1:], Logger: log})
	if err != nil {
		exitErr("start engine", err)
	}
	defer eng.Close()

	coord := coordinator.New(eng, coordinator.Config{Logger: log})
	if err := seedOptions(ctx, coord, opts); err != nil {
		eng.Close()
		exitErr("apply options", err)
	}

	a, err := coord.Analyse(ctx, coordinator.Request{
		FEN:   fen,
		Moves: moves,
		Time:  time.Duration(millis) * time.Millisecond,
	})
	if err != nil {
		eng.Close()
		exitErr("analyse", err)
	}

	if record {
		s, err := openStore()
		if err != nil {
			eng.Close()
			exitErr("open store", err)
		}
		defer s.Close()
		if _, err := s.Record(ctx, store.RecordParams{
			FEN:        a.Position.FEN,
			Moves:      a.Position.Moves,
			TimeMillis: a.Limit.Milliseconds(),
			MultiPV:    a.MultiPV,
			Generation: a.Generation,
			BestMove:   a.Envelope.BestMove,
			Threat:     a.Envelope.Threat,
			IsMate:     a.Best.IsMate,
			Value:      a.Best.Value,
			Depth:      a.Best.Depth,
			Lines:      a.Envelope.Lines,
		}); err != nil {
			log.Warn("record analysis", "error", err)
		}
	}

	b, _ := json.MarshalIndent(a.Envelope, "", "  ")
	fmt.Println(string(b))
}
