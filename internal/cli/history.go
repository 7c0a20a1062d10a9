package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/remote-engine/internal/store"
)

func init() {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect served analyses",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent analyses, newest first",
		Run:   runHistoryList,
	}
	listCmd.Flags().String("fen", "", "Filter by position")
	listCmd.Flags().IntP("limit", "l", 20, "Max results")
	listCmd.Flags().Bool("superseded", false, "Only analyses cut short by a newer request")
	listCmd.Flags().Bool("ids-only", false, "Only output ids and best moves")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one analysis with all its lines",
		Args:  cobra.ExactArgs(1),
		Run:   runHistoryGet,
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete analyses older than a given age",
		Run:   runHistoryPrune,
	}
	pruneCmd.Flags().String("older-than", "", "Age such as 7d, 24h, 30m (required)")
	pruneCmd.Flags().Bool("dry-run", false, "Only count what would be deleted")
	pruneCmd.MarkFlagRequired("older-than")

	historyCmd.AddCommand(listCmd, getCmd, pruneCmd)
	RootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) {
	fen, _ := cmd.Flags().GetString("fen")
	limit, _ := cmd.Flags().GetInt("limit")
	superseded, _ := cmd.Flags().GetBool("superseded")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p := store.ListParams{FEN: fen, Limit: limit}
	if superseded {
		p.Superseded = &superseded
	}
	analyses, err := s.List(cmd.Context(), p)
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, a := range analyses {
			fmt.Printf("%s %s\n", a.ID, a.BestMove)
		}
		return
	}

	b, _ := json.MarshalIndent(analyses, "", "  ")
	fmt.Println(string(b))
}

func runHistoryGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	a, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	b, _ := json.MarshalIndent(a, "", "  ")
	fmt.Println(string(b))
}

func runHistoryPrune(cmd *cobra.Command, args []string) {
	olderThan, _ := cmd.Flags().GetString("older-than")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	age, err := store.ParseAge(olderThan)
	if err != nil {
		exitErr("older-than", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.Prune(cmd.Context(), store.PruneParams{OlderThan: age, DryRun: dryRun})
	if err != nil {
		exitErr("prune", err)
	}

	b, _ := json.MarshalIndent(map[string]any{"pruned": n, "dry_run": dryRun}, "", "  ")
	fmt.Println(string(b))
}
