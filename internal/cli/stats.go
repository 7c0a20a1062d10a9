package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show history database statistics",
		Long:  "Show analysis counts, the superseded share and the most analysed positions.",
		Run:   runStats,
	}

	cmd.Flags().Bool("brief", false, "Omit the per-position breakdown")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	brief, _ := cmd.Flags().GetBool("brief")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), getDBPath())
	if err != nil {
		exitErr("stats", err)
	}
	if brief {
		stats.Positions = nil
	}

	b, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(b))
}
