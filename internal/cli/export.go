package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export analysis history as JSON",
		Long:  "Export every recorded analysis, oldest first. Filter by position with --fen.",
		Run:   runExport,
	}

	cmd.Flags().String("fen", "", "Filter by position")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	fen, _ := cmd.Flags().GetString("fen")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	analyses, err := s.ExportAll(cmd.Context(), fen)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(analyses, "", "  ")
	fmt.Println(string(b))
}
