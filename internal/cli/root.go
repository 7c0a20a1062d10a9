// Package cli implements the remote-engine CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rcliao/remote-engine/internal/logging"
	"github.com/rcliao/remote-engine/internal/store"
	"github.com/spf13/cobra"
)

var (
	dbPath   string
	logLevel string
	logJSON  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "remote-engine",
	Short: "Serve a UCI chess engine over HTTP",
	Long:  "Runs one UCI engine and answers analysis requests over HTTP. Newer requests cut older ones short. Served analyses are kept in SQLite.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "History database path (default: $REMOTE_ENGINE_DB or ~/.remote-engine/history.db)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $REMOTE_ENGINE_LOG_LEVEL or info)")
	RootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log JSON lines instead of text")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("REMOTE_ENGINE_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".remote-engine", "history.db")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func newLogger() *slog.Logger {
	level := logLevel
	if level == "" {
		level = os.Getenv("REMOTE_ENGINE_LOG_LEVEL")
	}
	log, err := logging.New(logging.Config{Level: level, JSON: logJSON})
	if err != nil {
		exitErr("logger", err)
	}
	slog.SetDefault(log)
	return log
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
