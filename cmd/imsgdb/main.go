package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/imsgdb/internal/config"
	"github.com/Zuo-Peng/imsgdb/internal/index"
	"github.com/Zuo-Peng/imsgdb/internal/scan"
)

var version = "dev"

func main() {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:     "imsgdb",
		Short:   "iMessage DB - turn iMessage text exports into a queryable SQLite database",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel == "" {
				if cfg, err := config.Load(); err == nil {
					logLevel = cfg.LogLevel
				}
			}
			setupLogging(logLevel)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug/info/warn/error), default from config")

	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging installs the default logger. Logs go to stderr so command
// output on stdout stays pipeable.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func layout(cfg *config.Config) scan.Layout {
	return scan.Layout{Prefix: cfg.DirPrefix, MinDigits: cfg.MinDigits}
}

// openStore loads the config and opens the existing database.
func openStore() (*config.Config, *index.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := index.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (run 'imsgdb build' first)", err)
	}
	return cfg, db, nil
}

// parseReference accepts "+15551234567#42", "+15551234567" or "42".
// Missing parts come back as "" and 0.
func parseReference(s string) (target string, id int64, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, fmt.Errorf("empty reference")
	}
	target, idPart, hasID := strings.Cut(s, "#")
	if !strings.HasPrefix(target, "+") {
		if hasID {
			return "", 0, fmt.Errorf("bad reference %q: target must start with +", s)
		}
		// bare message id
		target, idPart, hasID = "", s, true
	}
	if hasID {
		id, err = strconv.ParseInt(idPart, 10, 64)
		if err != nil || id <= 0 {
			return "", 0, fmt.Errorf("bad message id in %q", s)
		}
	}
	return target, id, nil
}
