package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/imsgdb/internal/config"
	"github.com/Zuo-Peng/imsgdb/internal/index"
	"github.com/Zuo-Peng/imsgdb/internal/report"
)

func buildCmd() *cobra.Command {
	var exportRoot, dbPath, format string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Rebuild the database from the exported conversations",
		Long: `Deletes the database and imports every conversation directory under the
export root (p<digits>/p<digits>.txt plus its attachments). Conversations
that fail are logged and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if exportRoot != "" {
				cfg.ExportRoot = exportRoot
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}

			runID := uuid.NewString()
			log := slog.Default().With("run", runID)
			log.Info("building database", "export", cfg.ExportRoot, "db", cfg.DBPath)

			db, err := index.CreateDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("create db: %w", err)
			}
			defer db.Close()

			ctx := context.Background()
			stats, err := index.Build(ctx, db, index.BuildOptions{
				ExportRoot: cfg.ExportRoot,
				Layout:     layout(cfg),
				SelfLabel:  cfg.SelfLabel,
				BatchSize:  cfg.BatchSize,
				Logger:     log,
			})
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			log.Info("build finished", "stats", stats.String())

			summary, err := db.Summary(ctx)
			if err != nil {
				return err
			}
			return report.Write(os.Stdout, report.New(cfg.DBPath, summary).WithBuild(runID, stats), format)
		},
	}

	cmd.Flags().StringVar(&exportRoot, "export", "", "Export root (default from config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database file (default from config)")
	cmd.Flags().StringVar(&format, "format", "text", "Report format (text/yaml)")

	return cmd
}
