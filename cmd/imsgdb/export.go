package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/imsgdb/internal/config"
	"github.com/Zuo-Peng/imsgdb/internal/export"
)

func exportCmd() *cobra.Command {
	var force, skipRename bool

	cmd := &cobra.Command{
		Use:   "export <target>...",
		Short: "Run the exporter for each target and normalize directory names",
		Long: `Runs the configured exporter (imessage-exporter -f txt -c clone) for every
target (+<digits>) into the export root, then renames "+" in file and
directory names to the configured prefix so 'imsgdb build' can find them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			exp := &export.CommandExporter{
				Bin:    cfg.ExporterBin,
				Root:   cfg.ExportRoot,
				Force:  force,
				Stdout: os.Stderr,
				Stderr: os.Stderr,
				Logger: slog.Default(),
			}

			ctx := context.Background()
			failed := 0
			for _, target := range args {
				dir, err := exp.Export(ctx, target)
				if err != nil {
					slog.Error("export failed", "target", target, "error", err)
					failed++
					continue
				}
				slog.Info("exported", "target", target, "dir", dir)
			}

			if !skipRename {
				n, err := export.NormalizeNames(cfg.ExportRoot, cfg.DirPrefix)
				if err != nil {
					return err
				}
				slog.Info("normalized names", "renamed", n, "prefix", cfg.DirPrefix)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d exports failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Remove an existing export for the target first")
	cmd.Flags().BoolVar(&skipRename, "no-rename", false, "Keep '+' in exported names")

	return cmd
}
