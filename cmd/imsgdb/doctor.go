package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/imsgdb/internal/config"
	"github.com/Zuo-Peng/imsgdb/internal/index"
	"github.com/Zuo-Peng/imsgdb/internal/scan"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify export root, exporter, DB, and show stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			// check roots
			fmt.Println("=== Export ===")
			checkDir("Export root", cfg.ExportRoot)
			if path, err := exec.LookPath(cfg.ExporterBin); err != nil {
				fmt.Printf("  Exporter: %s (NOT FOUND)\n", cfg.ExporterBin)
			} else {
				fmt.Printf("  Exporter: %s (OK)\n", path)
			}

			// scan conversation dirs
			fmt.Println("\n=== Conversation Scan ===")
			convs, err := scan.Conversations(cfg.ExportRoot, layout(cfg))
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				missing := 0
				for _, c := range convs {
					if _, err := os.Stat(c.Transcript); err != nil {
						missing++
					}
				}
				fmt.Printf("  Conversation dirs:   %d\n", len(convs))
				fmt.Printf("  Missing transcripts: %d\n", missing)
			}

			// check DB
			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.DBPath)
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'imsgdb build' first)")
				return nil
			}

			db, err := index.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			counts, err := db.TableCounts(context.Background())
			if err != nil {
				return err
			}
			for _, table := range []string{"conversations", "messages", "attachments", "tapbacks"} {
				fmt.Printf("  %-14s %d\n", table+":", counts[table])
			}

			// check DB file size
			if info, err := os.Stat(cfg.DBPath); err == nil {
				sizeMB := float64(info.Size()) / 1024 / 1024
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", sizeMB)
			}

			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
