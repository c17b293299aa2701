package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/imsgdb/internal/report"
)

func statsCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print conversation, message, attachment and tapback totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			summary, err := db.Summary(context.Background())
			if err != nil {
				return err
			}

			format := "text"
			if asYAML {
				format = "yaml"
			}
			return report.Write(os.Stdout, report.New(cfg.DBPath, summary), format)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as YAML")

	return cmd
}
