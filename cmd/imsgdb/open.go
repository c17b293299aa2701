package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/imsgdb/internal/open"
)

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <message-id>",
		Short: "Open the source transcript in $EDITOR at the message's line",
		Long:  `Accepts a message id (42) or a copied reference (+15551234567#42).`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, id, err := parseReference(args[0])
			if err != nil {
				return err
			}
			if id == 0 {
				return fmt.Errorf("open needs a message id, got %q", args[0])
			}

			cfg, db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			return open.OpenMessage(context.Background(), db, cfg.ExportRoot, layout(cfg), id)
		},
	}
}
