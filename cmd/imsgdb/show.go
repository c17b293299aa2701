package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/imsgdb/internal/render"
)

func showCmd() *cobra.Command {
	var hit int64
	var contextN, width int
	var query string

	cmd := &cobra.Command{
		Use:   "show <target>",
		Short: "Show a conversation with context around a hit",
		Long:  `Show a conversation. The argument is a target (+15551234567) or a copied reference (+15551234567#42), which sets the hit.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, refID, err := parseReference(args[0])
			if err != nil {
				return err
			}
			if target == "" {
				return fmt.Errorf("show needs a target, got %q", args[0])
			}
			if hit == 0 {
				hit = refID
			}

			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			out, _, err := render.RenderConversation(context.Background(), db, target, render.Options{
				HitMessageID: hit,
				Context:      contextN,
				Width:        width,
				Query:        query,
			})
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().Int64Var(&hit, "hit", 0, "Message ID to highlight")
	cmd.Flags().IntVar(&contextN, "context", 10, "Messages before/after hit to show (-1 = all)")
	cmd.Flags().IntVar(&width, "width", 0, "Wrap width (0 = no wrap)")
	cmd.Flags().StringVar(&query, "query", "", "Search query for keyword highlighting")

	return cmd
}
