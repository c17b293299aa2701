package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/imsgdb/internal/search"
	"github.com/Zuo-Peng/imsgdb/internal/tui"
)

func listCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse all conversations, busiest first",
		Long:  `Opens a TUI panel showing all imported conversations by message count. Type to search message text instead. When stdout is not a terminal, prints one TSV row per conversation.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if term.IsTerminal(int(os.Stdout.Fd())) {
				return tui.RunList(db, search.Options{Limit: limit})
			}

			convs, err := search.ListAll(context.Background(), db, limit)
			if err != nil {
				return err
			}
			for _, c := range convs {
				fmt.Printf("%s\t%d\t%d\t%s\t%s\n", c.Target, c.MessageCount, c.AttachmentCount, c.FirstDate, c.LastDate)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Max results (0 = no limit)")

	return cmd
}
