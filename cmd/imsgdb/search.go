package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/imsgdb/internal/search"
	"github.com/Zuo-Peng/imsgdb/internal/tui"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorGreen   = "\033[1;32m"
	sColorDim     = "\033[2m"
)

func colorizeSender(sender string, fromMe bool) string {
	if fromMe {
		return sColorBlue + sender + sColorReset
	}
	return sColorGreen + sender + sColorReset
}

func colorizeSnippet(snippet string) string {
	snippet = strings.ReplaceAll(snippet, ">>>", sColorBoldRed)
	snippet = strings.ReplaceAll(snippet, "<<<", sColorReset)
	return snippet
}

func searchCmd() *cobra.Command {
	var target, sender string
	var mine, theirs, duplicates bool
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Substring search across message text",
		Long: `Search message text. Output is TSV for fzf integration:
  target, messageId, date, sender, snippet

Recommended shell function (add to .zshrc):
  imf() {
    imsgdb search "$*" | fzf \
      --ansi \
      --delimiter='\t' --with-nth=3.. \
      --preview 'imsgdb show {1} --hit {2} --context 5 --query {q}' \
      --preview-window=right:60%:wrap \
      --bind 'enter:execute(imsgdb open {2})'
  }`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mine && theirs {
				return fmt.Errorf("--me and --them are mutually exclusive")
			}

			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			opts := search.Options{
				Target:            target,
				Sender:            sender,
				IncludeDuplicates: duplicates,
				Limit:             limit,
			}
			if mine || theirs {
				opts.FromMe = &mine
			}

			// Interactive TUI when stdout is a terminal; TSV output for pipes
			if term.IsTerminal(int(os.Stdout.Fd())) {
				return tui.Run(db, args[0], opts)
			}

			opts.Query = args[0]
			results, err := search.Search(context.Background(), db, opts)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}

			for _, r := range results {
				snippet := strings.ReplaceAll(r.Snippet, "\t", " ")
				snippet = colorizeSnippet(snippet)
				// first two fields (target, messageID) stay plain for fzf {1} {2}
				fmt.Printf("%s\t%d\t%s%s%s\t%s\t%s\n",
					r.Target,
					r.MessageID,
					sColorDim, r.Date, sColorReset,
					colorizeSender(r.Sender, r.IsFromMe),
					snippet,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Limit to one conversation (+<digits>)")
	cmd.Flags().StringVar(&sender, "sender", "", "Filter by sender label")
	cmd.Flags().BoolVar(&mine, "me", false, "Only messages sent by me")
	cmd.Flags().BoolVar(&theirs, "them", false, "Only messages sent to me")
	cmd.Flags().BoolVar(&duplicates, "duplicates", false, "Include messages marked as duplicates")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")

	return cmd
}
