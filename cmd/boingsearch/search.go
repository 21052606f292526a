package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitbuilder587/boing-search/internal/search"
	"github.com/kitbuilder587/boing-search/internal/textfold"
)

var (
	searchPremium bool
	searchPages   int
	searchASCII   bool
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [flags] query...",
	Short: "Run a one-off search and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchPremium, "premium", false, "prefer the premium provider")
	searchCmd.Flags().IntVar(&searchPages, "pages", 1, "number of pages to fetch")
	searchCmd.Flags().BoolVar(&searchASCII, "ascii", false, "fold result text to plain ASCII")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON lines")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchPages < 1 {
		return fmt.Errorf("--pages must be at least 1")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pref := search.PreferFree
	if searchPremium {
		pref = search.PreferPremium
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	query := strings.Join(args, " ")

	resp, err := a.engine.FirstSearch(ctx, query, pref)
	if err != nil {
		return err
	}

	n := 0
	for page := 1; ; page++ {
		for _, rec := range resp.Records {
			n++
			if searchASCII {
				rec.Title = textfold.ASCII(rec.Title)
				rec.Snippet = textfold.ASCII(rec.Snippet)
				rec.DisplayedLink = textfold.ASCII(rec.DisplayedLink)
			}
			if err := printRecord(cmd, n, rec); err != nil {
				return err
			}
		}

		if page >= searchPages || resp.Continuation.IsEmpty() {
			break
		}
		resp, err = a.engine.NextPage(ctx, resp.Continuation)
		if err != nil {
			return fmt.Errorf("page %d: %w", page+1, err)
		}
	}

	if n == 0 && !searchJSON {
		fmt.Fprintln(out, "no results")
	}
	return nil
}

func printRecord(cmd *cobra.Command, n int, rec search.Record) error {
	out := cmd.OutOrStdout()
	if searchJSON {
		return json.NewEncoder(out).Encode(rec)
	}
	fmt.Fprintf(out, "%d. %s\n   %s\n", n, rec.Title, rec.Link)
	if rec.Snippet != "" {
		fmt.Fprintf(out, "   %s\n", rec.Snippet)
	}
	return nil
}
