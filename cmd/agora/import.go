package main

import (
	"errors"
	"fmt"
	"io"

	"agora/internal/feed"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var importAll bool

var importCmd = &cobra.Command{
	Use:   "import [feed-id]",
	Short: "Import new items from a feed",
	Long: `Import new items from the given feed, or from every active feed with --all.

Items whose link is already published are counted as duplicates.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importAll == (len(args) == 1) {
			return errors.New("give either a feed id or --all")
		}

		svc, err := newServices(cfg, db, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer svc.Close()

		ctx := cmd.Context()
		var ids []string
		if importAll {
			feeds, err := svc.feeds.ListFeeds(ctx)
			if err != nil {
				return fmt.Errorf("failed to list feeds: %w", err)
			}
			for _, f := range feeds {
				if f.Active {
					ids = append(ids, f.ID)
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active feeds.")
				return nil
			}
		} else {
			ids = args
		}

		failed := 0
		for _, id := range ids {
			f, result, err := svc.feeds.ImportFeed(ctx, id)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %v\n", color.RedString("x"), id, err)
				continue
			}
			printImportReport(cmd.OutOrStdout(), f, result)
		}
		if failed > 0 {
			return fmt.Errorf("%d feed(s) could not be imported", failed)
		}
		return nil
	},
}

func printImportReport(w io.Writer, f *feed.Feed, result *feed.ImportResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", bold(f.Label), faint(f.URL))
	fmt.Fprintf(w, "  %s %d new post(s)\n", green("v"), result.CreatedPosts)
	if result.DuplicateItems > 0 {
		fmt.Fprintf(w, "  %s %d already published\n", faint("-"), result.DuplicateItems)
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  %s %s\n", red("x"), msg)
	}
	fmt.Fprintf(w, "  %s\n", result.Summary())
}

func init() {
	importCmd.Flags().BoolVar(&importAll, "all", false, "import every active feed")
	rootCmd.AddCommand(importCmd)
}
