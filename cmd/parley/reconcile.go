// ABOUTME: reconcile subcommand that collapses duplicate one-to-one conversations
// ABOUTME: Prints a colored report; safe to run repeatedly

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/conversation"
)

func runReconcile(ctx context.Context) error {
	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	logger := setupLogger(cfg.Logging)

	color.New(color.FgCyan).Println("  Scanning for duplicate conversations...")
	report, err := conversation.RemoveDuplicates(ctx, s, nil, logger.With("command", "reconcile"))
	if err != nil {
		return fmt.Errorf("removing duplicates: %w", err)
	}

	printReport(color.Output, report)
	return nil
}

func printReport(w io.Writer, report *conversation.Report) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	rule := strings.Repeat("-", 60)
	gray.Fprintln(w, rule)

	var kept []string
	byKept := make(map[string][]conversation.Removal)
	for _, r := range report.Removals {
		if _, ok := byKept[r.KeptID]; !ok {
			kept = append(kept, r.KeptID)
		}
		byKept[r.KeptID] = append(byKept[r.KeptID], r)
	}

	for _, id := range kept {
		removals := byKept[id]
		fmt.Fprintln(w)
		cyan.Fprintf(w, "  Pair (%s, %s)\n", removals[0].UserA, removals[0].UserB)
		green.Fprintf(w, "    ✓ keeping  %s\n", id)
		for _, r := range removals {
			red.Fprintf(w, "    ✗ removed  %s (%d messages)\n", r.ConversationID, r.Messages)
		}
	}

	fmt.Fprintln(w)
	gray.Fprintln(w, rule)
	fmt.Fprintf(w, "  Conversations scanned:  %d\n", report.Scanned)
	fmt.Fprintf(w, "  Participant pairs:      %d\n", report.Pairs)
	fmt.Fprintf(w, "  Kept:                   %d\n", report.Kept)
	fmt.Fprintf(w, "  Removed:                %d\n", report.Removed)
	fmt.Fprintf(w, "  Remaining one-to-one:   %d\n", report.Remaining)
	gray.Fprintln(w, rule)

	if report.Removed == 0 {
		green.Fprintln(w, "  No duplicates found.")
		return
	}
	green.Fprintf(w, "  Removed %d duplicate conversation(s).\n", report.Removed)
}
