package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/recap/internal/extract"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func newJSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

func renderSummary(w io.Writer, rec extract.Record) {
	fmt.Fprintf(w, "%s\n  %s\n", colorize(colorBold, "TL;DR"), rec.TLDR)

	if len(rec.Decisions) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Decisions"))
		for _, d := range rec.Decisions {
			fmt.Fprintf(w, "  - %s%s\n", d.Decision, ownerSuffix(d.Owner))
		}
	}
	if len(rec.ActionItems) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Action items"))
		for _, a := range rec.ActionItems {
			line := a.Task + ownerSuffix(a.Owner)
			if a.DueDate != "" {
				line += ", due " + a.DueDate
			}
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}
	renderList(w, "Risks", rec.Risks)
	renderList(w, "Key points", rec.KeyPoints)
	if len(rec.ContextConnections) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Connections"))
		for _, c := range rec.ContextConnections {
			fmt.Fprintf(w, "  - %s [%s]\n", c.Connection, c.Reference)
		}
	}
}

func renderList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, title))
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func ownerSuffix(owner string) string {
	if strings.TrimSpace(owner) == "" {
		return ""
	}
	return " (" + owner + ")"
}
