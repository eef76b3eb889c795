package main

import (
	"fmt"
	"os"

	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/poller"
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
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+fmt.Sprintf(format, args...)))
}

// progressLine renders a poll update, e.g. "polling 3/5 (attempt 4)".
func progressLine(u poller.Update) string {
	line := fmt.Sprintf("%s %d/%d (attempt %d)", u.State, len(u.Components), u.Expected, u.Attempts)
	if u.Failures > 0 {
		line += fmt.Sprintf(", %d failed reads", u.Failures)
	}
	return line
}

// eventLine renders a streamed progress event.
func eventLine(ev events.Event) string {
	switch ev.Kind {
	case events.KindGenerationStarted:
		return fmt.Sprintf("generation started (%d components)", ev.Expected)
	case events.KindComponentSaved:
		line := fmt.Sprintf("%s saved from %s (%d/%d)", ev.Component, ev.Source, ev.Saved, ev.Expected)
		if ev.Error != "" {
			line += ": " + ev.Error
		}
		return line
	case events.KindComponentUpdated:
		return fmt.Sprintf("%s updated from %s", ev.Component, ev.Source)
	case events.KindGenerationCompleted:
		return fmt.Sprintf("generation completed (%d/%d saved)", ev.Saved, ev.Expected)
	case events.KindSnapshot:
		if ev.Status == "" {
			return fmt.Sprintf("%d sections saved", ev.Saved)
		}
		return fmt.Sprintf("session %s, %d/%d sections saved", ev.Status, ev.Saved, ev.Expected)
	default:
		return ev.Kind
	}
}
