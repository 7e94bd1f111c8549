package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/rsslabel/internal/dataset"
	"github.com/kalambet/rsslabel/internal/labeling"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
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

func labelColor(l labeling.Label) string {
	if l == labeling.Advertisement {
		return colorYellow
	}
	return colorBlue
}

// printArticle renders the article awaiting a label for the terminal.
func printArticle(w io.Writer, v labeling.View) {
	fmt.Fprintf(w, "%s  %s\n", colorize(colorBold, fmt.Sprintf("Article %d of %d", v.Position, v.Total)),
		progressBar(v.ProgressPercent, 20))
	if v.Resumed {
		fmt.Fprintf(w, "%s\n", colorize(colorCyan, fmt.Sprintf("Resumed from article %d (previously labeled %d articles)", v.Position, v.LabeledCount)))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, colorize(colorBold, dataset.PlainText(v.Article.Title)))

	var meta []string
	for _, s := range []string{v.Article.Source, v.Article.Published, v.Article.Link} {
		if s != "" {
			meta = append(meta, s)
		}
	}
	if len(meta) > 0 {
		fmt.Fprintln(w, strings.Join(meta, " | "))
	}

	body := v.Article.Summary
	if body == "" {
		body = v.Article.Content
	}
	if text := dataset.PlainText(body); text != "" {
		fmt.Fprintf(w, "\n%s\n", text)
	}
}

func progressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	filled = max(0, min(filled, width))
	return fmt.Sprintf("[%s%s] %.1f%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), pct)
}

func percent(n, total int) string {
	if total == 0 {
		return "100.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

func baseName(path string) string {
	return filepath.Base(path)
}
