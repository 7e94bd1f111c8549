package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/rsslabel/internal/config"
	"github.com/kalambet/rsslabel/internal/dataset"
	"github.com/kalambet/rsslabel/internal/labeling"
	"github.com/kalambet/rsslabel/internal/storage"
)

// --- current / label / skip ---

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the article awaiting a label on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/current")
		if err != nil {
			return err
		}

		var view labeling.View
		status, err := decodeJSON(resp, &view)
		if err != nil {
			return err
		}
		if status == http.StatusConflict {
			printSuccess("All articles have been labeled")
			return nil
		}
		printArticle(os.Stdout, view)
		return nil
	},
}

var labelCmd = &cobra.Command{
	Use:   "label <advertisement|news>",
	Short: "Label the current article on the running server",
	Long: `Label the current article on the running server.

The keyboard shortcuts of the web interface work here too:
  rsslabel label 1      # advertisement
  rsslabel label 2      # news`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, err := resolveLabelArg(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/label", map[string]string{"label": string(label)})
		if err != nil {
			return err
		}

		var result struct {
			Accepted   bool   `json:"accepted"`
			NextIndex  int    `json:"next_index"`
			Checkpoint string `json:"checkpoint"`
			Complete   bool   `json:"complete"`
			Error      string `json:"error"`
		}
		status, err := decodeJSON(resp, &result)
		if err != nil {
			return err
		}
		switch status {
		case http.StatusConflict:
			printWarning("All articles have already been labeled")
			return nil
		case http.StatusUnprocessableEntity:
			return fmt.Errorf("label rejected: %s", result.Error)
		}

		printSuccess("Labeled article %d as %s", result.NextIndex, label)
		reportAdvance(result.Checkpoint, result.Complete)
		return nil
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip the current article on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/skip", nil)
		if err != nil {
			return err
		}

		var result labeling.Result
		status, err := decodeJSON(resp, &result)
		if err != nil {
			return err
		}
		if status == http.StatusConflict {
			printWarning("All articles have already been labeled")
			return nil
		}

		printSuccess("Skipped article %d", result.Cursor)
		reportAdvance(result.Checkpoint, result.Complete)
		return nil
	},
}

// resolveLabelArg accepts a label name or its keyboard shortcut.
func resolveLabelArg(arg string) (labeling.Label, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "1", "ad":
		return labeling.Advertisement, nil
	case "2":
		return labeling.News, nil
	}
	return labeling.ParseLabel(strings.ToLower(arg))
}

func reportAdvance(checkpoint string, complete bool) {
	if checkpoint != "" {
		printStep("Labels saved to %s", checkpoint)
	}
	if complete {
		printSuccess("Labeling complete")
	}
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved checkpoints and recent labeling events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		events, _ := cmd.Flags().GetBool("events")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Without a journal the checkpoint files are the only history.
		if !journalExists(cfg) {
			if events {
				printWarning("No journal in %s; only checkpoint files are listed", cfg.Storage.DataDir)
			}
			infos, err := dataset.ListCheckpoints(cfg.Storage.DataDir)
			if err != nil {
				return err
			}
			if len(infos) > limit {
				infos = infos[:limit]
			}
			printCheckpointFiles(os.Stdout, infos)
			return nil
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer store.Close()

		if events {
			list, err := store.ListEvents(limit, 0)
			if err != nil {
				return err
			}
			printEvents(os.Stdout, list)
			return nil
		}

		records, err := store.ListCheckpoints(limit)
		if err != nil {
			return err
		}
		printCheckpointRecords(os.Stdout, records)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	historyCmd.Flags().Bool("events", false, "list label and skip events instead of checkpoints")
}

func journalExists(cfg config.Config) bool {
	if !cfg.Storage.Journal {
		return false
	}
	_, err := os.Stat(filepath.Join(cfg.Storage.DataDir, storage.DBFile))
	return err == nil
}

func printCheckpointFiles(w io.Writer, infos []dataset.CheckpointInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No checkpoints found.")
		return
	}
	for _, info := range infos {
		cp, err := dataset.ReadCheckpoint(info.Path)
		if err != nil {
			fmt.Fprintf(w, "  %s  %s  unreadable: %v\n", info.ModTime.Format("2006-01-02 15:04:05"), baseName(info.Path), err)
			continue
		}
		fmt.Fprintf(w, "  %s  %s  %d labeled, cursor %d/%d\n",
			info.ModTime.Format("2006-01-02 15:04:05"), colorize(colorBold, baseName(info.Path)),
			len(cp.Labels), cp.ResumeCursor(), cp.TotalArticles)
	}
}

func printCheckpointRecords(w io.Writer, records []storage.CheckpointRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No checkpoints recorded.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "  %s  %s  %d labeled, cursor %d/%d (%s)\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), colorize(colorBold, r.Filename),
			r.LabeledCount, r.Cursor, r.TotalArticles, percent(r.Cursor, r.TotalArticles))
	}
}

func printEvents(w io.Writer, events []storage.LabelEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	for _, e := range events {
		what := e.Action
		if e.Action == storage.ActionLabel {
			what = colorize(labelColor(labeling.Label(e.Label)), e.Label)
		}
		fmt.Fprintf(w, "  %s  #%-5d %s  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.ArticleIndex+1, what, e.BatchFile)
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		keys := config.ShowAll(cfg)
		if asJSON {
			out := make(map[string]string, len(keys))
			for _, k := range keys {
				out[k.Key] = k.Value
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		for _, k := range keys {
			fmt.Printf("  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
			}
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configShowCmd.Flags().Bool("json", false, "print configuration as JSON")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
