package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bassista/labasica/internal/app"
	"github.com/bassista/labasica/internal/logger"
	"github.com/bassista/labasica/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every stored document as one JSON or YAML object",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return exportDocuments(out, a.Store.ExportAll(ctx), exportFormat)
	}),
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace stored documents with the ones in a JSON or YAML export",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		docs, err := readDocuments(args[0])
		if err != nil {
			return err
		}
		if !a.Store.ImportAll(ctx, docs) {
			return fmt.Errorf("import of %s failed, see log", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d documents\n", len(docs))
		return nil
	}),
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List stored document names",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		for _, name := range a.Store.ListKeys(ctx) {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog counters",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		stats, err := a.Catalog.GetStats(ctx)
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), stats.TotalProducts, stats.TotalCategories, store.FormatTime(stats.LastUpdated))
	}),
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull newer canonical documents into the local store once",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
		if a.Source == nil {
			return fmt.Errorf("no canonical source configured (data.source_url)")
		}
		if err := a.Broadcaster.ForceSync(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sync complete")
		return nil
	}),
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", formatJSON, "output format: json or yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(exportCmd, importCmd, keysCmd, statsCmd, syncCmd)
}

// withApp opens the application for a one-shot command. Logs go to stderr so
// stdout stays machine readable.
func withApp(run func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger.Logger.SetOutput(cmd.ErrOrStderr())
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Shutdown()
		return run(cmd.Context(), a, cmd, args)
	}
}

func exportDocuments(w io.Writer, docs map[string]store.Document, format string) error {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

// readDocuments decodes an export file, picking YAML by extension.
func readDocuments(path string) (map[string]store.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var docs map[string]store.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &docs)
	default:
		err = json.Unmarshal(raw, &docs)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s contains no documents", path)
	}
	return docs, nil
}

func printStats(w io.Writer, products, categories int, lastUpdated string) error {
	_, err := fmt.Fprintf(w, "products:     %d\ncategories:   %d\nlast updated: %s\n", products, categories, lastUpdated)
	return err
}
