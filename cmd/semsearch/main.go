// Package main provides the semsearch CLI for offline semantic document search.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/semsearch-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/semsearch-go/internal/adapters/loader"
	"github.com/0xcro3dile/semsearch-go/internal/config"
	"github.com/0xcro3dile/semsearch-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/semsearch-go/internal/infrastructure/http"
)

var (
	cfgPath  string
	docsDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "semsearch",
	Short: "Offline semantic search over local documents",
	Long: `Indexes PDFs, text, Markdown and images in a local directory and answers
natural-language queries with the most relevant passage. Everything runs
on this machine.

Environment variables:
  SEMSEARCH_DATA_DIR    Directory holding the vector database
  SEMSEARCH_DOCS_DIR    Documents directory
  SEMSEARCH_OLLAMA_URL  Ollama server URL (embedder.type: ollama)`,
	SilenceUsage: true,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Answer a query from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local JSON search API",
	RunE:  runServe,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector store statistics",
	RunE:  runStats,
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Print the text chunks extracted from files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (default ./semsearch.yaml or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&docsDir, "docs", "", "Documents directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	searchCmd.Flags().Int("results", 0, "Print the top N ranked chunks instead of a single answer")
	serveCmd.Flags().Bool("watch", false, "Report document changes made after startup")

	rootCmd.AddCommand(searchCmd, serveCmd, statsCmd, extractCmd)
}

func main() {
	// Load .env file if present, ignore if missing
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if docsDir != "" {
		cfg.Documents.Dir = docsDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func setup(ctx context.Context, files []string) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, newLogger(os.Stderr, cfg.Log.Level), files)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	n, _ := cmd.Flags().GetInt("results")
	if n > 0 {
		return printResults(ctx, cmd.OutOrStdout(), a.engine, query, n)
	}

	fmt.Fprintln(cmd.OutOrStdout(), a.engine.Search(ctx, query))
	return nil
}

func printResults(ctx context.Context, w io.Writer, engine *usecases.SearchEngine, query string, n int) error {
	results, err := engine.Retrieve(ctx, query, n)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(w, usecases.MsgNoAnswerFound)
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.4f] %s\n   %s\n", i+1, r.Score, r.SourceID, usecases.Truncate(r.Text, 200))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpserver.NewServer(a.engine, a.store, a.cfg.Server.Addr, a.cfg.Server.AllowedOrigins, a.logger)

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		watcher, err := filewatcher.NewFSNotifyWatcher(a.opener.SupportedExtensions(), a.logger)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer watcher.Stop()

		events, err := watcher.Watch(ctx, a.cfg.Documents.Dir)
		if err != nil {
			return fmt.Errorf("watching %s: %w", a.cfg.Documents.Dir, err)
		}
		go srv.TrackChanges(ctx, events)
		a.logger.Info("Watching documents", "dir", a.cfg.Documents.Dir)
	}

	// Index up front so the first request does not pay for it.
	go func() {
		if err := a.engine.EnsureIndexed(ctx); err != nil {
			a.logger.Warn("Initial indexing failed, will retry on first query", "error", err)
			return
		}
		if r := a.engine.LastReport(); r != nil {
			a.logger.Info("Index ready", "run", r.RunID, "documents", r.Documents,
				"inserted", r.Inserted, "reused", r.Reused, "duration", r.Duration)
		}
	}()

	return srv.Start(ctx)
}

// runStore is implemented by stores that record index runs.
type runStore interface {
	RunCount(ctx context.Context) (int, error)
	Path() string
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Log.Level)
	store, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return printStats(ctx, cmd.OutOrStdout(), store)
}

func printStats(ctx context.Context, w io.Writer, store storeCloser) error {
	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Records:   %d\n", count)
	fmt.Fprintf(w, "Dimension: %d\n", store.Dimension())

	if rs, ok := store.(runStore); ok {
		runs, err := rs.RunCount(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Runs:      %d\n", runs)
		fmt.Fprintf(w, "Database:  %s\n", rs.Path())
		if runs > 1 {
			fmt.Fprintf(w, "Note: %d index runs are stored and records may repeat.\n", runs)
			fmt.Fprintln(w, "      Set index.policy to persisted, or remove the database to rebuild.")
		}
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Extraction never touches the database.
	cfg.Store.Type = "memory"
	cfg.Embedder.Type = "hashing"

	a, err := buildApp(ctx, cfg, newLogger(os.Stderr, cfg.Log.Level), args)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := loader.NewStaticSource(args...).Documents(ctx)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for chunk := range a.extractor.ExtractAll(ctx, docs) {
		fmt.Fprintf(w, "== %s\n%s\n\n", chunk.SourceID, chunk.Text)
	}
	return nil
}
