package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"bookrag/config"
)

var indexRebuild bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index book files for retrieval",
	Long: `Chunk, embed and store the book files in the specified directory.
With the bolt backend the index is stored in .bookrag/index.db within the
target directory. Unchanged files are skipped on later runs.

Examples:
  bookrag index .               # Index current directory
  bookrag index ./book          # Index specific directory
  bookrag index . --rebuild     # Discard the index and start over`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "discard the existing index first")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()
	if cfg.Index.Backend == "memory" {
		fmt.Println("Note: the memory backend does not persist; query and chat index on start-up.")
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, path, indexRebuild)
	if err != nil {
		return err
	}
	defer a.Close()

	indexUC := a.indexer()

	fmt.Printf("Scanning %s...\n", path)

	var (
		bar       *progressbar.ProgressBar
		barMu     sync.Mutex
		startTime time.Time
	)
	indexUC.OnProgress = func(processed, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		_ = bar.Set(processed)

		if processed > 0 {
			rate := float64(processed) / time.Since(startTime).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-processed)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	result, err := indexUC.Index(ctx, path)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	count, _ := a.index.Count(ctx)

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Files indexed:  %d\n", result.FilesIndexed)
	fmt.Printf("  Files skipped:  %d (unchanged)\n", result.FilesSkipped)
	fmt.Printf("  Files deleted:  %d (removed)\n", result.FilesDeleted)
	fmt.Printf("  Chunks created: %d\n", result.ChunksCreated)
	fmt.Printf("  Vectors stored: %d (%s, %d dims)\n", count, a.embedder.ModelName(), a.embedder.Dimension())

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	switch cfg.Index.Backend {
	case "bolt":
		fmt.Printf("\nIndex stored at: %s\n", config.IndexDBPath(path))
	case "qdrant":
		fmt.Printf("\nIndex stored in qdrant collection: %s\n", cfg.Index.Qdrant.Collection)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
