package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bookrag/internal/domain"
)

var (
	benchQuery string
	benchTopK  int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Check embedding quality against the index",
	Long: `Embed one query, search the corpus index and report similarity
metrics. Useful after switching embedding models.

Example:
  bookrag bench -q "inverse kinematics" -k 10`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().StringVarP(&benchQuery, "query", "q", "", "query to test (required)")
	benchCmd.Flags().IntVarP(&benchTopK, "top-k", "k", 10, "number of results")
	benchCmd.MarkFlagRequired("query")
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	a, err := openApp(ctx, GetRootDir(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine(ctx, GetRootDir())
	if err != nil {
		return err
	}

	count, err := a.index.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no embeddings indexed; run 'bookrag index' first")
	}

	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Embeddings indexed: %d\n", count)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", a.embedder.Dimension())
	fmt.Println()
	fmt.Printf("Query: %q\n", benchQuery)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	res, err := engine.Retrieve(ctx, "", domain.Query{Text: benchQuery, TopK: benchTopK}, "")
	if err != nil {
		return errors.New(describeError(err))
	}
	latency := time.Since(start)

	if len(res.Passages) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(res.Passages))
	total := 0.0
	for i, p := range res.Passages {
		preview := []rune(strings.ReplaceAll(p.Text, "\n", " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}
		total += p.Score
		fmt.Printf("%d. [%s %.3f] %s\n", i+1, rating(p.Score), p.Score, passageLocation(p))
		fmt.Printf("   %s\n\n", string(preview))
	}

	avg := total / float64(len(res.Passages))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avg)
	fmt.Printf("  Top-1 similarity:   %.3f\n", res.Passages[0].Score)
	fmt.Printf("  Latency:            %s\n", latency.Round(time.Millisecond))

	switch {
	case avg > 0.5:
		fmt.Println("  Status: GOOD - semantic search working well")
	case avg > 0.3:
		fmt.Println("  Status: OK - results are somewhat related")
	default:
		fmt.Println("  Status: POOR - may need better embeddings or re-indexing")
	}
	return nil
}

func rating(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.5:
		return "GOOD"
	case score > 0.3:
		return "OK"
	}
	return "LOW"
}
