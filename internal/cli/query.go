package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bookrag/internal/domain"
)

var (
	queryText      string
	queryTopK      int
	queryJSON      bool
	querySession   string
	queryAdHoc     string
	queryAdHocFile string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the indexed book or supplied text",
	Long: `Retrieve the passages most relevant to a question.

Without --text the indexed book is searched. With --text (or --text-file) the
supplied text is split into sentences and those are ranked instead. Pass the
printed session id back with --session to continue a conversation.

Examples:
  bookrag query -q "how do encoders work"
  bookrag query -q "gear ratio" --text "$(cat selection.txt)" --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().StringVarP(&querySession, "session", "s", "", "session id to continue")
	queryCmd.Flags().StringVar(&queryAdHoc, "text", "", "ad hoc text to search instead of the book")
	queryCmd.Flags().StringVar(&queryAdHocFile, "text-file", "", "read ad hoc text from a file")
	queryCmd.MarkFlagRequired("query")
	queryCmd.MarkFlagsMutuallyExclusive("text", "text-file")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	adHoc := queryAdHoc
	if queryAdHocFile != "" {
		data, err := os.ReadFile(queryAdHocFile)
		if err != nil {
			return fmt.Errorf("failed to read text file: %w", err)
		}
		adHoc = string(data)
	}

	a, err := openApp(ctx, GetRootDir(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine(ctx, GetRootDir())
	if err != nil {
		return err
	}

	topK := cfg.Retrieve.TopK
	if queryTopK != 0 {
		topK = queryTopK
	}

	res, err := engine.Retrieve(ctx, querySession, domain.Query{Text: queryText, TopK: topK}, adHoc)
	if err != nil {
		if queryJSON {
			_ = printJSON(os.Stdout, map[string]any{
				"error":  describeError(err),
				"status": domain.StatusFor(err),
			})
		} else {
			printError(os.Stderr, err)
		}
		return errors.New("query failed")
	}

	if queryJSON {
		return printJSON(os.Stdout, res)
	}
	printRetrieval(os.Stdout, queryText, res)
	return nil
}
