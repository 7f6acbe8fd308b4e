package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"bookrag/internal/domain"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	scoreColor  = color.New(color.FgGreen)
	dimColor    = color.New(color.Faint)
	warnColor   = color.New(color.FgYellow)
)

const previewLimit = 500

func printRetrieval(w io.Writer, query string, res domain.Retrieval) {
	if len(res.Passages) == 0 {
		fmt.Fprintln(w, "No results found.")
		dimColor.Fprintf(w, "session %s (%s)\n", res.SessionID, res.Mode)
		return
	}

	fmt.Fprintf(w, "Found %d results for: %s\n\n", len(res.Passages), query)
	for i, p := range res.Passages {
		headerColor.Fprintf(w, "--- [%d] %s ", i+1, passageLocation(p))
		scoreColor.Fprintf(w, "(score: %.3f)", p.Score)
		headerColor.Fprintln(w, " ---")

		text := p.Text
		if runes := []rune(text); len(runes) > previewLimit {
			text = string(runes[:previewLimit]) + "..."
		}
		fmt.Fprintln(w, text)
		fmt.Fprintln(w)
	}
	dimColor.Fprintf(w, "session %s (%s)\n", res.SessionID, res.Mode)
}

func passageLocation(p domain.Passage) string {
	if p.Source == domain.SourceAdHoc {
		return "selected text #" + p.Metadata["position"]
	}
	path := p.Metadata["path"]
	if path == "" {
		return p.ID
	}
	if start, end := p.Metadata["start_line"], p.Metadata["end_line"]; start != "" {
		return fmt.Sprintf("%s:L%s-%s", path, start, end)
	}
	return path
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError turns engine errors into the message shown to the user.
func describeError(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid query: " + err.Error()
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		return "retrieval is temporarily unavailable, please try again (" + err.Error() + ")"
	default:
		return err.Error()
	}
}

func printError(w io.Writer, err error) {
	warnColor.Fprintln(w, strings.TrimSpace(describeError(err)))
}
