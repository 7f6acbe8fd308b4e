package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bookrag/internal/domain"
	"bookrag/internal/port"
)

var chatTopK int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive retrieval session",
	Long: `Start an interactive session. Each line is a question.

Commands:
  /select <text>   rank fragments of <text> instead of the book
  /file <path>     like /select, reading the text from a file
  /clear           go back to searching the book
  /session         print the session id
  /quit            exit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "number of results (default from config)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := openApp(ctx, GetRootDir(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine(ctx, GetRootDir())
	if err != nil {
		return err
	}
	go engine.RunSweeper(ctx, cfg.Session.SweepInterval)

	topK := cfg.Retrieve.TopK
	if chatTopK != 0 {
		topK = chatTopK
	}

	fmt.Println("bookrag chat. Type /quit to exit.")
	return chatLoop(ctx, engine, os.Stdin, os.Stdout, topK)
}

// chatLoop reads questions from in until EOF or /quit. The selection, when
// set, is sent with every turn so the session stays in ad hoc mode.
func chatLoop(ctx context.Context, engine port.RetrievalEngine, in io.Reader, out io.Writer, topK int) error {
	var (
		sessionID string
		selection string
	)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/clear":
			selection = ""
			fmt.Fprintln(out, "Searching the book.")
			continue
		case line == "/session":
			fmt.Fprintln(out, sessionID)
			continue
		case strings.HasPrefix(line, "/select "):
			selection = strings.TrimSpace(strings.TrimPrefix(line, "/select "))
			fmt.Fprintln(out, "Searching the selected text.")
			continue
		case strings.HasPrefix(line, "/file "):
			data, err := os.ReadFile(strings.TrimSpace(strings.TrimPrefix(line, "/file ")))
			if err != nil {
				printError(out, err)
				continue
			}
			selection = string(data)
			fmt.Fprintln(out, "Searching the selected text.")
			continue
		}

		res, err := engine.Retrieve(ctx, sessionID, domain.Query{Text: line, TopK: topK}, selection)
		if err != nil {
			printError(out, err)
			continue
		}
		sessionID = res.SessionID
		printRetrieval(out, line, res)
	}
}
