package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"bookrag/internal/domain"
)

// LineChunker packs consecutive lines of a book file into passages of at most
// maxTokens words, repeating roughly overlap words between neighbours. Lines
// longer than maxTokens are cut into word windows first.
type LineChunker struct {
	maxTokens int
	overlap   int
}

func NewLineChunker(maxTokens, overlap int) *LineChunker {
	if overlap >= maxTokens {
		overlap = 0
	}
	return &LineChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
	}
}

type line struct {
	text   string
	number int
	tokens int
}

func (c *LineChunker) Chunk(doc domain.Document, content string) ([]domain.Chunk, error) {
	lines := c.splitLines(content)
	if len(lines) == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine
		currentTokens := 0
		var chunkText strings.Builder

		for endLine < len(lines) {
			l := lines[endLine]
			if currentTokens > 0 && currentTokens+l.tokens > c.maxTokens {
				break
			}
			if chunkText.Len() > 0 {
				chunkText.WriteString("\n")
			}
			chunkText.WriteString(l.text)
			currentTokens += l.tokens
			endLine++
		}

		text := strings.TrimSpace(chunkText.String())
		if text != "" {
			first, last := lines[startLine].number, lines[endLine-1].number
			chunks = append(chunks, domain.Chunk{
				ID:        generateChunkID(doc.ID, first, last, len(chunks)),
				DocID:     doc.ID,
				Ordinal:   len(chunks),
				StartLine: first,
				EndLine:   last,
				Text:      text,
			})
		}

		if endLine >= len(lines) {
			break
		}

		newStart := endLine - c.overlapLines(lines, startLine, endLine)
		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return chunks, nil
}

// splitLines drops blank lines and breaks over-long lines into windows of
// maxTokens words. Line numbers are 1-based source lines.
func (c *LineChunker) splitLines(content string) []line {
	var out []line
	for i, raw := range strings.Split(content, "\n") {
		words := strings.Fields(raw)
		if len(words) == 0 {
			continue
		}
		if len(words) <= c.maxTokens {
			out = append(out, line{text: strings.TrimRight(raw, " \t\r"), number: i + 1, tokens: len(words)})
			continue
		}
		for start := 0; start < len(words); start += c.maxTokens {
			end := min(start+c.maxTokens, len(words))
			out = append(out, line{text: strings.Join(words[start:end], " "), number: i + 1, tokens: end - start})
		}
	}
	return out
}

func (c *LineChunker) overlapLines(lines []line, start, end int) int {
	if c.overlap == 0 {
		return 0
	}

	overlapLines := 0
	tokens := 0
	for i := end - 1; i > start && tokens < c.overlap; i-- {
		tokens += lines[i].tokens
		overlapLines++
	}
	return overlapLines
}

func generateChunkID(docID string, startLine, endLine, ordinal int) string {
	data := fmt.Sprintf("%s:%d-%d:%d", docID, startLine, endLine, ordinal)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

// Title returns the first markdown heading of content, or fallback.
func Title(content, fallback string) string {
	for _, raw := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "#") {
			if title := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); title != "" {
				return title
			}
		}
	}
	return fallback
}
