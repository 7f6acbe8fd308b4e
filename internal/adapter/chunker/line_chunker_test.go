package chunker

import (
	"strings"
	"testing"

	"bookrag/internal/domain"
)

func TestLineChunkerBasic(t *testing.T) {
	chunker := NewLineChunker(12, 3)

	doc := domain.Document{
		ID:   "doc1",
		Path: "/book/ch1.md",
	}

	content := `# Chapter 1: Sensors

Robots perceive the world through sensors.
Cameras capture images and lidar measures distance.

Encoders report how far each wheel has turned.
Inertial units track acceleration and rotation.`

	chunks, err := chunker.Chunk(doc, content)
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) < 2 {
		t.Fatalf("expected content to be split, got %d chunks", len(chunks))
	}

	seen := make(map[string]bool)
	for i, chunk := range chunks {
		if chunk.ID == "" {
			t.Error("chunk has empty ID")
		}
		if seen[chunk.ID] {
			t.Errorf("duplicate chunk ID %s", chunk.ID)
		}
		seen[chunk.ID] = true
		if chunk.DocID != "doc1" {
			t.Errorf("expected DocID 'doc1', got '%s'", chunk.DocID)
		}
		if chunk.Ordinal != i {
			t.Errorf("expected Ordinal %d, got %d", i, chunk.Ordinal)
		}
		if chunk.StartLine < 1 || chunk.EndLine < chunk.StartLine {
			t.Errorf("invalid line range %d-%d", chunk.StartLine, chunk.EndLine)
		}
		if strings.TrimSpace(chunk.Text) == "" {
			t.Error("chunk has empty text")
		}
	}
}

func TestLineChunkerLongLine(t *testing.T) {
	chunker := NewLineChunker(5, 0)
	content := strings.Repeat("word ", 23)

	chunks, err := chunker.Chunk(domain.Document{ID: "d"}, content)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks for 23 words at 5 per chunk, got %d", len(chunks))
	}
	for _, c := range chunks {
		if n := len(strings.Fields(c.Text)); n > 5 {
			t.Errorf("chunk has %d words, max is 5", n)
		}
		if c.StartLine != 1 {
			t.Errorf("expected StartLine 1, got %d", c.StartLine)
		}
	}
}

func TestLineChunkerOverlap(t *testing.T) {
	chunker := NewLineChunker(6, 2)
	content := "one two three\nfour five six\nseven eight nine\nten eleven twelve"

	chunks, err := chunker.Chunk(domain.Document{ID: "d"}, content)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.Contains(chunks[1].Text, "four five six") {
		t.Errorf("expected second chunk to repeat the overlapping line, got %q", chunks[1].Text)
	}
	last := chunks[len(chunks)-1]
	if !strings.Contains(last.Text, "ten eleven twelve") {
		t.Errorf("expected last chunk to reach the end, got %q", last.Text)
	}
}

func TestLineChunkerEmpty(t *testing.T) {
	chunks, err := NewLineChunker(10, 2).Chunk(domain.Document{ID: "d"}, "\n  \n\t\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestTitle(t *testing.T) {
	if got := Title("intro text\n## Kinematics \nbody", "ch2.md"); got != "Kinematics" {
		t.Errorf("expected Kinematics, got %q", got)
	}
	if got := Title("no heading here", "ch3.md"); got != "ch3.md" {
		t.Errorf("expected fallback, got %q", got)
	}
}
