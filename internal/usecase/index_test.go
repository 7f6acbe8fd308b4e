package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookrag/internal/adapter/chunker"
	"bookrag/internal/adapter/embedding"
	"bookrag/internal/adapter/fs"
	"bookrag/internal/adapter/memstore"
	"bookrag/internal/domain"
)

func writeBookFile(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newIndexer(dim int) (*IndexUseCase, *memstore.MemoryIndex, *memstore.MemoryRegistry) {
	idx := memstore.NewMemoryIndex(dim)
	reg := memstore.NewMemoryRegistry()
	uc := NewIndexUseCase(
		reg,
		idx,
		embedding.NewMockEmbedder(dim),
		fs.NewWalker([]string{"**/*.md"}, nil),
		chunker.NewLineChunker(20, 4),
		2,
		nil,
	)
	return uc, idx, reg
}

func TestIndex_Incremental(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ch1 := writeBookFile(t, root, "ch1.md", "# Motion\n\nWheeled robots move on flat ground.\nLegged robots climb stairs.")
	ch2 := writeBookFile(t, root, "ch2.md", "# Vision\n\nCameras see color.\nDepth sensors see distance.")

	uc, idx, reg := newIndexer(64)
	var progressCalls int
	uc.OnProgress = func(done, total int) {
		progressCalls++
		if total != 2 {
			t.Errorf("expected total 2, got %d", total)
		}
	}

	result, err := uc.Index(ctx, root)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if result.FilesIndexed != 2 || len(result.Errors) != 0 {
		t.Fatalf("expected 2 files indexed without errors, got %+v", result)
	}
	if progressCalls != 2 {
		t.Errorf("expected 2 progress calls, got %d", progressCalls)
	}
	uc.OnProgress = nil
	count, _ := idx.Count(ctx)
	if count != result.ChunksCreated || count == 0 {
		t.Errorf("expected %d vectors, got %d", result.ChunksCreated, count)
	}

	hits, err := idx.Search(ctx, mustEmbed(t, 64, "Legged robots climb stairs"), 1)
	if err != nil || len(hits) != 1 {
		t.Fatalf("search failed: %v %v", hits, err)
	}
	if hits[0].Payload.Metadata["path"] != "ch1.md" || hits[0].Payload.Metadata["title"] != "Motion" {
		t.Errorf("unexpected metadata %v", hits[0].Payload.Metadata)
	}

	// Unchanged files are skipped.
	result, err = uc.Index(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if result.FilesSkipped != 2 || result.FilesIndexed != 0 {
		t.Errorf("expected 2 skipped, got %+v", result)
	}

	// A modified file is re-indexed and a removed one is dropped.
	future := time.Now().Add(time.Hour)
	writeBookFile(t, root, "ch1.md", "# Motion\n\nTracked robots cross rough terrain.")
	if err := os.Chtimes(ch1, future, future); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(ch2); err != nil {
		t.Fatal(err)
	}

	result, err = uc.Index(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if result.FilesIndexed != 1 || result.FilesDeleted != 1 {
		t.Errorf("expected 1 indexed and 1 deleted, got %+v", result)
	}
	docs, _ := reg.ListDocs()
	if len(docs) != 1 {
		t.Errorf("expected 1 registered doc, got %d", len(docs))
	}
	count, _ = idx.Count(ctx)
	if count != result.ChunksCreated {
		t.Errorf("stale vectors left behind: %d vectors, %d chunks", count, result.ChunksCreated)
	}
}

// poisonEmbedder fails any text containing "poison".
type poisonEmbedder struct {
	*embedding.MockEmbedder
}

func (p poisonEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		return nil, errors.New("provider rejected input")
	}
	return p.MockEmbedder.Embed(ctx, text)
}

func TestIndex_FailedFileLeavesNoVectors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	// three five-word lines become three chunks, one per batch
	writeBookFile(t, root, "ch1.md", "alpha beta gamma delta epsilon\nzeta eta theta iota kappa\npoison lambda mu nu xi")

	idx := memstore.NewMemoryIndex(64)
	reg := memstore.NewMemoryRegistry()
	uc := NewIndexUseCase(
		reg,
		idx,
		poisonEmbedder{embedding.NewMockEmbedder(64)},
		fs.NewWalker([]string{"**/*.md"}, nil),
		chunker.NewLineChunker(5, 0),
		1,
		nil,
	)

	result, err := uc.Index(ctx, root)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if result.FilesIndexed != 0 || len(result.Errors) != 1 {
		t.Fatalf("expected one failed file, got %+v", result)
	}
	count, _ := idx.Count(ctx)
	if count != 0 {
		t.Errorf("expected earlier batches to be removed, %d vectors remain", count)
	}
	docs, _ := reg.ListDocs()
	if len(docs) != 0 {
		t.Errorf("failed file should not be registered, got %d docs", len(docs))
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	uc := NewIndexUseCase(
		memstore.NewMemoryRegistry(),
		memstore.NewMemoryIndex(32),
		embedding.NewMockEmbedder(64),
		fs.NewWalker(nil, nil),
		chunker.NewLineChunker(20, 0),
		8,
		nil,
	)
	_, err := uc.Index(context.Background(), t.TempDir())
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func mustEmbed(t *testing.T, dim int, text string) []float32 {
	t.Helper()
	vec, err := embedding.NewMockEmbedder(dim).Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	return vec
}
