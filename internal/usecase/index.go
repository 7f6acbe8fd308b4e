package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bookrag/internal/adapter/chunker"
	"bookrag/internal/adapter/fs"
	"bookrag/internal/domain"
	"bookrag/internal/port"
)

const embedConcurrency = 4

// IndexUseCase populates the corpus: book files are walked, chunked,
// embedded and upserted into the vector index. Unchanged files are skipped.
type IndexUseCase struct {
	registry  port.DocRegistry
	index     port.VectorIndex
	embedder  port.Embedder
	walker    port.FileWalker
	chunker   port.Chunker
	batchSize int
	logger    *zap.Logger

	// OnProgress, when set, is called after each file with the number of
	// files processed so far and the total.
	OnProgress func(done, total int)
}

func NewIndexUseCase(
	registry port.DocRegistry,
	index port.VectorIndex,
	embedder port.Embedder,
	walker port.FileWalker,
	chunker port.Chunker,
	batchSize int,
	logger *zap.Logger,
) *IndexUseCase {
	if batchSize <= 0 {
		batchSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexUseCase{
		registry:  registry,
		index:     index,
		embedder:  embedder,
		walker:    walker,
		chunker:   chunker,
		batchSize: batchSize,
		logger:    logger,
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesDeleted  int
	ChunksCreated int
	Errors        []string
}

// Index indexes book files under root.
func (u *IndexUseCase) Index(ctx context.Context, root string) (*IndexResult, error) {
	if u.embedder.Dimension() != u.index.Dimension() {
		return nil, domain.DimensionMismatch("index", u.index.Dimension(), u.embedder.Dimension())
	}

	result := &IndexResult{}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	existingDocs, err := u.registry.ListDocs()
	if err != nil {
		return nil, fmt.Errorf("failed to list existing docs: %w", err)
	}

	existingMap := make(map[string]domain.Document)
	for _, doc := range existingDocs {
		existingMap[doc.Path] = doc
	}
	seenPaths := make(map[string]bool)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		seenPaths[file.Path] = true

		if existing, ok := existingMap[file.Path]; ok {
			if existing.ModTime.Unix() >= file.ModTime {
				result.FilesSkipped++
				u.progress(i+1, len(files))
				continue
			}
			if err := u.deleteDocument(ctx, existing.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to delete old data for %s: %v", file.Path, err))
			}
		}

		n, err := u.indexFile(ctx, absRoot, file)
		if err != nil {
			u.logger.Warn("failed to index file", zap.String("path", file.Path), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("failed to index %s: %v", file.Path, err))
		} else {
			result.FilesIndexed++
			result.ChunksCreated += n
		}
		u.progress(i+1, len(files))
	}

	for path, doc := range existingMap {
		if seenPaths[path] {
			continue
		}
		if err := u.deleteDocument(ctx, doc.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to delete %s: %v", path, err))
		} else {
			result.FilesDeleted++
		}
	}

	u.logger.Info("index complete",
		zap.Int("indexed", result.FilesIndexed),
		zap.Int("skipped", result.FilesSkipped),
		zap.Int("deleted", result.FilesDeleted),
		zap.Int("chunks", result.ChunksCreated),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (u *IndexUseCase) progress(done, total int) {
	if u.OnProgress != nil {
		u.OnProgress(done, total)
	}
}

// indexFile embeds and upserts one file and registers it only after every
// batch is stored, so a failed file is retried on the next run.
func (u *IndexUseCase) indexFile(ctx context.Context, root string, file port.FileInfo) (int, error) {
	content, err := fs.ReadFile(file.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	relPath, err := filepath.Rel(root, file.Path)
	if err != nil {
		relPath = file.Path
	}
	relPath = filepath.ToSlash(relPath)

	doc := domain.Document{
		ID:      generateDocID(file.Path),
		Path:    file.Path,
		Title:   chunker.Title(content, filepath.Base(file.Path)),
		ModTime: time.Unix(file.ModTime, 0),
	}

	chunks, err := u.chunker.Chunk(doc, content)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk content: %w", err)
	}

	chunkIDs := make([]string, 0, len(chunks))
	for start := 0; start < len(chunks); start += u.batchSize {
		end := min(start+u.batchSize, len(chunks))
		entries, err := u.embedBatch(ctx, doc, relPath, chunks[start:end])
		if err != nil {
			u.rollback(ctx, file.Path, chunkIDs)
			return 0, err
		}
		if err := u.index.Upsert(ctx, entries); err != nil {
			u.rollback(ctx, file.Path, chunkIDs)
			return 0, err
		}
		for _, e := range entries {
			chunkIDs = append(chunkIDs, e.ID)
		}
	}

	if err := u.registry.PutDoc(doc, chunkIDs); err != nil {
		u.rollback(ctx, file.Path, chunkIDs)
		return 0, fmt.Errorf("failed to store document: %w", err)
	}
	return len(chunks), nil
}

// rollback removes the chunks of a file that failed part way. Unregistered
// vectors would otherwise stay searchable with nothing tracking them.
func (u *IndexUseCase) rollback(ctx context.Context, path string, chunkIDs []string) {
	if len(chunkIDs) == 0 {
		return
	}
	if err := u.index.Delete(context.WithoutCancel(ctx), chunkIDs); err != nil {
		u.logger.Warn("failed to roll back partial file",
			zap.String("path", path),
			zap.Int("chunks", len(chunkIDs)),
			zap.Error(err),
		)
	}
}

func (u *IndexUseCase) embedBatch(ctx context.Context, doc domain.Document, relPath string, chunks []domain.Chunk) ([]domain.IndexEntry, error) {
	entries := make([]domain.IndexEntry, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, c := range chunks {
		g.Go(func() error {
			vec, err := u.embedder.Embed(gctx, c.Text)
			if err != nil {
				return domain.NewEmbeddingError("index chunk", err)
			}
			entries[i] = domain.IndexEntry{
				ID:     c.ID,
				Vector: vec,
				Payload: domain.Payload{
					Text: c.Text,
					Metadata: map[string]string{
						"path":       relPath,
						"title":      doc.Title,
						"start_line": strconv.Itoa(c.StartLine),
						"end_line":   strconv.Itoa(c.EndLine),
					},
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// deleteDocument removes a document's vectors and its registry entry.
func (u *IndexUseCase) deleteDocument(ctx context.Context, docID string) error {
	ids, err := u.registry.GetDocChunkIDs(docID)
	if err != nil {
		return err
	}
	if err := u.index.Delete(ctx, ids); err != nil {
		return err
	}
	return u.registry.DeleteDoc(docID)
}

// generateDocID creates a unique ID for a document based on its path.
func generateDocID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}
