package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"bookrag/config"
	"bookrag/internal/adapter/chunker"
	"bookrag/internal/adapter/embedding"
	"bookrag/internal/adapter/fs"
	"bookrag/internal/adapter/memstore"
	"bookrag/internal/adapter/qdrant"
	"bookrag/internal/adapter/session"
	"bookrag/internal/adapter/store"
	"bookrag/internal/port"
	"bookrag/internal/usecase"
)

// app holds the components one command invocation needs. Everything is built
// once here and passed down.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder port.Embedder
	index    port.VectorIndex
	registry port.DocRegistry
	bolt     *store.BoltStore
	closers  []func() error
}

// openApp wires the configured embedder and corpus index. With rebuild set,
// everything previously indexed under rootDir is discarded first.
func openApp(ctx context.Context, rootDir string, rebuild bool) (*app, error) {
	cfg := GetConfig()

	a := &app{cfg: cfg, logger: GetLogger()}

	embedder, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	a.embedder = embedder
	if c, ok := embedder.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	switch cfg.Index.Backend {
	case "memory":
		a.index = memstore.NewMemoryIndex(cfg.Embedding.Dimension)
		a.registry = memstore.NewMemoryRegistry()
	case "bolt", "qdrant":
		if err := a.openRegistry(rootDir); err != nil {
			a.Close()
			return nil, err
		}
		if rebuild && cfg.Index.Backend == "bolt" {
			if err := a.bolt.Clear(); err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to clear index: %w", err)
			}
		}
		if cfg.Index.Backend == "bolt" {
			idx, err := store.NewBoltVectorIndex(a.bolt.DB(), cfg.Embedding.Dimension)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to open vector index: %w", err)
			}
			a.index = idx
		} else {
			idx, err := qdrant.Dial(ctx, cfg.Index.Qdrant, cfg.Embedding.Dimension, a.logger)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.index = idx
			a.closers = append(a.closers, idx.Close)
			if rebuild {
				if err := a.purge(ctx); err != nil {
					a.Close()
					return nil, err
				}
			}
		}
		if err := a.bolt.CheckEmbedding(embedder.ModelName(), embedder.Dimension()); err != nil {
			a.Close()
			return nil, err
		}
	default:
		a.Close()
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Index.Backend)
	}

	return a, nil
}

func (a *app) openRegistry(rootDir string) error {
	if err := config.EnsureDataDir(rootDir); err != nil {
		return fmt.Errorf("failed to create .bookrag directory: %w", err)
	}
	st, err := store.NewBoltStore(config.IndexDBPath(rootDir))
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	a.bolt = st
	a.registry = st
	a.closers = append(a.closers, st.Close)
	return nil
}

// purge deletes every registered chunk from the remote index, then clears
// the local registry.
func (a *app) purge(ctx context.Context) error {
	docs, err := a.registry.ListDocs()
	if err != nil {
		return err
	}
	for _, doc := range docs {
		ids, err := a.registry.GetDocChunkIDs(doc.ID)
		if err != nil {
			return err
		}
		if err := a.index.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to purge %s: %w", doc.Path, err)
		}
	}
	return a.bolt.Clear()
}

func (a *app) indexer() *usecase.IndexUseCase {
	return usecase.NewIndexUseCase(
		a.registry,
		a.index,
		a.embedder,
		fs.NewWalker(a.cfg.Index.Includes, a.cfg.Index.Excludes),
		chunker.NewLineChunker(a.cfg.Index.ChunkTokens, a.cfg.Index.ChunkOverlap),
		a.cfg.Index.BatchSize,
		a.logger,
	)
}

// engine builds the retrieval engine and its session store. A memory-backed
// corpus is populated first since it does not survive between runs.
func (a *app) engine(ctx context.Context, rootDir string) (*usecase.RetrieveUseCase, error) {
	if a.cfg.Index.Backend == "memory" {
		if _, err := a.indexer().Index(ctx, rootDir); err != nil {
			return nil, fmt.Errorf("failed to populate in-memory index: %w", err)
		}
	}

	sessions, err := session.New(ctx, a.cfg.Session, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sessions.Close)

	return usecase.NewRetrieveUseCase(a.embedder, a.index, sessions, a.cfg.Retrieve, a.logger)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
