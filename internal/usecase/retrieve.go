package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"bookrag/config"
	"bookrag/internal/adapter/retriever"
	"bookrag/internal/domain"
	"bookrag/internal/port"
	"bookrag/internal/vecmath"
)

const tracerName = "bookrag/usecase"

// RetrieveUseCase is the retrieval engine. It resolves the caller's session,
// then answers from the corpus index or from the session's ad hoc text.
// Safe for concurrent use; it holds no lock across provider calls.
type RetrieveUseCase struct {
	sessions port.SessionStore
	corpus   *retriever.CorpusSearcher
	adhoc    *retriever.AdHocRanker
	maxTopK  int
	logger   *zap.Logger
	tracer   trace.Tracer
}

var _ port.RetrievalEngine = (*RetrieveUseCase)(nil)

// NewRetrieveUseCase wires the engine. The embedder and index must agree on
// vector dimension.
func NewRetrieveUseCase(
	embedder port.Embedder,
	index port.VectorIndex,
	sessions port.SessionStore,
	cfg config.RetrieveConfig,
	logger *zap.Logger,
) (*RetrieveUseCase, error) {
	if embedder.Dimension() != index.Dimension() {
		return nil, domain.DimensionMismatch("new engine", index.Dimension(), embedder.Dimension())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetrieveUseCase{
		sessions: sessions,
		corpus:   retriever.NewCorpusSearcher(index, embedder, cfg.CallTimeout),
		adhoc: retriever.NewAdHocRanker(embedder,
			retriever.WithMinFragmentChars(cfg.MinFragmentChars),
			retriever.WithFragmentConcurrency(cfg.FragmentConcurrency),
			retriever.WithCallTimeout(cfg.CallTimeout),
			retriever.WithLogger(logger),
		),
		maxTopK: cfg.MaxTopK,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Retrieve answers q for the session. Supplying adHocText puts the session in
// ad hoc mode for this and later turns until a turn omits it.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, sessionID string, q domain.Query, adHocText string) (domain.Retrieval, error) {
	ctx, span := u.tracer.Start(ctx, "Retrieve")
	defer span.End()
	start := time.Now()

	q.Text = strings.TrimSpace(q.Text)
	if err := u.validate(q); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.Retrieval{}, err
	}

	sess, err := u.sessions.Resolve(ctx, sessionID, adHocText)
	if err != nil {
		return domain.Retrieval{}, u.fail(span, domain.Unavailable("retrieve", err))
	}
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("session.mode", string(sess.Mode)),
		attribute.Int("query.top_k", q.TopK),
	)

	var passages []domain.Passage
	switch sess.Mode {
	case domain.ModeAdHoc:
		passages, err = u.adhoc.Rank(ctx, sess.AdHocText, q)
	default:
		passages, err = u.corpus.Search(ctx, q)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrRetrievalUnavailable) {
			err = domain.Unavailable("retrieve", err)
		}
		u.logger.Warn("retrieval failed",
			zap.String("session_id", sess.ID),
			zap.String("mode", string(sess.Mode)),
			zap.Error(err),
		)
		return domain.Retrieval{}, u.fail(span, err)
	}

	vecmath.SortPassages(passages)
	if len(passages) > q.TopK {
		passages = passages[:q.TopK]
	}
	if passages == nil {
		passages = []domain.Passage{}
	}

	span.SetAttributes(attribute.Int("result.count", len(passages)))
	u.logger.Debug("retrieved",
		zap.String("session_id", sess.ID),
		zap.String("mode", string(sess.Mode)),
		zap.Int("results", len(passages)),
		zap.Duration("latency", time.Since(start)),
	)

	return domain.Retrieval{
		SessionID: sess.ID,
		Mode:      sess.Mode,
		Passages:  passages,
	}, nil
}

func (u *RetrieveUseCase) validate(q domain.Query) error {
	if q.Text == "" {
		return domain.NewValidationError("retrieve", "query text is empty")
	}
	if q.TopK <= 0 {
		return domain.NewValidationError("retrieve", "top_k must be positive, got %d", q.TopK)
	}
	if u.maxTopK > 0 && q.TopK > u.maxTopK {
		return domain.NewValidationError("retrieve", "top_k %d exceeds maximum %d", q.TopK, u.maxTopK)
	}
	return nil
}

func (u *RetrieveUseCase) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// RunSweeper evicts expired sessions every interval until ctx is done.
func (u *RetrieveUseCase) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := u.sessions.Sweep(ctx)
			if err != nil {
				u.logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				u.logger.Debug("expired sessions removed", zap.Int("count", removed))
			}
		}
	}
}
