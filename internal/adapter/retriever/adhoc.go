package retriever

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bookrag/internal/domain"
	"bookrag/internal/port"
	"bookrag/internal/vecmath"
)

// A run of sentence terminators followed by whitespace or end of text, or a
// blank line.
var fragmentBoundary = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n[ \t\r]*\n`)

const (
	DefaultMinFragmentChars    = 10
	DefaultFragmentConcurrency = 4
)

// SplitFragments cuts text at sentence and paragraph boundaries and drops
// trimmed fragments shorter than minChars runes. Order is preserved.
func SplitFragments(text string, minChars int) []string {
	var fragments []string
	for _, part := range fragmentBoundary.Split(text, -1) {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) < minChars {
			continue
		}
		fragments = append(fragments, part)
	}
	return fragments
}

// AdHocRanker scores fragments of user-supplied text against a query. Nothing
// is persisted.
type AdHocRanker struct {
	embedder    port.Embedder
	minChars    int
	concurrency int
	callTimeout time.Duration
	logger      *zap.Logger
}

type AdHocOption func(*AdHocRanker)

func WithMinFragmentChars(n int) AdHocOption {
	return func(r *AdHocRanker) { r.minChars = n }
}

func WithFragmentConcurrency(n int) AdHocOption {
	return func(r *AdHocRanker) { r.concurrency = n }
}

func WithCallTimeout(d time.Duration) AdHocOption {
	return func(r *AdHocRanker) { r.callTimeout = d }
}

func WithLogger(l *zap.Logger) AdHocOption {
	return func(r *AdHocRanker) { r.logger = l }
}

func NewAdHocRanker(embedder port.Embedder, opts ...AdHocOption) *AdHocRanker {
	r := &AdHocRanker{
		embedder:    embedder,
		minChars:    DefaultMinFragmentChars,
		concurrency: DefaultFragmentConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.minChars < 1 {
		r.minChars = DefaultMinFragmentChars
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	return r
}

// Rank returns up to q.TopK fragments of text ordered by cosine similarity to
// the query. Only the first 2*TopK fragments are scored. A fragment whose
// embedding fails is skipped; if none succeed the call is unavailable.
func (r *AdHocRanker) Rank(ctx context.Context, text string, q domain.Query) ([]domain.Passage, error) {
	fragments := SplitFragments(text, r.minChars)
	if len(fragments) == 0 {
		return []domain.Passage{}, nil
	}
	// Compared without multiplying so a huge TopK cannot overflow.
	if q.TopK < (len(fragments)+1)/2 {
		fragments = fragments[:2*q.TopK]
	}

	queryCtx, cancel := withTimeout(ctx, r.callTimeout)
	queryVec, err := r.embedder.Embed(queryCtx, q.Text)
	cancel()
	if err != nil {
		return nil, domain.Unavailable("ad hoc rank", domain.NewEmbeddingError("embed query", err))
	}

	vectors := make([][]float32, len(fragments))
	errs := make([]error, len(fragments))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, fragment := range fragments {
		g.Go(func() error {
			fragCtx, cancel := withTimeout(ctx, r.callTimeout)
			defer cancel()
			vectors[i], errs[i] = r.embedder.Embed(fragCtx, fragment)
			return nil
		})
	}
	_ = g.Wait()

	passages := make([]domain.Passage, 0, len(fragments))
	var lastErr error
	for i, fragment := range fragments {
		if errs[i] != nil {
			lastErr = errs[i]
			r.logger.Debug("skipping fragment", zap.Int("position", i), zap.Error(errs[i]))
			continue
		}
		position := strconv.Itoa(i)
		passages = append(passages, domain.Passage{
			ID:     "adhoc-" + position,
			Text:   fragment,
			Score:  vecmath.Cosine(queryVec, vectors[i]),
			Source: domain.SourceAdHoc,
			Metadata: map[string]string{
				"source":   "selected_text",
				"position": position,
			},
		})
	}

	if len(passages) == 0 {
		return nil, domain.Unavailable("ad hoc rank", domain.NewEmbeddingError("embed fragments", lastErr))
	}

	vecmath.SortPassages(passages)
	if len(passages) > q.TopK {
		passages = passages[:q.TopK]
	}
	return passages, nil
}
