package usecase

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookrag/config"
	"bookrag/internal/adapter/embedding"
	"bookrag/internal/adapter/memstore"
	"bookrag/internal/adapter/session"
	"bookrag/internal/domain"
)

const testDim = 128

var corpusTexts = map[string]string{
	"ch1#0": "Inverse kinematics computes joint angles for a target pose",
	"ch1#1": "Forward kinematics maps joint angles to the end effector pose",
	"ch2#0": "Path planning finds a collision free route through obstacles",
	"ch3#0": "PID controllers reduce steady state error in motor speed",
	"ch4#0": "Lidar sensors measure distance with laser pulses",
}

type failingEmbedder struct{ dim int }

func (f failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("quota exceeded")
}
func (f failingEmbedder) Dimension() int    { return f.dim }
func (f failingEmbedder) ModelName() string { return "failing" }

// blockingEmbedder never answers on its own; it returns once ctx is done.
type blockingEmbedder struct {
	dim   int
	calls atomic.Int32
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}
func (b *blockingEmbedder) Dimension() int    { return b.dim }
func (b *blockingEmbedder) ModelName() string { return "blocking" }

// blockingIndex answers searches only when ctx is done.
type blockingIndex struct {
	*memstore.MemoryIndex
	searches atomic.Int32
}

func (b *blockingIndex) Search(ctx context.Context, query []float32, k int) ([]domain.IndexHit, error) {
	b.searches.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func testRetrieveConfig() config.RetrieveConfig {
	return config.DefaultConfig().Retrieve
}

func newEngine(t *testing.T) (*RetrieveUseCase, *session.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	emb := embedding.NewMockEmbedder(testDim)
	idx := memstore.NewMemoryIndex(testDim)
	for id, text := range corpusTexts {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{{ID: id, Vector: vec, Payload: domain.Payload{Text: text}}}))
	}

	sessions := session.NewMemoryStore(30 * time.Minute)
	engine, err := NewRetrieveUseCase(emb, idx, sessions, testRetrieveConfig(), zap.NewNop())
	require.NoError(t, err)
	return engine, sessions
}

func TestRetrieve_CorpusMode(t *testing.T) {
	engine, _ := newEngine(t)

	res, err := engine.Retrieve(context.Background(), "", domain.Query{Text: "joint angles kinematics", TopK: 3}, "")
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, domain.ModeCorpus, res.Mode)
	require.Len(t, res.Passages, 3)
	assert.Contains(t, []string{"ch1#0", "ch1#1"}, res.Passages[0].ID)
	for i, p := range res.Passages {
		assert.Equal(t, domain.SourceCorpus, p.Source)
		assert.GreaterOrEqual(t, p.Score, -1.0)
		assert.LessOrEqual(t, p.Score, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, res.Passages[i-1].Score, p.Score, "passages must be sorted by score")
		}
	}
}

func TestRetrieve_TopKBound(t *testing.T) {
	engine, _ := newEngine(t)

	for _, k := range []int{1, 2, 5, 10} {
		res, err := engine.Retrieve(context.Background(), "", domain.Query{Text: "robot", TopK: k}, "")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Passages), k)
	}
}

func TestRetrieve_AdHocModeAndFlipBack(t *testing.T) {
	engine, sessions := newEngine(t)
	ctx := context.Background()

	selection := "Hi. Gear ratios trade speed for torque in a drivetrain. Batteries limit how long a robot can run."
	res, err := engine.Retrieve(ctx, "", domain.Query{Text: "gear ratios torque", TopK: 3}, selection)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeAdHoc, res.Mode)
	require.Len(t, res.Passages, 2, "the short fragment is discarded")
	assert.Equal(t, "Gear ratios trade speed for torque in a drivetrain", res.Passages[0].Text)
	for _, p := range res.Passages {
		assert.Equal(t, domain.SourceAdHoc, p.Source)
		assert.True(t, strings.HasPrefix(p.ID, "adhoc-"))
	}

	res2, err := engine.Retrieve(ctx, res.SessionID, domain.Query{Text: "lidar distance", TopK: 2}, "")
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, res2.SessionID)
	assert.Equal(t, domain.ModeCorpus, res2.Mode)
	assert.Equal(t, domain.SourceCorpus, res2.Passages[0].Source)

	n, _ := sessions.Len(ctx)
	assert.Equal(t, 1, n)
}

func TestRetrieve_AdHocNoCandidates(t *testing.T) {
	engine, _ := newEngine(t)

	res, err := engine.Retrieve(context.Background(), "", domain.Query{Text: "anything", TopK: 3}, "Hi. Ok.")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAdHoc, res.Mode)
	assert.Empty(t, res.Passages)
	assert.NotNil(t, res.Passages)
}

func TestRetrieve_Idempotent(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	q := domain.Query{Text: "motor speed controller", TopK: 4}

	first, err := engine.Retrieve(ctx, "", q, "")
	require.NoError(t, err)
	second, err := engine.Retrieve(ctx, first.SessionID, q, "")
	require.NoError(t, err)
	assert.Equal(t, first.Passages, second.Passages)
}

func TestRetrieve_Validation(t *testing.T) {
	engine, sessions := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    domain.Query
	}{
		{"empty text", domain.Query{Text: "", TopK: 3}},
		{"whitespace text", domain.Query{Text: "  \n ", TopK: 3}},
		{"zero top_k", domain.Query{Text: "robots", TopK: 0}},
		{"negative top_k", domain.Query{Text: "robots", TopK: -1}},
		{"top_k above max", domain.Query{Text: "robots", TopK: 51}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Retrieve(ctx, "", tt.q, "some ad hoc text that is long enough")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Equal(t, http.StatusBadRequest, domain.StatusFor(err))
		})
	}

	n, _ := sessions.Len(ctx)
	assert.Equal(t, 0, n, "validation failures must not create sessions")
}

func TestRetrieve_FailurePropagation(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemoryStore(30 * time.Minute)
	engine, err := NewRetrieveUseCase(failingEmbedder{dim: testDim}, memstore.NewMemoryIndex(testDim), sessions, testRetrieveConfig(), nil)
	require.NoError(t, err)

	_, err = engine.Retrieve(ctx, "", domain.Query{Text: "robots", TopK: 3}, "")
	assert.True(t, errors.Is(err, domain.ErrRetrievalUnavailable), "corpus: got %v", err)
	assert.Equal(t, http.StatusInternalServerError, domain.StatusFor(err))

	_, err = engine.Retrieve(ctx, "", domain.Query{Text: "robots", TopK: 3}, "A selection that is long enough to rank.")
	assert.True(t, errors.Is(err, domain.ErrRetrievalUnavailable), "ad hoc: got %v", err)
}

func TestRetrieve_CallTimeout(t *testing.T) {
	const timeout = 20 * time.Millisecond
	cfg := testRetrieveConfig()
	cfg.CallTimeout = timeout

	tests := []struct {
		name      string
		adHocText string
	}{
		{"corpus", ""},
		{"ad hoc", "A selection that is long enough to rank."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &blockingEmbedder{dim: testDim}
			engine, err := NewRetrieveUseCase(emb, memstore.NewMemoryIndex(testDim), session.NewMemoryStore(time.Minute), cfg, nil)
			require.NoError(t, err)

			start := time.Now()
			_, err = engine.Retrieve(context.Background(), "", domain.Query{Text: "robots", TopK: 3}, tt.adHocText)
			elapsed := time.Since(start)

			assert.True(t, errors.Is(err, domain.ErrRetrievalUnavailable), "got %v", err)
			assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
			assert.Less(t, elapsed, 10*timeout)
			assert.Equal(t, int32(1), emb.calls.Load(), "timed out calls are not retried")
		})
	}
}

func TestRetrieve_IndexCallTimeout(t *testing.T) {
	const timeout = 20 * time.Millisecond
	cfg := testRetrieveConfig()
	cfg.CallTimeout = timeout

	idx := &blockingIndex{MemoryIndex: memstore.NewMemoryIndex(testDim)}
	engine, err := NewRetrieveUseCase(embedding.NewMockEmbedder(testDim), idx, session.NewMemoryStore(time.Minute), cfg, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = engine.Retrieve(context.Background(), "", domain.Query{Text: "robots", TopK: 3}, "")
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, domain.ErrRetrievalUnavailable), "got %v", err)
	assert.True(t, errors.Is(err, domain.ErrIndex), "got %v", err)
	assert.Less(t, elapsed, 10*timeout)
	assert.Equal(t, int32(1), idx.searches.Load())
}

func TestRetrieve_UnboundedTopK(t *testing.T) {
	engine, err := NewRetrieveUseCase(
		embedding.NewMockEmbedder(testDim),
		memstore.NewMemoryIndex(testDim),
		session.NewMemoryStore(time.Minute),
		config.RetrieveConfig{},
		nil,
	)
	require.NoError(t, err)

	selection := "Gear ratios trade speed for torque. Batteries limit how long a robot can run."
	res, err := engine.Retrieve(context.Background(), "", domain.Query{Text: "torque", TopK: math.MaxInt}, selection)
	require.NoError(t, err)
	assert.Len(t, res.Passages, 2)
}

func TestNewRetrieveUseCase_DimensionMismatch(t *testing.T) {
	_, err := NewRetrieveUseCase(
		embedding.NewMockEmbedder(768),
		memstore.NewMemoryIndex(1536),
		session.NewMemoryStore(time.Minute),
		testRetrieveConfig(),
		nil,
	)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestRunSweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := session.NewMemoryStore(time.Millisecond)
	engine, err := NewRetrieveUseCase(embedding.NewMockEmbedder(8), memstore.NewMemoryIndex(8), sessions, testRetrieveConfig(), nil)
	require.NoError(t, err)

	_, err = engine.Retrieve(ctx, "", domain.Query{Text: "robots", TopK: 1}, "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		engine.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, _ := sessions.Len(ctx)
		return n == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
