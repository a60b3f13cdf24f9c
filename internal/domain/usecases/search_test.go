package usecases

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
)

const (
	catText     = "The cat sat on the mat and watched the birds outside the kitchen window."
	quantumText = "Quantum entanglement theory describes correlations between distant particles."
)

// catEmbedder maps texts onto fixed axes for the cat/quantum corpus.
func catEmbedder() *mockEmbedder {
	return &mockEmbedder{embedFn: func(text string) ([]float32, error) {
		switch {
		case text == "cat":
			return []float32{0.9, 0.1, 0}, nil
		case strings.HasPrefix(text, "The cat"):
			return []float32{1, 0, 0}, nil
		case strings.HasPrefix(text, "Quantum"):
			return []float32{0, 1, 0}, nil
		}
		return []float32{0, 0, 1}, nil
	}}
}

type engineFixture struct {
	opener   *mockOpener
	source   *mockSource
	embedder *mockEmbedder
	store    *mockStore
	engine   *SearchEngine
}

func newFixture(docs map[string]*mockOpenedDoc, embedder *mockEmbedder, cfg EngineConfig) *engineFixture {
	f := &engineFixture{
		opener:   &mockOpener{docs: docs},
		source:   &mockSource{},
		embedder: embedder,
		store:    &mockStore{},
	}
	for name := range docs {
		f.source.docs = append(f.source.docs, doc(name))
	}
	ex := NewTextExtractor(f.opener, nil, image.Point{}, nil)
	ix := NewIndexer(f.source, ex, f.embedder, f.store, IndexerConfig{}, nil)
	f.engine = NewSearchEngine(ix, f.embedder, f.store, cfg, nil)
	return f
}

func TestSearchEngine_CatScenario(t *testing.T) {
	f := newFixture(map[string]*mockOpenedDoc{
		"animals.pdf": textPages(catText, quantumText),
	}, catEmbedder(), EngineConfig{})

	results, err := f.engine.Retrieve(context.Background(), "cat", 3)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, catText, results[0].Text)
	assert.Equal(t, "animals.pdf#1", results[0].SourceID)
	assert.Greater(t, results[0].Score, results[1].Score)

	assert.Equal(t, catText, f.engine.Search(context.Background(), "cat"))
}

func TestSearchEngine_IndexesOnce(t *testing.T) {
	f := newFixture(map[string]*mockOpenedDoc{
		"animals.pdf": textPages(catText, quantumText),
	}, catEmbedder(), EngineConfig{})
	ctx := context.Background()

	assert.Equal(t, entities.NotIndexed, f.engine.State())
	f.engine.Search(ctx, "cat")
	f.engine.Search(ctx, "cat")

	assert.Equal(t, entities.Indexed, f.engine.State())
	assert.Equal(t, int32(1), f.source.calls.Load())
	assert.Equal(t, int32(1), f.opener.opens.Load())
	// two chunks once, plus one query embedding per search
	assert.Equal(t, int32(4), f.embedder.calls.Load())
	assert.Len(t, f.store.records, 2)
}

func TestSearchEngine_ConcurrentSearchesIndexOnce(t *testing.T) {
	f := newFixture(map[string]*mockOpenedDoc{
		"animals.pdf": textPages(catText, quantumText),
	}, catEmbedder(), EngineConfig{})

	var wg sync.WaitGroup
	answers := make([]string, 16)
	for i := range answers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answers[i] = f.engine.Search(context.Background(), "cat")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.opener.opens.Load())
	assert.Len(t, f.store.records, 2)
	for _, a := range answers {
		assert.Equal(t, catText, a)
	}
}

func TestSearchEngine_BlocksScansUntilIndexed(t *testing.T) {
	release := make(chan struct{})
	embedder := catEmbedder()
	inner := embedder.embedFn
	embedder.embedFn = func(text string) ([]float32, error) {
		if text != "cat" {
			<-release
		}
		return inner(text)
	}
	f := newFixture(map[string]*mockOpenedDoc{
		"animals.pdf": textPages(catText, quantumText),
	}, embedder, EngineConfig{})

	done := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() { done <- f.engine.Search(context.Background(), "cat") }()
	}

	require.Eventually(t, func() bool { return f.engine.State() == entities.Indexing }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), f.store.scans.Load())
	close(release)

	for i := 0; i < 2; i++ {
		assert.Equal(t, catText, <-done)
	}
	assert.Equal(t, int32(1), f.opener.opens.Load())
}

func TestSearchEngine_EmptyCorpus(t *testing.T) {
	f := newFixture(map[string]*mockOpenedDoc{}, catEmbedder(), EngineConfig{})

	_, err := f.engine.Answer(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoAnswerFound)
	assert.Equal(t, MsgNoAnswerFound, f.engine.Search(context.Background(), "anything"))
	assert.Equal(t, entities.Indexed, f.engine.State())
}

func TestSearchEngine_BlankBestResult(t *testing.T) {
	f := newFixture(map[string]*mockOpenedDoc{}, catEmbedder(), EngineConfig{})
	f.store.records = []entities.Record{{ID: 1, SourceID: "x#1", Text: "  \n ", Embedding: []float32{1, 0, 0}}}

	_, err := f.engine.Answer(context.Background(), "cat")
	assert.ErrorIs(t, err, ErrNoAnswerFound)
}

func TestSearchEngine_QueryEmbeddingFailure(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) ([]float32, error)
	}{
		{"error", func(string) ([]float32, error) { return nil, errors.New("model offline") }},
		{"empty", func(string) ([]float32, error) { return nil, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(map[string]*mockOpenedDoc{}, &mockEmbedder{embedFn: tt.fn}, EngineConfig{})

			_, err := f.engine.Answer(context.Background(), "cat")
			assert.ErrorIs(t, err, ErrEmbeddingFailure)
			assert.Equal(t, MsgEmbeddingFailure, f.engine.Search(context.Background(), "cat"))
		})
	}
}

func TestSearchEngine_QueryTimeout(t *testing.T) {
	var hasDeadline bool
	f := newFixture(map[string]*mockOpenedDoc{}, &mockEmbedder{}, EngineConfig{QueryTimeout: time.Minute})
	f.engine.embedder = ctxEmbedder{fn: func(ctx context.Context) {
		_, hasDeadline = ctx.Deadline()
	}}

	_, _ = f.engine.Answer(context.Background(), "cat")
	assert.True(t, hasDeadline)
}

// ctxEmbedder reports the context each call receives.
type ctxEmbedder struct {
	fn func(ctx context.Context)
}

func (c ctxEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.fn(ctx)
	return []float32{1, 0, 0}, nil
}

func (c ctxEmbedder) Dimension() int { return 3 }

func TestSearchEngine_TruncatesAnswer(t *testing.T) {
	text := strings.Repeat("a", 1000)
	f := newFixture(map[string]*mockOpenedDoc{"big.txt": textPages(text)}, &mockEmbedder{}, EngineConfig{})

	answer, err := f.engine.Answer(context.Background(), "a")

	require.NoError(t, err)
	assert.Len(t, answer, 500)
	assert.Equal(t, text[:500], answer)
}

func TestSearchEngine_ConfigurableAnswerCap(t *testing.T) {
	text := strings.Repeat("b", 200)
	f := newFixture(map[string]*mockOpenedDoc{"big.txt": textPages(text)}, &mockEmbedder{}, EngineConfig{MaxAnswerChars: 60})

	answer, err := f.engine.Answer(context.Background(), "b")

	require.NoError(t, err)
	assert.Equal(t, text[:60], answer)
}

func TestSearchEngine_PanicRevertsToNotIndexed(t *testing.T) {
	explode := true
	embedder := &mockEmbedder{embedFn: func(text string) ([]float32, error) {
		if explode {
			panic("embedding runtime crashed")
		}
		return []float32{1, 0, 0}, nil
	}}
	f := newFixture(map[string]*mockOpenedDoc{"a.txt": textPages(catText)}, embedder, EngineConfig{})

	msg := f.engine.Search(context.Background(), "cat")
	assert.True(t, strings.HasPrefix(msg, MsgSearchFailed), msg)
	assert.Equal(t, entities.NotIndexed, f.engine.State())

	explode = false
	assert.Equal(t, catText, f.engine.Search(context.Background(), "cat"))
	assert.Equal(t, entities.Indexed, f.engine.State())
	assert.Equal(t, int32(2), f.source.calls.Load())
}

func TestSearchEngine_SourcePanicRevertsToNotIndexed(t *testing.T) {
	f := newFixture(map[string]*mockOpenedDoc{}, &mockEmbedder{}, EngineConfig{})
	f.engine.indexer.source = panicSource{}

	err := f.engine.EnsureIndexed(context.Background())

	require.Error(t, err)
	assert.Equal(t, entities.NotIndexed, f.engine.State())
}

type panicSource struct{}

func (panicSource) Documents(ctx context.Context) ([]entities.Document, error) {
	panic("listing exploded")
}

func TestSearchEngine_RetryAfterCancelledPassHasNoDuplicates(t *testing.T) {
	opener := &mockOpener{docs: map[string]*mockOpenedDoc{"animals.pdf": textPages(catText, quantumText)}}
	source := &mockSource{docs: []entities.Document{doc("animals.pdf")}}
	store := &discardingStore{mockStore: &mockStore{}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder := cancellingEmbedder(cancel)
	ix := NewIndexer(source, NewTextExtractor(opener, nil, image.Point{}, nil), embedder, store, IndexerConfig{}, nil)
	engine := NewSearchEngine(ix, embedder, store, EngineConfig{}, nil)

	require.Error(t, engine.EnsureIndexed(ctx))
	assert.Equal(t, entities.NotIndexed, engine.State())

	results, err := engine.Retrieve(context.Background(), "cat", 3)
	require.NoError(t, err)
	assert.Equal(t, entities.Indexed, engine.State())

	count, _ := store.Count(context.Background())
	assert.Equal(t, 2, count)
	require.Len(t, results, 2)
	assert.Equal(t, "animals.pdf#1", results[0].SourceID)
	assert.Equal(t, "animals.pdf#2", results[1].SourceID)
}

func TestSearchEngine_IgnoresUndiscardedAbortedRun(t *testing.T) {
	opener := &mockOpener{docs: map[string]*mockOpenedDoc{"animals.pdf": textPages(catText, quantumText)}}
	source := &mockSource{docs: []entities.Document{doc("animals.pdf")}}
	store := &mockStore{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder := cancellingEmbedder(cancel)
	ix := NewIndexer(source, NewTextExtractor(opener, nil, image.Point{}, nil), embedder, store, IndexerConfig{}, nil)
	engine := NewSearchEngine(ix, embedder, store, EngineConfig{}, nil)

	require.Error(t, engine.EnsureIndexed(ctx))

	results, err := engine.Retrieve(context.Background(), "cat", 3)
	require.NoError(t, err)

	// The aborted record is still stored but never ranked.
	count, _ := store.Count(context.Background())
	assert.Equal(t, 3, count)
	require.Len(t, results, 2)
	assert.Equal(t, "animals.pdf#1", results[0].SourceID)
	assert.Equal(t, "animals.pdf#2", results[1].SourceID)
}

func TestSearchEngine_StoreScanFailure(t *testing.T) {
	f := newFixture(map[string]*mockOpenedDoc{}, &mockEmbedder{}, EngineConfig{})
	f.store.scanErr = errors.New("database locked")

	_, err := f.engine.Answer(context.Background(), "cat")
	assert.ErrorContains(t, err, "database locked")
}

func TestSearchEngine_LastReport(t *testing.T) {
	f := newFixture(map[string]*mockOpenedDoc{"animals.pdf": textPages(catText, quantumText)}, catEmbedder(), EngineConfig{})
	assert.Nil(t, f.engine.LastReport())

	require.NoError(t, f.engine.EnsureIndexed(context.Background()))

	report := f.engine.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Documents)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "héé", Truncate("hééllo", 3))
	assert.Equal(t, "日本", Truncate("日本語", 2))
}
