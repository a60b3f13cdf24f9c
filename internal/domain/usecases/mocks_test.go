package usecases

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// mockPage implements ports.Page for testing
type mockPage struct {
	text    string
	textErr error
	img     image.Image // nil means no raster

	mu      sync.Mutex
	gotMax  image.Point
	renders int
}

func (p *mockPage) Text() (string, error) {
	return p.text, p.textErr
}

func (p *mockPage) Image(ctx context.Context, limit image.Point) (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotMax = limit
	p.renders++
	if p.img == nil {
		return nil, ports.ErrNoImage
	}
	return p.img, nil
}

// mockOpenedDoc implements ports.OpenedDocument for testing
type mockOpenedDoc struct {
	pages  []*mockPage
	closed atomic.Bool
}

func (d *mockOpenedDoc) PageCount() int { return len(d.pages) }

func (d *mockOpenedDoc) Page(i int) (ports.Page, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, errors.New("page out of range")
	}
	return d.pages[i], nil
}

func (d *mockOpenedDoc) Close() error {
	d.closed.Store(true)
	return nil
}

// mockOpener implements ports.DocumentOpener for testing.
// Documents are looked up by name.
type mockOpener struct {
	docs     map[string]*mockOpenedDoc
	failures map[string]error
	panicOn  string
	opens    atomic.Int32
}

func (o *mockOpener) Open(ctx context.Context, doc entities.Document) (ports.OpenedDocument, error) {
	o.opens.Add(1)
	if doc.Name == o.panicOn {
		panic("corrupt document")
	}
	if err, ok := o.failures[doc.Name]; ok {
		return nil, err
	}
	d, ok := o.docs[doc.Name]
	if !ok {
		return nil, errors.New("no such document")
	}
	return d, nil
}

func (o *mockOpener) SupportedExtensions() []string { return []string{".mock"} }

// mockOCR implements ports.OCRService for testing
type mockOCR struct {
	text  string
	err   error
	calls atomic.Int32
}

func (m *mockOCR) Recognize(ctx context.Context, img image.Image) (string, error) {
	m.calls.Add(1)
	return m.text, m.err
}

// mockSource implements ports.DocumentSource for testing
type mockSource struct {
	docs  []entities.Document
	err   error
	calls atomic.Int32
}

func (s *mockSource) Documents(ctx context.Context) ([]entities.Document, error) {
	s.calls.Add(1)
	return s.docs, s.err
}

// mockEmbedder implements ports.EmbeddingService for testing
type mockEmbedder struct {
	dim     int
	embedFn func(text string) ([]float32, error)
	calls   atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) Dimension() int {
	if m.dim == 0 {
		return 3
	}
	return m.dim
}

func doc(name string) entities.Document {
	return entities.Document{ID: name, Name: name, Path: "/corpus/" + name}
}

func textPages(texts ...string) *mockOpenedDoc {
	d := &mockOpenedDoc{}
	for _, t := range texts {
		d.pages = append(d.pages, &mockPage{text: t})
	}
	return d
}

// mockStore implements ports.VectorStore and ports.IndexMarkerStore for testing
type mockStore struct {
	mu       sync.Mutex
	records  []entities.Record
	marker   string
	insertFn func(chunk entities.Chunk) error
	scanErr  error
	scans    atomic.Int32
}

func (s *mockStore) Insert(ctx context.Context, chunk entities.Chunk, runID string) error {
	if s.insertFn != nil {
		if err := s.insertFn(chunk); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, entities.Record{
		ID:        int64(len(s.records) + 1),
		SourceID:  chunk.SourceID,
		Text:      chunk.Text,
		Embedding: chunk.Embedding,
		RunID:     runID,
	})
	return nil
}

func (s *mockStore) ScanAll(ctx context.Context) ([]entities.Record, error) {
	s.scans.Add(1)
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *mockStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *mockStore) IndexMarker(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker, nil
}

func (s *mockStore) SetIndexMarker(ctx context.Context, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = marker
	return nil
}

// discardingStore adds ports.RunDiscarder to mockStore
type discardingStore struct {
	*mockStore
	discards atomic.Int32
}

func (s *discardingStore) DiscardRun(ctx context.Context, runID string) (int, error) {
	s.discards.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]entities.Record, 0, len(s.records))
	for _, r := range s.records {
		if r.RunID != runID {
			kept = append(kept, r)
		}
	}
	n := len(s.records) - len(kept)
	s.records = kept
	return n, nil
}

// cancellingEmbedder behaves like catEmbedder but calls cancel the first
// time it sees the quantum text, as if the caller went away mid-pass.
func cancellingEmbedder(cancel context.CancelFunc) *mockEmbedder {
	base := catEmbedder()
	var once sync.Once
	return &mockEmbedder{embedFn: func(text string) ([]float32, error) {
		if strings.HasPrefix(text, "Quantum") {
			fired := false
			once.Do(func() {
				cancel()
				fired = true
			})
			if fired {
				return nil, context.Canceled
			}
		}
		return base.embedFn(text)
	}}
}
