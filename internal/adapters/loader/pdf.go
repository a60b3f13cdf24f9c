package loader

import (
	"context"
	"fmt"
	"image"

	"github.com/ledongthuc/pdf"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// PDFOpener opens PDF files page by page. The text layer is read in-process;
// pages are rasterized through the renderer when OCR needs them.
type PDFOpener struct {
	renderer ports.PageRenderer // nil disables rasterization
}

// NewPDFOpener creates a PDF opener. renderer may be nil.
func NewPDFOpener(renderer ports.PageRenderer) *PDFOpener {
	return &PDFOpener{renderer: renderer}
}

// Open parses the PDF cross-reference table.
func (o *PDFOpener) Open(ctx context.Context, doc entities.Document) (opened ports.OpenedDocument, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			opened = nil
			err = fmt.Errorf("parsing %s: %v", doc.Path, r)
		}
	}()

	f, r, err := pdf.Open(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", doc.Path, err)
	}
	return &pdfDocument{
		closer:   f,
		reader:   r,
		pages:    r.NumPage(),
		path:     doc.Path,
		renderer: o.renderer,
	}, nil
}

// SupportedExtensions returns file extensions this opener handles.
func (o *PDFOpener) SupportedExtensions() []string {
	return []string{".pdf"}
}

type pdfDocument struct {
	closer   interface{ Close() error }
	reader   *pdf.Reader
	pages    int
	path     string
	renderer ports.PageRenderer
}

func (d *pdfDocument) PageCount() int { return d.pages }

func (d *pdfDocument) Page(i int) (page ports.Page, err error) {
	if i < 0 || i >= d.pages {
		return nil, fmt.Errorf("page %d out of range", i)
	}
	defer func() {
		if r := recover(); r != nil {
			page = nil
			err = fmt.Errorf("reading page %d: %v", i+1, r)
		}
	}()

	p := d.reader.Page(i + 1)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d missing", i+1)
	}
	return &pdfPage{doc: d, page: p, number: i + 1}, nil
}

func (d *pdfDocument) Close() error {
	return d.closer.Close()
}

type pdfPage struct {
	doc    *pdfDocument
	page   pdf.Page
	number int
}

// Text returns the page's text layer.
func (p *pdfPage) Text() (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("reading text of page %d: %v", p.number, r)
		}
	}()
	return p.page.GetPlainText(nil)
}

// Image rasterizes the page to fit within bound.
func (p *pdfPage) Image(ctx context.Context, bound image.Point) (image.Image, error) {
	if p.doc.renderer == nil {
		return nil, ports.ErrNoImage
	}
	img, err := p.doc.renderer.RenderPage(ctx, p.doc.path, p.number, bound)
	if err != nil {
		return nil, err
	}
	return FitWithin(img, bound), nil
}
