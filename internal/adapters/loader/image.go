package loader

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// ImageOpener opens raster images (scans, photos) as a single unit
// with no machine text.
type ImageOpener struct{}

// NewImageOpener creates an image opener.
func NewImageOpener() *ImageOpener {
	return &ImageOpener{}
}

// Open checks that the file is a decodable image.
func (o *ImageOpener) Open(ctx context.Context, doc entities.Document) (ports.OpenedDocument, error) {
	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return nil, fmt.Errorf("reading image header of %s: %w", doc.Path, err)
	}
	return &imageDocument{path: doc.Path}, nil
}

// SupportedExtensions returns file extensions this opener handles.
func (o *ImageOpener) SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif"}
}

type imageDocument struct {
	path string
}

func (d *imageDocument) PageCount() int { return 1 }

func (d *imageDocument) Page(i int) (ports.Page, error) {
	if i != 0 {
		return nil, fmt.Errorf("page %d out of range", i)
	}
	return d, nil
}

func (d *imageDocument) Close() error { return nil }

// Text is always empty: images carry no text layer.
func (d *imageDocument) Text() (string, error) { return "", nil }

// Image decodes the file and downscales it to fit within bound.
func (d *imageDocument) Image(ctx context.Context, bound image.Point) (image.Image, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", d.path, err)
	}
	return FitWithin(img, bound), nil
}
