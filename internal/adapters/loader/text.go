package loader

import (
	"context"
	"os"
	"strings"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// TextOpener opens plain text files. Form feeds separate units.
type TextOpener struct{}

// NewTextOpener creates a new plain text opener.
func NewTextOpener() *TextOpener {
	return &TextOpener{}
}

// Open reads the whole file.
func (o *TextOpener) Open(ctx context.Context, doc entities.Document) (ports.OpenedDocument, error) {
	content, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, err
	}

	text := strings.ToValidUTF8(string(content), "�")
	parts := strings.Split(text, "\f")
	pages := make(textDocument, len(parts))
	for i, p := range parts {
		pages[i] = textPage(p)
	}
	return pages, nil
}

// SupportedExtensions returns file extensions this opener handles.
func (o *TextOpener) SupportedExtensions() []string {
	return []string{".txt", ".text"}
}
