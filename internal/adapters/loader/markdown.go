package loader

import (
	"context"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// MarkdownOpener opens Markdown files. Each H1/H2 section is one unit,
// rendered to plain text without markup.
type MarkdownOpener struct {
	md goldmark.Markdown
}

// NewMarkdownOpener creates a Markdown opener.
func NewMarkdownOpener() *MarkdownOpener {
	return &MarkdownOpener{md: goldmark.New()}
}

// Open parses the file and splits it into sections.
func (o *MarkdownOpener) Open(ctx context.Context, doc entities.Document) (ports.OpenedDocument, error) {
	source, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, err
	}
	return textDocument(o.sections(source)), nil
}

// SupportedExtensions returns file extensions this opener handles.
func (o *MarkdownOpener) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// sections splits the document at top-level headings of level 1 or 2.
// Sections without any text are dropped.
func (o *MarkdownOpener) sections(source []byte) []textPage {
	root := o.md.Parser().Parse(text.NewReader(source))

	var pages []textPage
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			pages = append(pages, textPage(s))
		}
		cur.Reset()
	}

	for block := root.FirstChild(); block != nil; block = block.NextSibling() {
		if h, ok := block.(*ast.Heading); ok && h.Level <= 2 {
			flush()
		}
		writePlain(&cur, block, source)
		cur.WriteString("\n\n")
	}
	flush()

	return pages
}

// writePlain appends the text content of a block node.
func writePlain(b *strings.Builder, block ast.Node, source []byte) {
	ast.Walk(block, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n != block && n.NextSibling() != nil {
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.URL(source))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
}
