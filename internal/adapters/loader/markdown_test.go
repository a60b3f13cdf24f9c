package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
)

const guide = "Intro paragraph text.\n" +
	"\n" +
	"# Installation\n" +
	"\n" +
	"Run the *installer* and follow the [prompts](http://example.com).\n" +
	"\n" +
	"## Configuration\n" +
	"\n" +
	"- first option\n" +
	"- second option\n" +
	"\n" +
	"### Advanced\n" +
	"\n" +
	"Deep details.\n" +
	"\n" +
	"```\n" +
	"semsearch serve --watch\n" +
	"```\n" +
	"\n" +
	"# Empty\n"

func TestMarkdownOpener_SplitsAtTopHeadings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "guide.md", guide)

	d, err := NewMarkdownOpener().Open(context.Background(), entities.Document{Path: path})
	require.NoError(t, err)

	pages := pageTexts(t, d)
	require.Len(t, pages, 4)

	assert.Equal(t, "Intro paragraph text.", pages[0])

	assert.Contains(t, pages[1], "Installation")
	assert.Contains(t, pages[1], "installer")
	assert.Contains(t, pages[1], "prompts")
	assert.NotContains(t, pages[1], "*")
	assert.NotContains(t, pages[1], "http://example.com")

	assert.Contains(t, pages[2], "Configuration")
	assert.Contains(t, pages[2], "first option")
	assert.Contains(t, pages[2], "second option")
	assert.Contains(t, pages[2], "Advanced")
	assert.Contains(t, pages[2], "Deep details.")
	assert.Contains(t, pages[2], "semsearch serve --watch")
	assert.NotContains(t, pages[2], "```")

	assert.Equal(t, "Empty", pages[3])
}

func TestMarkdownOpener_NoHeadings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "plain.md", "just a paragraph\nover two lines\n")

	d, err := NewMarkdownOpener().Open(context.Background(), entities.Document{Path: path})
	require.NoError(t, err)

	pages := pageTexts(t, d)
	require.Len(t, pages, 1)
	assert.Equal(t, "just a paragraph\nover two lines", pages[0])
}

func TestMarkdownOpener_EmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.md", "")

	d, err := NewMarkdownOpener().Open(context.Background(), entities.Document{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 0, d.PageCount())
}
