// Package loader provides document openers and corpus sources.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/draw"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
)

// MultiOpener dispatches to an opener by file extension.
type MultiOpener struct {
	openers map[string]ports.DocumentOpener
}

// NewMultiOpener registers each opener for all of its extensions.
// Later openers win on conflicts.
func NewMultiOpener(openers ...ports.DocumentOpener) *MultiOpener {
	m := &MultiOpener{openers: make(map[string]ports.DocumentOpener)}
	for _, o := range openers {
		for _, ext := range o.SupportedExtensions() {
			m.openers[strings.ToLower(ext)] = o
		}
	}
	return m
}

// Open dispatches to the appropriate opener based on extension.
func (m *MultiOpener) Open(ctx context.Context, doc entities.Document) (ports.OpenedDocument, error) {
	ext := strings.ToLower(filepath.Ext(doc.Path))
	opener, ok := m.openers[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported document type %q", ext)
	}
	return opener.Open(ctx, doc)
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *MultiOpener) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.openers))
	for ext := range m.openers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DirectorySource lists every supported file under a directory.
type DirectorySource struct {
	root       string
	extensions map[string]struct{}
	logger     *slog.Logger
}

// NewDirectorySource creates a source for root filtered by extensions.
func NewDirectorySource(root string, extensions []string, logger *slog.Logger) *DirectorySource {
	if logger == nil {
		logger = slog.Default()
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &DirectorySource{root: root, extensions: exts, logger: logger}
}

// Documents walks the directory. Hidden files and directories are skipped.
// Names are slash-separated paths relative to the root.
func (s *DirectorySource) Documents(ctx context.Context) ([]entities.Document, error) {
	var docs []entities.Document

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			s.logger.Warn("Skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != s.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := s.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("Skipping unreadable file", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		docs = append(docs, entities.Document{
			ID:      generateDocID(path),
			Name:    filepath.ToSlash(rel),
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// StaticSource is a fixed list of files.
type StaticSource struct {
	paths []string
}

// NewStaticSource creates a source over the given paths, in order.
func NewStaticSource(paths ...string) *StaticSource {
	return &StaticSource{paths: paths}
}

// Documents returns one document per path. Files that cannot be stat'ed
// are still listed so that opening them fails and gets reported.
func (s *StaticSource) Documents(ctx context.Context) ([]entities.Document, error) {
	docs := make([]entities.Document, 0, len(s.paths))
	for _, path := range s.paths {
		doc := entities.Document{
			ID:   generateDocID(path),
			Name: filepath.Base(path),
			Path: path,
		}
		if info, err := os.Stat(path); err == nil {
			doc.Size = info.Size()
			doc.ModTime = info.ModTime()
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// generateDocID creates a deterministic ID for a document.
func generateDocID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}

// FitWithin downscales img to fit inside bound, preserving aspect ratio.
// Images that already fit are returned unchanged.
func FitWithin(img image.Image, bound image.Point) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= bound.X && h <= bound.Y {
		return img
	}

	scale := min(float64(bound.X)/float64(w), float64(bound.Y)/float64(h))
	nw := max(1, min(bound.X, int(math.Round(float64(w)*scale))))
	nh := max(1, min(bound.Y, int(math.Round(float64(h)*scale))))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// textPage is a unit with machine text and no raster.
type textPage string

func (p textPage) Text() (string, error) { return string(p), nil }

func (p textPage) Image(ctx context.Context, bound image.Point) (image.Image, error) {
	return nil, ports.ErrNoImage
}

// textDocument is an opened document made of text units.
type textDocument []textPage

func (d textDocument) PageCount() int { return len(d) }

func (d textDocument) Page(i int) (ports.Page, error) {
	if i < 0 || i >= len(d) {
		return nil, fmt.Errorf("page %d out of range", i)
	}
	return d[i], nil
}

func (d textDocument) Close() error { return nil }
