// Package lesson loads lesson files as narratable plain text.
package lesson

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/muesli/gitcha"
	"github.com/sahilm/fuzzy"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Extensions are the file types treated as lessons.
var Extensions = []string{"*.md", "*.markdown", "*.txt"}

// Lesson is a loaded lesson. Text holds paragraphs separated by blank lines.
type Lesson struct {
	ID      string
	Title   string
	Path    string
	Text    string
	Modtime time.Time
}

// Load reads the lesson at path. Markdown is reduced to its text blocks.
func Load(path string) (*Lesson, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lesson: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat lesson: %w", err)
	}

	l := &Lesson{
		ID:      ID(path),
		Path:    path,
		Modtime: info.ModTime(),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		l.Title, l.Text = FromMarkdown(data)
	default:
		l.Text = strings.TrimSpace(string(data))
	}
	if l.Title == "" {
		l.Title = l.ID
	}
	return l, nil
}

// ID derives a stable lesson ID from a file name.
func ID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var md = goldmark.New()

// FromMarkdown returns the first heading and the text of every block, one
// paragraph per heading, paragraph or list item.
func FromMarkdown(source []byte) (title, body string) {
	doc := md.Parser().Parse(text.NewReader(source))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			s := blockText(n, source)
			if title == "" {
				title = s
			}
			blocks = append(blocks, s)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			blocks = append(blocks, blockText(n, source))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	var kept []string
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			kept = append(kept, b)
		}
	}
	return title, strings.Join(kept, "\n\n")
}

// blockText concatenates the text segments under n. Soft line breaks become
// spaces.
func blockText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(source))
			if c.SoftLineBreak() || c.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(c.Value)
		case *ast.CodeSpan:
			for t := c.FirstChild(); t != nil; t = t.NextSibling() {
				if s, ok := t.(*ast.Text); ok {
					buf.Write(s.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// Entry is a lesson file found on disk.
type Entry struct {
	ID      string
	Path    string // Relative to the search root
	Modtime time.Time
}

// Find lists lesson files under dir, honoring .gitignore unless all is set.
// Entries are sorted by path.
func Find(dir string, all bool) ([]Entry, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var ch chan gitcha.SearchResult
	if all {
		ch, err = gitcha.FindAllFilesExcept(abs, Extensions, nil)
	} else {
		ch, err = gitcha.FindFilesExcept(abs, Extensions, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search for lessons: %w", err)
	}

	var entries []Entry
	for res := range ch {
		rel, err := filepath.Rel(abs, res.Path)
		if err != nil {
			rel = res.Path
		}
		entries = append(entries, Entry{ID: ID(res.Path), Path: rel, Modtime: res.Info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Filter returns the entries whose path fuzzily matches pattern, best match
// first. An empty pattern returns entries unchanged.
func Filter(entries []Entry, pattern string) []Entry {
	if pattern == "" {
		return entries
	}
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}

	matches := fuzzy.Find(pattern, paths)
	out := make([]Entry, 0, len(matches))
	for _, m := range matches {
		out = append(out, entries[m.Index])
	}
	return out
}
