// Package corpus reads the AI Act source document and turns it into
// indexable passages.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/raphaelgruber/aiact-go/internal/lexindex"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"gopkg.in/yaml.v3"
)

// Heading is a chapter or section heading an article belongs to.
type Heading struct {
	Title string `yaml:"naslov"`
}

// Record is one article or point of the source document.
type Record struct {
	ID      string   `yaml:"id_elementa"`
	Title   string   `yaml:"naslov"`
	Content string   `yaml:"vsebina"`
	Chapter *Heading `yaml:"poglavje"`
	Section *Heading `yaml:"oddelek"`
}

// Document is the decoded source document.
type Document struct {
	Articles []Record `yaml:"cleni"`
	Points   []Record `yaml:"tocke"`
}

type rawDocument struct {
	Articles []map[string]any `yaml:"cleni"`
	Points   []map[string]any `yaml:"tocke"`
}

// Parse decodes a corpus document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	return &doc, nil
}

// Passages flattens the document into passages, articles first. Every
// record must carry an id and content, and ids must be unique.
func (d *Document) Passages() ([]models.Passage, error) {
	passages := make([]models.Passage, 0, len(d.Articles)+len(d.Points))
	seen := make(map[string]string, cap(passages))

	add := func(kind string, i int, r Record, text string) error {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return fmt.Errorf("%w: %s[%d] has no id_elementa", lexindex.ErrIndexBuild, kind, i)
		}
		if strings.TrimSpace(r.Content) == "" {
			return fmt.Errorf("%w: %s %q has no vsebina", lexindex.ErrIndexBuild, kind, id)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("%w: id %q appears in %s and %s", lexindex.ErrIndexBuild, id, prev, kind)
		}
		seen[id] = kind
		passages = append(passages, models.Passage{ID: id, Type: kind, RawText: text})
		return nil
	}

	for i, r := range d.Articles {
		if err := add(models.PassageArticle, i, r, articleText(r)); err != nil {
			return nil, err
		}
	}
	for i, r := range d.Points {
		if err := add(models.PassagePoint, i, r, r.Content); err != nil {
			return nil, err
		}
	}
	return passages, nil
}

// articleText prefixes the article body with its chapter, section and
// article headings.
func articleText(r Record) string {
	var b strings.Builder
	if r.Chapter != nil {
		b.WriteString(r.Chapter.Title)
		b.WriteString("\n")
	}
	if r.Section != nil && r.Section.Title != "" {
		b.WriteString(r.Section.Title)
		b.WriteString("\n")
	}
	b.WriteString(r.Title)
	b.WriteString("\n")
	b.WriteString(r.Content)
	return b.String()
}

// Catalog serves the corpus file at a fixed path: passages for index
// builds and raw records for part lookup. It rereads the file on Reload
// and on every Passages call, so a rebuild always sees the current file.
type Catalog struct {
	path string

	mu    sync.RWMutex
	parts map[string]map[string]any
}

// NewCatalog returns a catalog over the YAML file at path. The file is not
// read until first use.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Path returns the corpus file path.
func (c *Catalog) Path() string {
	return c.path
}

// Passages reads the corpus file and returns its passages in document order.
func (c *Catalog) Passages(ctx context.Context) ([]models.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.read()
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	passages, err := doc.Passages()
	if err != nil {
		return nil, err
	}
	if err := c.index(data); err != nil {
		return nil, err
	}
	return passages, nil
}

// Reload rereads the raw records used by Part.
func (c *Catalog) Reload() error {
	data, err := c.read()
	if err != nil {
		return err
	}
	return c.index(data)
}

// Part returns the raw source record with the given id. The boolean is
// false when no such record exists.
func (c *Catalog) Part(id string) (map[string]any, bool, error) {
	c.mu.RLock()
	parts := c.parts
	c.mu.RUnlock()

	if parts == nil {
		if err := c.Reload(); err != nil {
			return nil, false, err
		}
		c.mu.RLock()
		parts = c.parts
		c.mu.RUnlock()
	}

	part, ok := parts[id]
	return part, ok, nil
}

func (c *Catalog) read() ([]byte, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: corpus file %s not found", lexindex.ErrIndexBuild, c.path)
		}
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return data, nil
}

func (c *Catalog) index(data []byte) error {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse corpus: %w", err)
	}

	parts := make(map[string]map[string]any, len(raw.Articles)+len(raw.Points))
	for _, section := range [][]map[string]any{raw.Articles, raw.Points} {
		for _, item := range section {
			if id, ok := item["id_elementa"]; ok {
				parts[fmt.Sprint(id)] = item
			}
		}
	}

	c.mu.Lock()
	c.parts = parts
	c.mu.Unlock()
	return nil
}
