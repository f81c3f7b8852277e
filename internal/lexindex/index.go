// Package lexindex builds, persists and queries a tf-idf index over the
// legal corpus. Rows are L2 normalized, so cosine similarity is a dot product.
package lexindex

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/textnorm"
)

// Index is an immutable tf-idf index. Row i of the matrix belongs to
// passage i. It is safe for concurrent queries.
type Index struct {
	vectorizer *Vectorizer
	matrix     *Matrix
	passages   []models.Passage
	byID       map[string]int
	normalizer textnorm.Normalizer
}

// ProgressFunc reports how many passages have been normalized so far.
type ProgressFunc func(done, total int)

type buildOptions struct {
	progress ProgressFunc
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithProgress reports normalization progress during Build.
func WithProgress(fn ProgressFunc) BuildOption {
	return func(o *buildOptions) { o.progress = fn }
}

// Build fits a tf-idf model over the passages in the given order.
// Any invalid passage aborts the build.
func Build(passages []models.Passage, n textnorm.Normalizer, opts ...BuildOption) (*Index, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: empty corpus", ErrIndexBuild)
	}
	if n == nil {
		return nil, fmt.Errorf("%w: no normalizer", ErrIndexBuild)
	}

	byID := make(map[string]int, len(passages))
	for i, p := range passages {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("%w: passage %d has no id", ErrIndexBuild, i)
		}
		if strings.TrimSpace(p.RawText) == "" {
			return nil, fmt.Errorf("%w: passage %q has no text", ErrIndexBuild, p.ID)
		}
		if prev, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate passage id %q at %d and %d", ErrIndexBuild, p.ID, prev, i)
		}
		byID[p.ID] = i
	}

	stored := slices.Clone(passages)
	docs := make([][]string, len(stored))
	for i := range stored {
		stored[i].NormalizedText = n.Normalize(stored[i].RawText)
		docs[i] = analyze(stored[i].NormalizedText)
		if o.progress != nil {
			o.progress(i+1, len(passages))
		}
	}

	vec := fitVectorizer(docs, textnorm.ID(n))
	if vec.VocabularySize() == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary after normalization", ErrIndexBuild)
	}

	matrix := newMatrix(vec.VocabularySize())
	for _, doc := range docs {
		matrix.appendRow(vec.transform(doc))
	}

	return &Index{
		vectorizer: vec,
		matrix:     matrix,
		passages:   stored,
		byID:       byID,
		normalizer: n,
	}, nil
}

// Len returns the number of indexed passages.
func (idx *Index) Len() int {
	return len(idx.passages)
}

// Vectorizer returns the fitted weighting model.
func (idx *Index) Vectorizer() *Vectorizer {
	return idx.vectorizer
}

// Passage looks up an indexed passage by id.
func (idx *Index) Passage(id string) (models.Passage, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return models.Passage{}, false
	}
	return idx.passages[i], true
}

// Query ranks passages by cosine similarity to text. A k <= 0 returns all
// passages. Ties keep corpus order.
func (idx *Index) Query(text string, k int) []models.ScoredPassage {
	cols, weights := idx.vectorizer.transform(analyze(idx.normalizer.Normalize(text)))
	scores := idx.matrix.dot(cols, weights)

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	if k > 0 && k < len(order) {
		order = order[:k]
	}

	hits := make([]models.ScoredPassage, len(order))
	for i, row := range order {
		hits[i] = models.ScoredPassage{Passage: idx.passages[row], Score: scores[row]}
	}
	return hits
}
