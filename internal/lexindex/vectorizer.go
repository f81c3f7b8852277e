package lexindex

import (
	"math"
	"regexp"
	"slices"
)

// tokenPattern keeps runs of at least two letters, digits or underscores.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

func analyze(normalized string) []string {
	return tokenPattern.FindAllString(normalized, -1)
}

// Vectorizer is the fitted term weighting model: a vocabulary mapping terms
// to matrix columns and a smoothed inverse document frequency per column.
type Vectorizer struct {
	terms      []string
	columns    map[string]int
	idf        []float64
	documents  int
	normalizer string
}

// fitVectorizer learns the vocabulary and idf weights from tokenized documents.
func fitVectorizer(docs [][]string, normalizerID string) *Vectorizer {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, tok := range doc {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	slices.Sort(terms)

	n := float64(len(docs))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	return newVectorizer(terms, idf, len(docs), normalizerID)
}

func newVectorizer(terms []string, idf []float64, documents int, normalizerID string) *Vectorizer {
	columns := make(map[string]int, len(terms))
	for i, term := range terms {
		columns[term] = i
	}
	return &Vectorizer{
		terms:      terms,
		columns:    columns,
		idf:        idf,
		documents:  documents,
		normalizer: normalizerID,
	}
}

// VocabularySize returns the number of distinct terms.
func (v *Vectorizer) VocabularySize() int {
	return len(v.terms)
}

// transform projects tokens onto the vocabulary and returns the L2
// normalized tf-idf vector as column-sorted (column, weight) pairs.
// Out-of-vocabulary tokens are ignored.
func (v *Vectorizer) transform(tokens []string) ([]int, []float64) {
	counts := make(map[int]float64)
	for _, tok := range tokens {
		if col, ok := v.columns[tok]; ok {
			counts[col]++
		}
	}
	if len(counts) == 0 {
		return nil, nil
	}

	cols := make([]int, 0, len(counts))
	for col := range counts {
		cols = append(cols, col)
	}
	slices.Sort(cols)

	weights := make([]float64, len(cols))
	var sumSq float64
	for i, col := range cols {
		w := counts[col] * v.idf[col]
		weights[i] = w
		sumSq += w * w
	}
	norm := math.Sqrt(sumSq)
	for i := range weights {
		weights[i] /= norm
	}
	return cols, weights
}
