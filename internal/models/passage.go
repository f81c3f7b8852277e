package models

// Passage types as they appear in the corpus.
const (
	PassageArticle = "cleni"
	PassagePoint   = "tocke"
)

// Passage is one retrievable unit of the legal corpus.
type Passage struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	RawText string `json:"raw_text"`

	// NormalizedText is derived from RawText when the passage is indexed.
	NormalizedText string `json:"normalized_text,omitempty"`
}

// ScoredPassage is a passage ranked against a query.
type ScoredPassage struct {
	Passage
	Score float64 `json:"similarity_score"`
}
