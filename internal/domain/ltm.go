package domain

// LTMNote is an indexed long-term memory note from the markdown vault.
type LTMNote struct {
	Path       string   `json:"path"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	ModifiedAt int64    `json:"modified_at"`
}

// LTMSearchResult pairs a note with its query relevance in [0,1].
type LTMSearchResult struct {
	Note      *LTMNote `json:"note"`
	Relevance float64  `json:"relevance"`
}
