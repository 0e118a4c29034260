package types

// SearchResult represents a single retrieved chunk with relevance information
type SearchResult struct {
	Rank       int     // Position in result set (1-based)
	ID         string  // Chunk id
	Source     string  // Metadata source of the chunk
	Content    string  // Chunk text
	Distance   float64 // Cosine distance, lower is closer
	Similarity float64 // 1 - Distance
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.Source == "" {
		return ErrMissingMetadataSrc
	}
	if sr.Content == "" {
		return ErrEmptyContent
	}
	return nil
}
