package types

// Metadata is the per-record metadata schema of the vector store
type Metadata struct {
	Source string `json:"source"`
}

// VectorRecord is the unit stored in the vector index
type VectorRecord struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// RecordFromChunk pairs a chunk with its embedding
func RecordFromChunk(c Chunk, vector []float32) VectorRecord {
	return VectorRecord{
		ID:       c.ID,
		Vector:   vector,
		Text:     c.Text,
		Metadata: Metadata{Source: c.SourceKey},
	}
}

// Validate checks that the record can be stored
func (r *VectorRecord) Validate() error {
	if r.ID == "" {
		return ErrEmptySourceKey
	}
	if len(r.Vector) == 0 {
		return ErrEmptyVector
	}
	if r.Metadata.Source == "" {
		return ErrMissingMetadataSrc
	}
	return nil
}
