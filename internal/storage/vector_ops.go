package storage

import (
	"database/sql"
	"encoding/binary"
	"math"
	"sort"

	"github.com/dshills/knowledge-rag/pkg/types"
)

// candidate is a scored record awaiting ranking
type candidate struct {
	id       string
	source   string
	text     string
	distance float64
}

// scoreRows computes the cosine distance of each row to the query vector.
// Rows with a different dimension are skipped.
func scoreRows(rows *sql.Rows, query []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var (
			c    candidate
			blob []byte
		)
		if err := rows.Scan(&c.id, &c.source, &c.text, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(query) {
			continue
		}
		c.distance = cosineDistance(query, vector)
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// topK sorts candidates by distance, then id, and returns the first k as results
func topK(candidates []candidate, k int) []types.SearchResult {
	sortCandidates(candidates)
	if k > len(candidates) {
		k = len(candidates)
	}

	results := make([]types.SearchResult, k)
	for i := 0; i < k; i++ {
		c := candidates[i]
		results[i] = types.SearchResult{
			Rank:       i + 1,
			ID:         c.id,
			Source:     c.source,
			Content:    c.text,
			Distance:   c.distance,
			Similarity: 1 - c.distance,
		}
	}
	return results
}

// sortCandidates orders by ascending distance with id as the tie breaker
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].id < candidates[j].id
	})
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance is 1 - cosine similarity, in [0, 2]
func cosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
