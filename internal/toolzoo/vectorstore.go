package toolzoo

import "context"

// VectorMatch is one result row from a VectorStore Query.
type VectorMatch struct {
	ID       string
	Distance float32
	Metadata map[string]string
}

// VectorStore is the vector-store collaborator the core spec names but does
// not implement from scratch: persistent on disk, id-addressed upsert,
// nearest-neighbor query with an optional where-filter, delete, and count.
type VectorStore interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]string, documents []string) error
	Query(ctx context.Context, vector []float32, k int, whereFilter map[string]string) ([]VectorMatch, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// similarityFromDistance converts a cosine distance in [0,2] to a similarity
// in [0,1], per the SemanticSearch contract: sim = 1 - d/2.
func similarityFromDistance(distance float32) float64 {
	return 1 - float64(distance)/2
}

func matchesFilter(metadata map[string]string, whereFilter map[string]string) bool {
	for k, v := range whereFilter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
