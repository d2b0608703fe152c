package toolzoo

import (
	"context"

	"github.com/ucpgw/ucpgw/internal/toolzoo/postgres"
)

// PostgresVectorStore adapts postgres.Store to the VectorStore interface.
type PostgresVectorStore struct {
	store *postgres.Store
}

// NewPostgresVectorStore opens a Postgres-backed vector store.
func NewPostgresVectorStore(cfg postgres.Config) (*PostgresVectorStore, error) {
	s, err := postgres.New(cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresVectorStore{store: s}, nil
}

func (p *PostgresVectorStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]string, documents []string) error {
	return p.store.Upsert(ctx, ids, vectors, metadatas, documents)
}

func (p *PostgresVectorStore) Query(ctx context.Context, vector []float32, k int, whereFilter map[string]string) ([]VectorMatch, error) {
	matches, err := p.store.Query(ctx, vector, k, whereFilter)
	if err != nil {
		return nil, err
	}
	out := make([]VectorMatch, len(matches))
	for i, m := range matches {
		out[i] = VectorMatch{ID: m.ID, Distance: m.Distance, Metadata: m.Metadata}
	}
	return out, nil
}

func (p *PostgresVectorStore) Delete(ctx context.Context, ids []string) error {
	return p.store.Delete(ctx, ids)
}

func (p *PostgresVectorStore) Count(ctx context.Context) (int, error) {
	return p.store.Count(ctx)
}

func (p *PostgresVectorStore) Close() error {
	return p.store.Close()
}
