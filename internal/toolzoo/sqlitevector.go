package toolzoo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteVectorStore is a VectorStore backed by a single-table SQLite
// database: embeddings are packed into a BLOB column and similarity is
// computed in application code via brute-force cosine scan. There is no
// vec0 extension available without cgo, so Query does a full table scan;
// this is acceptable at the scale of a single gateway process's tool
// catalog (hundreds to low thousands of tools), not web-scale retrieval.
type SQLiteVectorStore struct {
	db *sql.DB
}

// NewSQLiteVectorStore opens (and migrates) a SQLite-backed vector store at
// path. Use ":memory:" for ephemeral/test use.
func NewSQLiteVectorStore(path string) (*SQLiteVectorStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tool zoo vector store: %w", err)
	}
	s := &SQLiteVectorStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteVectorStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_vectors (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			metadata TEXT NOT NULL,
			embedding BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create tool_vectors table: %w", err)
	}
	return nil
}

func (s *SQLiteVectorStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]string, documents []string) error {
	if len(ids) != len(vectors) || len(ids) != len(metadatas) || len(ids) != len(documents) {
		return fmt.Errorf("upsert: mismatched slice lengths")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tool_vectors (id, document, metadata, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document=excluded.document, metadata=excluded.metadata, embedding=excluded.embedding
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range ids {
		meta, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, documents[i], string(meta), encodeEmbedding(vectors[i])); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteVectorStore) Query(ctx context.Context, vector []float32, k int, whereFilter map[string]string) ([]VectorMatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, metadata, embedding FROM tool_vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []VectorMatch
	for rows.Next() {
		var id, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &metaJSON, &blob); err != nil {
			return nil, err
		}
		var metadata map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
		if !matchesFilter(metadata, whereFilter) {
			continue
		}
		sim := cosineSimilarity(vector, decodeEmbedding(blob))
		matches = append(matches, VectorMatch{
			ID:       id,
			Distance: 2 * (1 - sim), // invert similarityFromDistance: d = 2*(1-sim)
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *SQLiteVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM tool_vectors WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_vectors`).Scan(&n)
	return n, err
}

func (s *SQLiteVectorStore) Close() error { return s.db.Close() }

// encodeEmbedding packs a []float32 into IEEE-754 little-endian bytes.
func encodeEmbedding(embedding []float32) []byte {
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
