// Package postgres is an alternate VectorStore backend for the Tool Zoo,
// for operators who prefer a centralized database over a per-process SQLite
// file. It does not depend on the pgvector extension's custom column type
// (no driver in this module's dependency set registers it); instead it
// stores the embedding as BYTEA and computes cosine similarity in Go, the
// same brute-force approach the SQLite backend uses. At the scale of one
// gateway's tool catalog this is not a meaningful cost versus native
// vector search.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements toolzoo.VectorStore against PostgreSQL.
type Store struct {
	db     *sql.DB
	ownsDB bool
}

// Config configures the Postgres-backed vector store.
type Config struct {
	DSN           string
	DB            *sql.DB
	RunMigrations bool
}

// New opens (and optionally migrates) a Postgres-backed vector store.
func New(cfg Config) (*Store, error) {
	var db *sql.DB
	var ownsDB bool
	var err error

	switch {
	case cfg.DB != nil:
		db = cfg.DB
	case cfg.DSN != "":
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		ownsDB = true
		if err := db.PingContext(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("either DSN or DB must be provided")
	}

	s := &Store{db: db, ownsDB: ownsDB}
	if cfg.RunMigrations {
		if err := s.runMigrations(context.Background()); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return s, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tool_zoo_schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tool_zoo_schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		applied[id] = true
	}
	rows.Close()

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".sql") || applied[entry.Name()] {
			continue
		}
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return err
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tool_zoo_schema_migrations (id) VALUES ($1)`, entry.Name()); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Upsert stores tool vectors, overwriting existing rows by id.
func (s *Store) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]string, documents []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, id := range ids {
		meta, err := json.Marshal(metadatas[i])
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tool_vectors (id, document, metadata, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET document = $2, metadata = $3, embedding = $4
		`, id, documents[i], meta, encodeEmbedding(vectors[i]))
		if err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Query returns matches ordered by ascending cosine distance.
func (s *Store) Query(ctx context.Context, vector []float32, k int, whereFilter map[string]string) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, metadata, embedding FROM tool_vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id string
		var metaRaw []byte
		var blob []byte
		if err := rows.Scan(&id, &metaRaw, &blob); err != nil {
			return nil, err
		}
		var metadata map[string]string
		if err := json.Unmarshal(metaRaw, &metadata); err != nil {
			return nil, err
		}
		if !matchesFilter(metadata, whereFilter) {
			continue
		}
		sim := cosineSimilarity(vector, decodeEmbedding(blob))
		matches = append(matches, Match{ID: id, Distance: float32(2 * (1 - sim)), Metadata: metadata})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete removes rows by id.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tool_vectors WHERE id = $1`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of indexed rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_vectors`).Scan(&n)
	return n, err
}

// Close releases the connection if this store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Match is one query result row.
type Match struct {
	ID       string
	Distance float32
	Metadata map[string]string
}

func matchesFilter(metadata, whereFilter map[string]string) bool {
	for k, v := range whereFilter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

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
