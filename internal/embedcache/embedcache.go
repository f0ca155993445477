// Package embedcache caches embedding vectors in a local SQLite database,
// keyed by a content hash of the input text. Re-ingesting unchanged documents
// skips the embedding round-trip entirely.
package embedcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
    model        TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    embedding    BLOB NOT NULL,
    created_at   TIMESTAMP NOT NULL,
    PRIMARY KEY (model, content_hash)
);
`

// Cache is a persistent embedding cache. Safe for concurrent use; writes are
// serialized by SQLite's WAL journal.
type Cache struct {
	db     *sql.DB
	model  string
	logger *slog.Logger
}

// Open creates or opens the cache database at path. The model name is part of
// the cache key so switching embedders never serves stale vectors.
func Open(path, model string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	return &Cache{db: db, model: model, logger: logger}, nil
}

// Get returns the cached embedding for text, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT embedding FROM embeddings WHERE model = ? AND content_hash = ?",
		c.model, hashText(text),
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached embedding: %w", err)
	}

	embedding, err := decodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached embedding: %w", err)
	}
	return embedding, true, nil
}

// Put stores the embedding for text, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, text string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("refusing to cache empty embedding")
	}

	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO embeddings (model, content_hash, embedding, created_at) VALUES (?, ?, ?, ?)",
		c.model, hashText(text), encodeVector(embedding), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("caching embedding: %w", err)
	}
	return nil
}

// Len reports the number of cached entries for the cache's model.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM embeddings WHERE model = ?", c.model,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// encodeVector packs the vector as little-endian float32 bits.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
