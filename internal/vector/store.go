// Package vector provides the vector-search collaborator: embedding text via
// the LLM client and storing/querying task vectors. The default backend is
// SQLite with brute-force cosine similarity over BLOB-encoded float32 vectors.
package vector

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Match is a single similarity search result.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Store is the vector-search collaborator consumed by embedding sync and
// similar-task search.
type Store interface {
	// EnsureIndex makes sure the backing index exists. Idempotent; called
	// once before first write.
	EnsureIndex() error

	// Upsert inserts or replaces a vector with its metadata document.
	Upsert(id string, vec []float32, metadata map[string]any, namespace string) error

	// Query returns the topK most similar vectors in the namespace. filter
	// entries must match metadata values exactly (string comparison).
	Query(vec []float32, topK int, filter map[string]string, namespace string) ([]Match, error)

	// Delete removes vectors by ID from the namespace.
	Delete(ids []string, namespace string) error
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore stores task vectors in the task_vectors table of the shared
// SQLite database. Search is a brute-force cosine scan; fine for per-user
// task counts, revisit if vectors grow past ~100K.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureIndex creates the task_vectors table if migrations have not already.
func (s *SQLiteStore) EnsureIndex() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS task_vectors (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL DEFAULT 'default',
		embedding BLOB NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensuring task_vectors table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the vector with the given ID.
func (s *SQLiteStore) Upsert(id string, vec []float32, metadata map[string]any, namespace string) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO task_vectors (id, namespace, embedding, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			namespace = excluded.namespace,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		id, namespace, encodeFloat32s(vec), string(metaJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting vector %s: %w", id, err)
	}
	return nil
}

type idScore struct {
	ID    string
	Score float32
}

// Query performs a brute-force cosine similarity scan over the namespace.
func (s *SQLiteStore) Query(vec []float32, topK int, filter map[string]string, namespace string) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`SELECT id, embedding, metadata FROM task_vectors WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)
	metaByID := make(map[string]map[string]any)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &blob, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", id, err)
		}
		if !matchesFilter(meta, filter) {
			continue
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vec, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
			metaByID[id] = meta
		} else if score > (*h)[0].Score {
			delete(metaByID, (*h)[0].ID)
			(*h)[0] = idScore{ID: id, Score: score}
			metaByID[id] = meta
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	// Pop min-heap into descending order.
	matches := make([]Match, h.Len())
	for i := len(matches) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		matches[i] = Match{ID: item.ID, Score: item.Score, Metadata: metaByID[item.ID]}
	}
	return matches, nil
}

// Delete removes vectors by ID from the namespace. Missing IDs are ignored.
func (s *SQLiteStore) Delete(ids []string, namespace string) error {
	for _, id := range ids {
		if _, err := s.db.Exec(`DELETE FROM task_vectors WHERE id = ? AND namespace = ?`, id, namespace); err != nil {
			return fmt.Errorf("deleting vector %s: %w", id, err)
		}
	}
	return nil
}

// Count returns the number of vectors in the namespace.
func (s *SQLiteStore) Count(namespace string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM task_vectors WHERE namespace = ?`, namespace).Scan(&count)
	return count, err
}

func matchesFilter(meta map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * bNorm). aNorm is precomputed.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
