package vector

import (
	"database/sql"
	"math"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestVectorStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	s := NewSQLiteStore(db)
	if err := s.EnsureIndex(); err != nil {
		t.Fatalf("EnsureIndex failed: %v", err)
	}
	return s
}

func TestUpsertAndQuery_OrderedBySimilarity(t *testing.T) {
	s := newTestVectorStore(t)

	vectors := map[string][]float32{
		"exact":      {1, 0, 0},
		"close":      {0.9, 0.1, 0},
		"orthogonal": {0, 1, 0},
	}
	for id, vec := range vectors {
		if err := s.Upsert(id, vec, map[string]any{"task_id": id}, "default"); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", id, err)
		}
	}

	matches, err := s.Query([]float32{1, 0, 0}, 2, nil, "default")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].ID != "exact" || matches[1].ID != "close" {
		t.Errorf("order = [%s %s], want [exact close]", matches[0].ID, matches[1].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("scores not descending: %v < %v", matches[0].Score, matches[1].Score)
	}
	if math.Abs(float64(matches[0].Score)-1.0) > 1e-5 {
		t.Errorf("exact match score = %v, want ~1.0", matches[0].Score)
	}
	if matches[0].Metadata["task_id"] != "exact" {
		t.Errorf("metadata = %v, want task_id exact", matches[0].Metadata)
	}
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	s := newTestVectorStore(t)

	if err := s.Upsert("v1", []float32{1, 0}, map[string]any{"rev": "a"}, "default"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert("v1", []float32{0, 1}, map[string]any{"rev": "b"}, "default"); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	count, err := s.Count("default")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after upsert", count)
	}

	matches, err := s.Query([]float32{0, 1}, 1, nil, "default")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Metadata["rev"] != "b" {
		t.Errorf("matches = %+v, want replaced metadata rev=b", matches)
	}
}

func TestQuery_NamespaceIsolation(t *testing.T) {
	s := newTestVectorStore(t)

	if err := s.Upsert("a", []float32{1, 0}, nil, "ns1"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert("b", []float32{1, 0}, nil, "ns2"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	matches, err := s.Query([]float32{1, 0}, 10, nil, "ns1")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Errorf("ns1 matches = %+v, want only a", matches)
	}
}

func TestQuery_MetadataFilter(t *testing.T) {
	s := newTestVectorStore(t)

	if err := s.Upsert("mine", []float32{1, 0}, map[string]any{"user_id": "u1"}, "default"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert("theirs", []float32{1, 0}, map[string]any{"user_id": "u2"}, "default"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	matches, err := s.Query([]float32{1, 0}, 10, map[string]string{"user_id": "u1"}, "default")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "mine" {
		t.Errorf("filtered matches = %+v, want only mine", matches)
	}
}

func TestQuery_EdgeCases(t *testing.T) {
	s := newTestVectorStore(t)
	if err := s.Upsert("a", []float32{1, 0}, nil, "default"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	matches, err := s.Query([]float32{1, 0}, 0, nil, "default")
	if err != nil || matches != nil {
		t.Errorf("Query with topK=0 = %v, %v, want nil, nil", matches, err)
	}

	matches, err = s.Query([]float32{0, 0}, 5, nil, "default")
	if err != nil || matches != nil {
		t.Errorf("Query with zero vector = %v, %v, want nil, nil", matches, err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestVectorStore(t)
	if err := s.Upsert("a", []float32{1, 0}, nil, "default"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := s.Delete([]string{"a", "missing"}, "default"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	count, _ := s.Count("default")
	if count != 0 {
		t.Errorf("count after delete = %d, want 0", count)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := []float32{0.1, -2.5, 3.75, 0}
	decoded, err := decodeFloat32sInto(nil, encodeFloat32s(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("len = %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], original[i])
		}
	}

	if _, err := decodeFloat32sInto(nil, []byte{1, 2, 3}); err == nil {
		t.Error("decode of misaligned bytes = nil, want error")
	}
}
