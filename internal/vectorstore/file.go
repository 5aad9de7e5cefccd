package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// FileStore keeps a collection in memory and persists it as a single JSON
// artifact under rootDir. Load is best-effort: a missing or unreadable
// artifact yields an empty collection, not an error.
type FileStore struct {
	name    string
	rootDir string

	dimension int
	records   []Record
}

// envelope is the persisted artifact: the whole collection, written and
// read as one unit.
type envelope struct {
	Dimension int      `json:"dimension"`
	Records   []Record `json:"records"`
}

var _ Store = (*FileStore)(nil)

func NewFileStore(rootDir, collection string) *FileStore {
	s := &FileStore{name: collection, rootDir: rootDir}
	s.load()
	return s
}

func (s *FileStore) path() string {
	return filepath.Join(s.rootDir, s.name+".json")
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("vector store load failed, starting empty", "collection", s.name, "error", err)
		}
		return
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("vector store artifact unreadable, starting empty", "collection", s.name, "error", err)
		return
	}
	s.dimension = env.Dimension
	s.records = env.Records
	slog.Info("vector store loaded", "collection", s.name, "records", len(s.records))
}

func (s *FileStore) Add(_ context.Context, texts []string, vectors [][]float32, metadatas []map[string]string, ids []string) ([]string, error) {
	if len(texts) != len(vectors) {
		return nil, &StoreError{Op: "add", Err: fmt.Errorf("texts/vectors length mismatch: %d != %d", len(texts), len(vectors))}
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if ids != nil && len(ids) != len(texts) {
		return nil, &StoreError{Op: "add", Err: fmt.Errorf("ids length mismatch: %d != %d", len(ids), len(texts))}
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, &StoreError{Op: "add", Err: fmt.Errorf("metadatas length mismatch: %d != %d", len(metadatas), len(texts))}
	}

	dim := s.dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &StoreError{Op: "add", Err: fmt.Errorf("vector %d has dimension %d, collection expects %d", i, len(v), dim)}
		}
	}
	s.dimension = dim

	out := make([]string, len(texts))
	for i := range texts {
		id := ""
		if ids != nil {
			id = ids[i]
		}
		if id == "" {
			id = uuid.NewString()
		}
		var meta map[string]string
		if metadatas != nil {
			meta = metadatas[i]
		}
		if meta == nil {
			meta = map[string]string{}
		}
		s.records = append(s.records, Record{ID: id, Text: texts[i], Vector: vectors[i], Metadata: meta})
		out[i] = id
	}

	slog.Info("added records to collection", "collection", s.name, "count", len(texts))
	return out, nil
}

// Persist writes the whole collection atomically: marshal, write to a temp
// file in the same directory, rename over the previous artifact. A failed
// persist leaves both the artifact and the in-memory state intact.
func (s *FileStore) Persist(_ context.Context) error {
	if len(s.records) == 0 {
		return nil
	}

	if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
		return &StoreError{Op: "persist", Err: err}
	}
	data, err := json.Marshal(envelope{Dimension: s.dimension, Records: s.records})
	if err != nil {
		return &StoreError{Op: "persist", Err: err}
	}

	tmp, err := os.CreateTemp(s.rootDir, s.name+"-*.tmp")
	if err != nil {
		return &StoreError{Op: "persist", Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &StoreError{Op: "persist", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &StoreError{Op: "persist", Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path()); err != nil {
		os.Remove(tmp.Name())
		return &StoreError{Op: "persist", Err: err}
	}

	slog.Info("persisted collection", "collection", s.name, "records", len(s.records))
	return nil
}

// Search is an exact linear scan: O(n·d) per query. Intentional — no
// approximate index at this scale.
func (s *FileStore) Search(_ context.Context, vector []float32, topK int, filter map[string]string) ([]Result, error) {
	if len(s.records) == 0 || topK <= 0 {
		return []Result{}, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	candidates := make([]scored, 0, len(s.records))
	for i, rec := range s.records {
		if len(filter) > 0 && !matchesFilter(rec.Metadata, filter) {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: cosineSimilarity(vector, rec.Vector)})
	}

	// Stable keeps insertion order for equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]Result, 0, topK)
	for _, c := range candidates[:topK] {
		rec := s.records[c.idx]
		results = append(results, Result{ID: rec.ID, Text: rec.Text, Metadata: rec.Metadata, Score: c.score})
	}
	return results, nil
}

func (s *FileStore) DeleteCollection(_ context.Context) error {
	s.records = nil
	s.dimension = 0

	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return &StoreError{Op: "delete", Err: err}
	}
	slog.Info("collection deleted", "collection", s.name)
	return nil
}

func (s *FileStore) Stats(context.Context) Stats {
	return Stats{Name: s.name, DocumentCount: len(s.records), Location: s.rootDir}
}

func (s *FileStore) Count(context.Context) int { return len(s.records) }
