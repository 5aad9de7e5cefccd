package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantAPI is the slice of the qdrant client the store uses. Satisfied
// by *qdrant.Client.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	DeleteCollection(ctx context.Context, collectionName string) error
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Close() error
}

var (
	_ qdrantAPI = (*qdrant.Client)(nil)
	_ Store     = (*QdrantStore)(nil)
)

// QdrantStore implements Store against a Qdrant server, for deployments
// that outgrow the file-backed collection. The collection is created with
// cosine distance on first Add.
type QdrantStore struct {
	client    qdrantAPI
	name      string
	addr      string
	dimension int
	ensured   bool
}

func NewQdrantStore(host string, port int, collection string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, &StoreError{Op: "connect", Err: err}
	}
	return &QdrantStore{
		client: client,
		name:   collection,
		addr:   fmt.Sprintf("%s:%d", host, port),
	}, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	if s.ensured {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, s.name)
	if err != nil {
		return err
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.name,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(dim),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	s.dimension = dim
	s.ensured = true
	return nil
}

func (s *QdrantStore) Add(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]string, ids []string) ([]string, error) {
	if len(texts) != len(vectors) {
		return nil, &StoreError{Op: "add", Err: fmt.Errorf("texts/vectors length mismatch: %d != %d", len(texts), len(vectors))}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return nil, &StoreError{Op: "add", Err: err}
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, &StoreError{Op: "add", Err: fmt.Errorf("vector %d has dimension %d, collection expects %d", i, len(v), s.dimension)}
		}
	}

	out := make([]string, len(texts))
	points := make([]*qdrant.PointStruct, len(texts))
	for i := range texts {
		id := ""
		if ids != nil {
			id = ids[i]
		}
		if id == "" {
			id = uuid.NewString()
		}
		out[i] = id

		payload := map[string]any{"text": texts[i]}
		if metadatas != nil {
			for k, v := range metadatas[i] {
				payload[k] = v
			}
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.name,
		Points:         points,
	}); err != nil {
		return nil, &StoreError{Op: "add", Err: err}
	}
	return out, nil
}

// Persist is a no-op: the server owns durability.
func (s *QdrantStore) Persist(context.Context) error { return nil }

func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	// A collection that has never seen an Add may not exist remotely;
	// searching it is an empty result, not an error.
	if !s.ensured {
		exists, err := s.client.CollectionExists(ctx, s.name)
		if err != nil {
			return nil, &StoreError{Op: "search", Err: err}
		}
		if !exists {
			return []Result{}, nil
		}
	}

	limit := uint64(topK)
	var qf *qdrant.Filter
	if len(filter) > 0 {
		qf = &qdrant.Filter{}
		for k, v := range filter {
			qf.Must = append(qf.Must, qdrant.NewMatch(k, v))
		}
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.name,
		Limit:          &limit,
		Filter:         qf,
		Query:          qdrant.NewQuery(vector...),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		res := Result{Score: float64(p.Score), Metadata: map[string]string{}}
		for k, v := range p.Payload {
			sv := v.GetStringValue()
			if k == "text" {
				res.Text = sv
				continue
			}
			res.Metadata[k] = sv
		}
		if p.Id != nil {
			if u, ok := p.Id.PointIdOptions.(*qdrant.PointId_Uuid); ok {
				res.ID = u.Uuid
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.name)
	if err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.name); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	s.ensured = false
	s.dimension = 0
	slog.Info("collection deleted", "collection", s.name)
	return nil
}

func (s *QdrantStore) Stats(ctx context.Context) Stats {
	return Stats{Name: s.name, DocumentCount: s.Count(ctx), Location: s.addr}
}

func (s *QdrantStore) Count(ctx context.Context) int {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.name})
	if err != nil {
		return 0
	}
	return int(n)
}

func (s *QdrantStore) Close() error { return s.client.Close() }
