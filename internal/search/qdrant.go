package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
)

// QdrantConfig holds connection settings for the semantic evidence index.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
	Retry      RetryPolicy
}

// EvidencePoint is one unit of evidence as stored in the vector index. The
// payload carries enough content and provenance for ranking without a
// hydration round trip.
type EvidencePoint struct {
	ID          uuid.UUID
	SubjectCode string
	Channel     string // message | report | filing | note
	SourceID    string
	Content     string
	PublishedAt time.Time
	Embedding   []float32
}

// QdrantIndex implements VectorSearcher backed by a Qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	retry      RetryPolicy
	logger     *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error; inner error may be nil
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// The REST port (6333) is mapped to the gRPC port (6334) since this client
// speaks gRPC only.
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("search: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	port = 6334
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("search: invalid port in qdrant URL: %q", portStr)
		}
		if p != 6333 {
			port = p
		}
	}

	return host, port, useTLS, nil
}

// NewQdrantIndex connects to the Qdrant server via gRPC.
func NewQdrantIndex(cfg QdrantConfig, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("search: connect to qdrant at %s:%d: %w", host, port, err)
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}

	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		retry:      retry,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the evidence collection if missing and ensures
// payload indexes exist. CreateFieldIndex is idempotent on Qdrant, so index
// creation is always attempted — this backfills indexes added after the
// collection was first created.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("search: check collection exists: %w", err)
	}

	if !exists {
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("search: create collection %q: %w", q.collection, err)
		}
		q.logger.Info("qdrant: created collection", "collection", q.collection, "dims", q.dims)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"subject_code", "channel", "source_id"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("search: ensure index on %q: %w", field, err)
		}
	}

	floatType := qdrant.FieldType_FieldTypeFloat
	if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "published_at_unix",
		FieldType:      &floatType,
	}); err != nil {
		return fmt.Errorf("search: ensure index on published_at_unix: %w", err)
	}

	return nil
}

// Search queries the collection for evidence near the embedding, subject to
// filters. Cosine scores from Qdrant are already in [0,1] for normalized
// embeddings, so they pass through unchanged.
func (q *QdrantIndex) Search(ctx context.Context, embedding []float32, filters Filters, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	var must []*qdrant.Condition
	if filters.SubjectCode != "" {
		must = append(must, qdrant.NewMatch("subject_code", filters.SubjectCode))
	}
	if filters.Channel != "" {
		must = append(must, qdrant.NewMatch("channel", filters.Channel))
	}
	if !filters.Since.IsZero() {
		must = append(must, qdrant.NewRange("published_at_unix", &qdrant.Range{
			Gte: qdrant.PtrOf(float64(filters.Since.UTC().Unix())),
		}))
	}

	var filter *qdrant.Filter
	if len(must) > 0 {
		filter = &qdrant.Filter{Must: must}
	}

	fetchLimit := uint64(limit) //nolint:gosec // limit is bounded by the retriever config
	var scored []*qdrant.ScoredPoint
	err := q.retry.Do(ctx, func() error {
		var qerr error
		scored, qerr = q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.collection,
			Query:          qdrant.NewQueryDense(embedding),
			Filter:         filter,
			Limit:          &fetchLimit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("search: qdrant query: %w", err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, sp := range scored {
		idStr := sp.Id.GetUuid()
		if idStr == "" {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			q.logger.Warn("qdrant: invalid UUID in point ID", "id", idStr)
			continue
		}
		hits = append(hits, hitFromPayload(id, float64(sp.Score), sp.Payload))
	}

	return hits, nil
}

// hitFromPayload decodes the evidence payload stored alongside the vector.
// Timestamps are stored as unix seconds and read back as UTC.
func hitFromPayload(id uuid.UUID, score float64, payload map[string]*qdrant.Value) Hit {
	h := Hit{
		ID:      id,
		Score:   score,
		Payload: make(map[string]string, 3),
	}
	if v, ok := payload["content"]; ok {
		h.Content = v.GetStringValue()
	}
	for _, key := range []string{"subject_code", "channel", "source_id"} {
		if v, ok := payload[key]; ok && v.GetStringValue() != "" {
			h.Payload[key] = v.GetStringValue()
		}
	}
	if v, ok := payload["published_at_unix"]; ok {
		if unix := v.GetDoubleValue(); unix > 0 {
			h.Timestamp = time.Unix(int64(unix), 0).UTC()
		}
	}
	return h
}

// Upsert inserts or updates evidence points.
func (q *QdrantIndex) Upsert(ctx context.Context, points []EvidencePoint) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := map[string]any{
			"subject_code":      p.SubjectCode,
			"channel":           p.Channel,
			"content":           p.Content,
			"published_at_unix": float64(p.PublishedAt.UTC().Unix()),
		}
		if p.SourceID != "" {
			payload["source_id"] = p.SourceID
		}
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID.String()),
			Vectors: qdrant.NewVectorsDense(p.Embedding),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("search: qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5
// seconds; concurrent checks after expiry are deduplicated via singleflight
// so only one gRPC call is made and all waiters share its result.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// context.Background() instead of the caller's ctx: singleflight reuses
	// the first caller's context, and a cancelled first caller would hand
	// every waiter a stale error.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(checkCtx)
		if err != nil {
			q.storeHealthErr(fmt.Errorf("search: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

// storeHealthErr wraps the error in a pointer because atomic.Value cannot
// store nil directly.
func (q *QdrantIndex) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *QdrantIndex) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
