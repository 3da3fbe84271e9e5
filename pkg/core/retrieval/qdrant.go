// Package retrieval implements the Retriever collaborator: query embedding
// plus vector similarity search over a Qdrant collection.
package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/calleq/calleq/pkg/core/types"
)

// Config holds Qdrant connection settings.
type Config struct {
	// URL is the Qdrant server address (e.g. "https://example.qdrant.io:6334").
	URL string

	// Collection is the collection holding the knowledge passages.
	Collection string

	// APIKey is an optional authentication key.
	APIKey string
}

// QdrantRetriever searches a Qdrant collection for passages relevant to an
// utterance. Result order is Qdrant's own score order; ties keep the
// store's insertion order and are never re-sorted here.
type QdrantRetriever struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
}

// NewQdrant connects to Qdrant and wraps it as a Retriever.
func NewQdrant(cfg Config, embedder Embedder) (*QdrantRetriever, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	host, port, useTLS, err := splitQdrantURL(cfg.URL)
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
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantRetriever{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
	}, nil
}

// Search implements core.Retriever.
func (r *QdrantRetriever) Search(ctx context.Context, text string, limit int) ([]types.Passage, error) {
	if limit <= 0 {
		limit = 3
	}

	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limitUint64 := uint64(limit)
	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitUint64,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	return passagesFromPoints(points), nil
}

// Close releases the gRPC connection.
func (r *QdrantRetriever) Close() error {
	return r.client.Close()
}

func passagesFromPoints(points []*qdrant.ScoredPoint) []types.Passage {
	passages := make([]types.Passage, 0, len(points))
	for _, point := range points {
		if point == nil || point.Payload == nil {
			continue
		}
		text := point.Payload["text"].GetStringValue()
		if text == "" {
			continue
		}
		passages = append(passages, types.Passage{
			Text:  text,
			Score: float64(point.Score),
		})
	}
	return passages
}

func splitQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("parse qdrant url: %w", err)
	}

	host = u.Hostname()
	port = 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}
	return host, port, u.Scheme == "https", nil
}
