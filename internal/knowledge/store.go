// Package knowledge manages topic document collections with vector search
// over PostgreSQL + pgvector. Embeddings are generated through a Genkit
// embedder; each retrieval topic owns one collection.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/plantia/plantia/internal/log"
)

// searchTimeout bounds a single vector search so a slow query cannot hold a
// request indefinitely.
const searchTimeout = 10 * time.Second

// Store manages knowledge documents with vector search. Safe for concurrent
// use.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a Store. The database connection behind the querier is
// managed by the caller.
func New(querier Querier, embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger.With("component", "knowledge"),
	}
}

// Add embeds and upserts one document into its collection.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("knowledge: document id cannot be empty")
	}
	if doc.Collection == "" {
		return errors.New("knowledge: document collection cannot be empty")
	}

	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	err = s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:         doc.ID,
		Collection: doc.Collection,
		Content:    doc.Content,
		Embedding:  &embedding,
		Metadata:   metadataJSON,
		CreatedAt:  pgtype.Timestamptz{Time: doc.CreatedAt, Valid: !doc.CreatedAt.IsZero()},
	})
	if err != nil {
		return err
	}

	s.logger.Debug("document added", "id", doc.ID, "collection", doc.Collection,
		"content_length", len(doc.Content))
	return nil
}

// Search returns the documents in a collection most similar to the query,
// ordered by similarity descending.
func (s *Store) Search(ctx context.Context, collection, query string, opts ...SearchOption) ([]Result, error) {
	if collection == "" {
		return nil, errors.New("knowledge: collection cannot be empty")
	}
	cfg := NewSearchOptions(opts...)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.queries.SearchDocuments(queryCtx, SearchDocumentsParams{
		Collection:     collection,
		QueryEmbedding: &embedding,
		ResultLimit:    int32(cfg.TopK),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("unreadable document metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}

		var createdAt time.Time
		if row.CreatedAt.Valid {
			createdAt = row.CreatedAt.Time
		}

		result := Result{
			Document: Document{
				ID:         row.ID,
				Collection: collection,
				Content:    row.Content,
				Metadata:   metadata,
				CreatedAt:  createdAt,
			},
			Similarity: row.Similarity,
		}
		if cfg.IncludeEmbeddings {
			result.Embedding = row.Embedding.Slice()
		}
		results = append(results, result)
	}
	return results, nil
}

// QueryEmbedding embeds a free-text query. Exposed for rerankers that need
// the query vector alongside Search results.
func (s *Store) QueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	v, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return v.Slice(), nil
}

// Count returns the number of documents in a collection; an empty
// collection name counts everything.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	count, err := s.queries.CountDocuments(ctx, collection)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Delete removes one document.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	s.logger.Debug("document deleted", "id", docID)
	return nil
}

// DeleteCollection removes every document in a collection and returns how
// many were dropped.
func (s *Store) DeleteCollection(ctx context.Context, collection string) (int64, error) {
	n, err := s.queries.DeleteCollection(ctx, collection)
	if err != nil {
		return 0, err
	}
	s.logger.Info("collection deleted", "collection", collection, "documents", n)
	return n, nil
}

// Collections lists the collection names that currently hold documents.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	return s.queries.Collections(ctx)
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("embedder returned no embedding")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
