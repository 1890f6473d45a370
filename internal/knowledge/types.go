package knowledge

import "time"

// Document is one chunk of topic knowledge stored in the vector store.
type Document struct {
	ID         string            // unique identifier
	Collection string            // topic collection the chunk belongs to
	Content    string            // chunk text
	Metadata   map[string]string // source path, title, chunk index, ...
	CreatedAt  time.Time
}

// Result is a single search hit.
type Result struct {
	Document   Document
	Similarity float32   // cosine similarity (0-1)
	Embedding  []float32 // populated when searching with WithEmbeddings
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*SearchOptions)

// SearchOptions is the resolved search configuration. Exported so that
// alternative Searcher implementations (including test fakes) can apply
// the same options the Store does.
type SearchOptions struct {
	TopK              int
	IncludeEmbeddings bool
}

// NewSearchOptions applies opts over the defaults.
func NewSearchOptions(opts ...SearchOption) SearchOptions {
	cfg := SearchOptions{TopK: 5}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *SearchOptions) {
		c.TopK = k
	}
}

// WithEmbeddings includes each hit's stored embedding in the result.
// Needed by rerankers that diversify over the candidate vectors.
func WithEmbeddings() SearchOption {
	return func(c *SearchOptions) {
		c.IncludeEmbeddings = true
	}
}
