package vecstore

import "time"

// Chunk is one stored row: a span of a document's text at one revision,
// together with its embedding.
type Chunk struct {
	DocumentID  string    // source document identity (path/slug)
	Ordinal     int       // dense position within the document
	ContentHash string    // SHA-256 hex of the normalized chunk text
	Revision    string    // revision marker the chunk was derived from
	DocType     string    // content-type tag (blog/kb/portfolio)
	Content     string    // chunk text
	Embedding   []float32 // embedding vector
	UpdatedAt   time.Time
}

// SearchResult pairs a stored chunk with its similarity to a query vector.
type SearchResult struct {
	Chunk      Chunk
	Similarity float64
}

// Metric selects the distance metric used by similarity search.
type Metric string

const (
	// MetricCosine ranks by cosine similarity (1 - cosine distance).
	MetricCosine Metric = "cosine"

	// MetricInnerProduct ranks by inner product.
	MetricInnerProduct Metric = "inner_product"
)

// similarityExpr returns the SQL expression computing similarity for the
// metric; higher is always more similar.
func (m Metric) similarityExpr() string {
	if m == MetricInnerProduct {
		// pgvector's <#> operator returns the negative inner product.
		return "-(embedding <#> $1)"
	}
	return "1 - (embedding <=> $1)"
}

// SearchOption configures similarity search using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK          int
	docType       string
	minSimilarity float64
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithDocType restricts results to one content-type tag.
func WithDocType(docType string) SearchOption {
	return func(c *searchConfig) {
		c.docType = docType
	}
}

// WithMinSimilarity drops results whose similarity falls below the
// threshold. Default is 0 (no threshold).
func WithMinSimilarity(threshold float64) SearchOption {
	return func(c *searchConfig) {
		c.minSimilarity = threshold
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: 5}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
