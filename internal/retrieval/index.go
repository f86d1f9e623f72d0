package retrieval

import (
	"context"
	"time"
)

// Embeddings produces vector representations for text.
type Embeddings interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is one scored document returned from the index.
type Hit struct {
	DocID        string  `json:"docId"`
	UniversityID string  `json:"universityId"`
	Kind         string  `json:"kind"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}

// Document is the indexable unit. Kind is one of "fact", "profile",
// "forum_post" or "message".
type Document struct {
	DocID        string
	UniversityID string
	Kind         string
	Text         string
	Tags         []string
	CreationTime time.Time
}

// Index provides hybrid (keyword+vector) search and index maintenance.
type Index interface {
	Search(ctx context.Context, universityID, query string, vec []float32, topK int, alpha float32) ([]Hit, error)

	// Upserts are best-effort; implementations may ignore or approximate.
	UpsertDocument(ctx context.Context, doc Document, vec []float32) error

	// Synchronous hard-delete.
	DeleteDocument(ctx context.Context, docID string) error
}

// HealthPinger is optionally implemented by an Index or Embeddings provider
// to expose specialized health check logic. Returns nil when healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
