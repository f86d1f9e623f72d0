package retrieval

import (
	"context"

	"github.com/rs/zerolog"
)

// Result carries the merged hits from a dual-pass search together with the
// agreement between the keyword-leaning and vector-leaning passes.
type Result struct {
	Hits      []Hit
	Agreement float64
}

// Retriever runs two hybrid searches over the same query, one weighted
// toward keyword matching and one toward vector similarity, and reports
// how much the two passes agree. Low agreement is a signal that the
// indexed material does not answer the question well.
type Retriever struct {
	index        Index
	embed        Embeddings
	alphaKeyword float32
	alphaVector  float32
	topK         int
	log          zerolog.Logger
}

func NewRetriever(index Index, embed Embeddings, alphaKeyword, alphaVector float32, topK int, log zerolog.Logger) *Retriever {
	return &Retriever{
		index:        index,
		embed:        embed,
		alphaKeyword: alphaKeyword,
		alphaVector:  alphaVector,
		topK:         topK,
		log:          log,
	}
}

// Search embeds the query once and executes both passes. Hits are merged
// keyword-pass first, deduplicated by DocID.
func (r *Retriever) Search(ctx context.Context, universityID, query string) (Result, error) {
	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return Result{}, err
	}

	kwHits, err := r.index.Search(ctx, universityID, query, vec, r.topK, r.alphaKeyword)
	if err != nil {
		return Result{}, err
	}
	vecHits, err := r.index.Search(ctx, universityID, query, vec, r.topK, r.alphaVector)
	if err != nil {
		return Result{}, err
	}

	agreement := jaccard(docIDs(kwHits), docIDs(vecHits))
	merged := mergeHits(kwHits, vecHits)

	r.log.Debug().
		Str("universityId", universityID).
		Int("keywordHits", len(kwHits)).
		Int("vectorHits", len(vecHits)).
		Float64("agreement", agreement).
		Msg("dual-pass search completed")

	return Result{Hits: merged, Agreement: agreement}, nil
}

func docIDs(hits []Hit) []string {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.DocID)
	}
	return ids
}

// jaccard returns |A∩B| / |A∪B|. Two empty sets agree perfectly; one
// empty set against a non-empty one is total disagreement.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	setA := make(map[string]struct{}, len(a))
	for _, id := range a {
		setA[id] = struct{}{}
	}
	union := make(map[string]struct{}, len(a)+len(b))
	for _, id := range a {
		union[id] = struct{}{}
	}
	inter := 0
	for _, id := range b {
		if _, ok := setA[id]; ok {
			inter++
		}
		union[id] = struct{}{}
	}
	return float64(inter) / float64(len(union))
}

func mergeHits(first, second []Hit) []Hit {
	seen := make(map[string]struct{}, len(first)+len(second))
	out := make([]Hit, 0, len(first)+len(second))
	for _, h := range first {
		if _, ok := seen[h.DocID]; ok {
			continue
		}
		seen[h.DocID] = struct{}{}
		out = append(out, h)
	}
	for _, h := range second {
		if _, ok := seen[h.DocID]; ok {
			continue
		}
		seen[h.DocID] = struct{}{}
		out = append(out, h)
	}
	return out
}
