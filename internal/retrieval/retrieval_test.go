package retrieval

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	byAlpha map[float32][]Hit
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ string, _ []float32, _ int, alpha float32) ([]Hit, error) {
	return f.byAlpha[alpha], nil
}

func (f *fakeIndex) UpsertDocument(context.Context, Document, []float32) error { return nil }
func (f *fakeIndex) DeleteDocument(context.Context, string) error              { return nil }

type fakeEmbed struct{}

func (fakeEmbed) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func TestJaccard(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 1.0},
		{"one empty", []string{"x"}, nil, 0.0},
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1.0},
		{"disjoint", []string{"a"}, []string{"b"}, 0.0},
		{"half overlap", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, jaccard(tc.a, tc.b), tc.name)
	}
}

func TestRetriever_DualPass(t *testing.T) {
	idx := &fakeIndex{byAlpha: map[float32][]Hit{
		0.25: {{DocID: "d1", Text: "chess club meets tuesdays"}, {DocID: "d2", Text: "robotics"}},
		0.75: {{DocID: "d2", Text: "robotics"}, {DocID: "d3", Text: "intramural soccer"}},
	}}
	r := NewRetriever(idx, fakeEmbed{}, 0.25, 0.75, 5, zerolog.Nop())

	res, err := r.Search(context.Background(), "uni-1", "chess club")
	require.NoError(t, err)
	require.Len(t, res.Hits, 3)
	// Keyword pass leads the merge, vector-only hits follow.
	assert.Equal(t, "d1", res.Hits[0].DocID)
	assert.Equal(t, "d2", res.Hits[1].DocID)
	assert.Equal(t, "d3", res.Hits[2].DocID)
	assert.Equal(t, 1.0/3.0, res.Agreement)
}

func TestRetriever_EmptyBothPasses(t *testing.T) {
	idx := &fakeIndex{byAlpha: map[float32][]Hit{}}
	r := NewRetriever(idx, fakeEmbed{}, 0.25, 0.75, 5, zerolog.Nop())

	res, err := r.Search(context.Background(), "uni-1", "anything")
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.Equal(t, 1.0, res.Agreement)
}
