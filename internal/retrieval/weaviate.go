package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	filters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const documentClass = "CampusDocument"

// weavIndex is a native implementation of Index using the Weaviate Go client.
type weavIndex struct {
	client  *weaviate.Client
	baseURL string // host:port without scheme
}

// NewWeaviateIndex constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port (without scheme), e.g. "localhost:8081".
func NewWeaviateIndex(baseURL string) (Index, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &weavIndex{client: cl, baseURL: baseURL}, nil
}

// BootstrapWeaviate ensures the CampusDocument class exists.
func BootstrapWeaviate(ctx context.Context, baseURL string) error {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	desired := &models.Class{
		Class:      documentClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "docId", DataType: []string{"text"}},
			{Name: "universityId", DataType: []string{"text"}},
			{Name: "kind", DataType: []string{"text"}},
			{Name: "text", DataType: []string{"text"}},
			{Name: "tags", DataType: []string{"text[]"}},
			{Name: "creationTime", DataType: []string{"date"}},
		},
	}

	ex, err := cl.Schema().ClassGetter().WithClassName(documentClass).Do(cctx)
	if err == nil && ex != nil {
		return nil
	}
	if err := cl.Schema().ClassCreator().WithClass(desired).Do(cctx); err != nil {
		return fmt.Errorf("create class %s: %w", documentClass, err)
	}
	return nil
}

func (w *weavIndex) Search(ctx context.Context, universityID, query string, vec []float32, topK int, alpha float32) ([]Hit, error) {
	log.Debug().Str("universityId", universityID).Str("query", query).Int("topK", topK).Float32("alpha", alpha).Int("vectorLength", len(vec)).Msg("weaviate search starting")

	safeString := func(v interface{}) string {
		s, _ := v.(string)
		return s
	}

	hy := (&gql.HybridArgumentBuilder{}).
		WithQuery(query).
		WithVector(vec).
		WithAlpha(alpha).
		WithProperties([]string{"text"})

	where := filters.Where().WithPath([]string{"universityId"}).WithOperator(filters.Equal).WithValueText(universityID)

	req := w.client.GraphQL().Get().
		WithClassName(documentClass).
		WithWhere(where).
		WithHybrid(hy).
		WithLimit(topK).
		WithFields(
			gql.Field{Name: "docId"},
			gql.Field{Name: "universityId"},
			gql.Field{Name: "kind"},
			gql.Field{Name: "text"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "score"}}},
		)

	resp, err := req.Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("universityId", universityID).Msg("weaviate graphql query failed")
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	val := getData[documentClass]
	if val == nil {
		return []Hit{}, nil
	}
	raw, ok := val.([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]Hit, 0, len(raw))
	for _, item := range raw {
		m := item.(map[string]interface{})
		var score float64
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			switch v := add["score"].(type) {
			case float64:
				score = v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					score = f
				}
			}
		}
		out = append(out, Hit{
			DocID:        safeString(m["docId"]),
			UniversityID: safeString(m["universityId"]),
			Kind:         safeString(m["kind"]),
			Text:         safeString(m["text"]),
			Score:        score,
		})
	}
	log.Debug().Int("resultCount", len(out)).Str("universityId", universityID).Msg("weaviate search completed")
	return out, nil
}

// UpsertDocument implements a best-effort upsert using the Weaviate Data Creator.
func (w *weavIndex) UpsertDocument(ctx context.Context, doc Document, vec []float32) error {
	if w == nil || w.client == nil {
		return nil
	}
	payload := map[string]interface{}{
		"docId":        doc.DocID,
		"universityId": doc.UniversityID,
		"kind":         doc.Kind,
		"text":         doc.Text,
		"tags":         doc.Tags,
		"creationTime": doc.CreationTime.UTC().Format(time.RFC3339),
	}
	_, err := w.client.Data().Creator().WithClassName(documentClass).WithProperties(payload).WithVector(vec).Do(ctx)
	return err
}

func (w *weavIndex) DeleteDocument(ctx context.Context, docID string) error {
	if w == nil || w.client == nil || docID == "" {
		return nil
	}
	where := filters.Where().WithPath([]string{"docId"}).WithOperator(filters.Equal).WithValueText(docID)
	req := w.client.GraphQL().Get().
		WithClassName(documentClass).
		WithWhere(where).
		WithFields(gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "id"}}})
	resp, err := req.Do(ctx)
	if err != nil || len(resp.Errors) > 0 {
		return err
	}
	if getData, ok := resp.Data["Get"].(map[string]interface{}); ok {
		if arr, ok := getData[documentClass].([]interface{}); ok {
			for _, item := range arr {
				if add, ok := item.(map[string]interface{})["_additional"].(map[string]interface{}); ok {
					if id, _ := add["id"].(string); id != "" {
						_ = w.client.Data().Deleter().WithClassName(documentClass).WithID(id).Do(ctx)
					}
				}
			}
		}
	}
	return nil
}

func (w *weavIndex) HealthPing(ctx context.Context) error {
	if w == nil || w.baseURL == "" {
		return fmt.Errorf("weaviate baseURL missing")
	}
	url := w.baseURL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/v1/meta", nil)
	if err != nil {
		return err
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weaviate status %d", resp.StatusCode)
	}
	return nil
}

// formatGraphQLErrors returns a compact string with messages extracted for logging.
func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
