package elasticsearch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/engine"
	esengine "github.com/utafrali/shopindex/internal/engine/elasticsearch"
)

// newTestEngine skips the test if ELASTICSEARCH_URL is not set.
func newTestEngine(t *testing.T) *esengine.Engine {
	t.Helper()

	esURL := os.Getenv("ELASTICSEARCH_URL")
	if esURL == "" {
		t.Skip("ELASTICSEARCH_URL not set, skipping Elasticsearch integration tests")
	}

	prefix := fmt.Sprintf("test_%d_", time.Now().UnixNano())
	eng, err := esengine.New(context.Background(), esengine.Config{
		Addresses: []string{esURL},
		Names:     engine.DefaultIndexNames(prefix),
		Refresh:   "true",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err, "failed to create Elasticsearch engine")

	t.Cleanup(func() {
		for _, typ := range domain.AllTypes {
			_ = eng.DeleteIndex(context.Background(), typ)
		}
	})
	return eng
}

func addressDoc(t *testing.T, id uuid.UUID, version int64, postcode, city string) domain.Document {
	t.Helper()
	src, err := json.Marshal(domain.AddressDocument{
		AddressSummary: domain.AddressSummary{ID: id, City: city, Postcode: postcode, Country: "GB"},
	})
	require.NoError(t, err)
	return domain.Document{Type: domain.TypeAddress, ID: id, Version: version, Source: src}
}

func TestES_Ping(t *testing.T) {
	eng := newTestEngine(t)
	assert.NoError(t, eng.Ping(context.Background()))
}

func TestES_IndexSearchDelete(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, eng.Index(ctx, addressDoc(t, id, 10, "AB12", "Leeds")))

	res, err := eng.Search(ctx, domain.SearchQuery{Type: domain.TypeAddress, Query: "postcode:AB12", Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	require.NoError(t, eng.Delete(ctx, domain.EntityRef{Type: domain.TypeAddress, ID: id}, 11))

	res, err = eng.Search(ctx, domain.SearchQuery{Type: domain.TypeAddress, Query: "postcode:AB12", Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
}

func TestES_StaleWriteIgnored(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, eng.Index(ctx, addressDoc(t, id, 20, "AB12", "York")))
	require.NoError(t, eng.Index(ctx, addressDoc(t, id, 10, "AB12", "Leeds")))

	res, err := eng.Search(ctx, domain.SearchQuery{Type: domain.TypeAddress, Query: "city:york", Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestES_BulkIndexAndProjection(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	docs := make([]domain.Document, 0, 3)
	for i := 0; i < 3; i++ {
		docs = append(docs, addressDoc(t, uuid.New(), 1, fmt.Sprintf("ZZ%d", i), "Hull"))
	}
	require.NoError(t, eng.BulkIndex(ctx, docs))
	require.NoError(t, eng.Refresh(ctx))

	res, err := eng.Search(ctx, domain.SearchQuery{
		Type:   domain.TypeAddress,
		Query:  "city:hull",
		Fields: []string{"postcode"},
		Size:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	for _, h := range res.Hits {
		var src map[string]any
		require.NoError(t, json.Unmarshal(h.Source, &src))
		assert.Contains(t, src, "postcode")
		assert.NotContains(t, src, "city")
	}
}
