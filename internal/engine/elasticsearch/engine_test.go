package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/engine"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeES answers the handful of endpoints the engine calls.
type fakeES struct {
	mu       sync.Mutex
	requests []recordedRequest
	exists   bool
	respond  func(r recordedRequest) (int, string)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond := f.respond
	exists := f.exists
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodHead {
		if exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
		return
	}
	if r.Method == http.MethodPut && !strings.Contains(r.URL.Path, "/_doc/") {
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
		return
	}
	status, payload := http.StatusOK, `{}`
	if respond != nil {
		status, payload = respond(req)
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, payload)
}

func (f *fakeES) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeES) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeEngine(t *testing.T, fake *fakeES) *Engine {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	eng, err := New(context.Background(), Config{
		Addresses: []string{srv.URL},
		Names:     engine.DefaultIndexNames("test_"),
	}, testLogger())
	require.NoError(t, err)
	return eng
}

func testDoc(t domain.EntityType, version int64) domain.Document {
	id := uuid.New()
	return domain.Document{
		Type:    t,
		ID:      id,
		Version: version,
		Source:  json.RawMessage(`{"id":"` + id.String() + `","postcode":"AB12"}`),
	}
}

func TestNew_CreatesMissingIndices(t *testing.T) {
	fake := &fakeES{}
	newFakeEngine(t, fake)

	assert.Equal(t, len(domain.AllTypes), fake.count(http.MethodHead))
	assert.Equal(t, len(domain.AllTypes), fake.count(http.MethodPut))
	assert.Contains(t, fake.last().Body, "autocomplete_indexing")
}

func TestNew_SkipsExistingIndices(t *testing.T) {
	fake := &fakeES{exists: true}
	newFakeEngine(t, fake)

	assert.Equal(t, 0, fake.count(http.MethodPut))
}

func TestIndex_SendsExternalVersion(t *testing.T) {
	fake := &fakeES{exists: true}
	eng := newFakeEngine(t, fake)
	doc := testDoc(domain.TypeAddress, 42)

	fake.respond = func(recordedRequest) (int, string) { return http.StatusCreated, `{"result":"created"}` }
	require.NoError(t, eng.Index(context.Background(), doc))

	req := fake.last()
	assert.Equal(t, "/test_address/_doc/"+doc.ID.String(), req.Path)
	assert.Contains(t, req.Query, "version=42")
	assert.Contains(t, req.Query, "version_type=external_gte")
	assert.JSONEq(t, string(doc.Source), req.Body)
}

func TestIndex_VersionConflictIsSuccess(t *testing.T) {
	fake := &fakeES{exists: true}
	eng := newFakeEngine(t, fake)

	fake.respond = func(recordedRequest) (int, string) {
		return http.StatusConflict, `{"error":{"type":"version_conflict_engine_exception","reason":"stale"},"status":409}`
	}
	assert.NoError(t, eng.Index(context.Background(), testDoc(domain.TypeAddress, 1)))
}

func TestIndex_ServerErrorIsTransient(t *testing.T) {
	fake := &fakeES{exists: true}
	eng := newFakeEngine(t, fake)

	fake.respond = func(recordedRequest) (int, string) {
		return http.StatusTooManyRequests, `{"error":{"type":"es_rejected_execution_exception","reason":"queue full"},"status":429}`
	}
	err := eng.Index(context.Background(), testDoc(domain.TypeAddress, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransientIndexWrite)
	assert.Contains(t, err.Error(), "es_rejected_execution_exception")
}

func TestIndex_MappingErrorIsPermanent(t *testing.T) {
	fake := &fakeES{exists: true}
	eng := newFakeEngine(t, fake)

	fake.respond = func(recordedRequest) (int, string) {
		return http.StatusBadRequest, `{"error":{"type":"mapper_parsing_exception","reason":"bad field"},"status":400}`
	}
	err := eng.Index(context.Background(), testDoc(domain.TypeAddress, 1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTransientIndexWrite)
}

func TestDelete_NotFoundIgnored(t *testing.T) {
	fake := &fakeES{exists: true}
	eng := newFakeEngine(t, fake)

	fake.respond = func(recordedRequest) (int, string) { return http.StatusNotFound, `{"result":"not_found"}` }
	ref := domain.EntityRef{Type: domain.TypeCustomer, ID: uuid.New()}
	require.NoError(t, eng.Delete(context.Background(), ref, 7))

	req := fake.last()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/test_customer/_doc/"+ref.ID.String(), req.Path)
	assert.Contains(t, req.Query, "version=7")
}

func TestBulkIndex_EncodesNDJSON(t *testing.T) {
	fake := &fakeES{exists: true}
	eng := newFakeEngine(t, fake)
	docs := []domain.Document{testDoc(domain.TypeAddress, 1), testDoc(domain.TypeProduct, 2)}

	fake.respond = func(recordedRequest) (int, string) { return http.StatusOK, `{"errors":false,"items":[]}` }
	require.NoError(t, eng.BulkIndex(context.Background(), docs))

	req := fake.last()
	assert.Equal(t, "/_bulk", req.Path)
	lines := strings.Split(strings.TrimSpace(req.Body), "\n")
	require.Len(t, lines, 4)

	var action map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &action))
	assert.Equal(t, "test_address", action["index"]["_index"])
	assert.Equal(t, docs[0].ID.String(), action["index"]["_id"])
	assert.Equal(t, "external_gte", action["index"]["version_type"])
	assert.JSONEq(t, string(docs[1].Source), lines[3])
}

func TestBulkIndex_Empty(t *testing.T) {
	fake := &fakeES{exists: true}
	eng := newFakeEngine(t, fake)
	before := fake.count(http.MethodPost)

	require.NoError(t, eng.BulkIndex(context.Background(), nil))
	assert.Equal(t, before, fake.count(http.MethodPost))
}

func TestBulkIndex_ItemErrors(t *testing.T) {
	tests := []struct {
		name      string
		items     string
		wantErr   bool
		transient bool
	}{
		{
			name:  "conflicts only",
			items: `[{"index":{"_id":"a","status":409,"error":{"type":"version_conflict_engine_exception","reason":"stale"}}}]`,
		},
		{
			name:      "rejected item",
			items:     `[{"index":{"_id":"a","status":201}},{"index":{"_id":"b","status":429,"error":{"type":"es_rejected_execution_exception","reason":"busy"}}}]`,
			wantErr:   true,
			transient: true,
		},
		{
			name:    "mapping error",
			items:   `[{"index":{"_id":"a","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeES{exists: true}
			eng := newFakeEngine(t, fake)
			fake.respond = func(recordedRequest) (int, string) {
				return http.StatusOK, `{"errors":true,"items":` + tt.items + `}`
			}

			err := eng.BulkIndex(context.Background(), []domain.Document{testDoc(domain.TypeAddress, 1)})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.Retriable(err))
		})
	}
}

func TestSearch_QueryStringAndProjection(t *testing.T) {
	fake := &fakeES{exists: true}
	eng := newFakeEngine(t, fake)
	id := uuid.New().String()

	fake.respond = func(recordedRequest) (int, string) {
		return http.StatusOK, `{"took":3,"hits":{"total":{"value":1},"hits":[{"_id":"` + id + `","_source":{"id":"` + id + `","postcode":"AB12"}}]}}`
	}
	res, err := eng.Search(context.Background(), domain.SearchQuery{
		Type:   domain.TypeAddress,
		Query:  "postcode:AB12",
		Fields: []string{"postcode"},
		Offset: 20,
		Size:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, int64(3), res.TookMs)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, id, res.Hits[0].ID)

	req := fake.last()
	assert.Equal(t, "/test_address/_search", req.Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
	assert.EqualValues(t, 20, body["from"])
	assert.EqualValues(t, 10, body["size"])
	qs := body["query"].(map[string]any)["query_string"].(map[string]any)
	assert.Equal(t, "postcode:AB12", qs["query"])
	includes := body["_source"].(map[string]any)["includes"].([]any)
	assert.Equal(t, []any{"id", "postcode"}, includes)
}

func TestSearch_EmptyQueryMatchesAll(t *testing.T) {
	body := buildSearchQuery(domain.SearchQuery{Type: domain.TypeProduct, Size: 5})

	assert.Contains(t, body["query"], "match_all")
	assert.NotContains(t, body, "_source")
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		unavailable bool
	}{
		{name: "bad query", status: http.StatusBadRequest},
		{name: "missing index", status: http.StatusNotFound, unavailable: true},
		{name: "cluster down", status: http.StatusServiceUnavailable, unavailable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeES{exists: true}
			eng := newFakeEngine(t, fake)
			fake.respond = func(recordedRequest) (int, string) {
				return tt.status, `{"error":{"type":"some_exception","reason":"boom"},"status":` + strconv.Itoa(tt.status) + `}`
			}

			_, err := eng.Search(context.Background(), domain.SearchQuery{Type: domain.TypeAddress, Query: "x:(", Size: 10})
			require.Error(t, err)
			if tt.unavailable {
				assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}
