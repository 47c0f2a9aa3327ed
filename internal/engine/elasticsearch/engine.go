package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/engine"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

const versionType = "external_gte"

// Config holds the Elasticsearch connection settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Names     engine.IndexNames
	// Refresh is passed to write requests ("true", "false" or "wait_for").
	Refresh string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Engine is an Elasticsearch-backed implementation of engine.IndexStore.
// Every entity type lives in its own index.
type Engine struct {
	client  *elasticsearch.Client
	names   engine.IndexNames
	refresh string
	logger  *slog.Logger
}

type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type esBulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type esBulkResponse struct {
	Errors bool                    `json:"errors"`
	Items  []map[string]esBulkItem `json:"items"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an Elasticsearch engine and makes sure every entity index exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	names := cfg.Names
	if names == nil {
		names = engine.DefaultIndexNames("")
	}
	refresh := cfg.Refresh
	if refresh == "" {
		refresh = "false"
	}

	e := &Engine{
		client:  client,
		names:   names,
		refresh: refresh,
		logger:  logger.With(slog.String("component", "elasticsearch")),
	}

	for _, t := range domain.AllTypes {
		if err := e.ensureIndex(ctx, names.For(t)); err != nil {
			return nil, fmt.Errorf("elasticsearch: failed to ensure index: %w", err)
		}
	}
	return e, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: elasticsearch ping: %w", domain.ErrIndexUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("%w: elasticsearch ping: unexpected status %s", domain.ErrIndexUnavailable, res.Status())
	}
	return nil
}

func (e *Engine) ensureIndex(ctx context.Context, name string) error {
	res, err := e.client.Indices.Exists([]string{name}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", slog.String("index", name))
		return nil
	}

	res, err = e.client.Indices.Create(
		name,
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		reason := decodeError(res)
		// Another replica created it between the two calls.
		if strings.Contains(reason, "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s: %s", name, reason)
	}

	e.logger.Info("elasticsearch index created", slog.String("index", name))
	return nil
}

// Index adds or replaces one document using external versioning.
func (e *Engine) Index(ctx context.Context, doc domain.Document) error {
	res, err := e.client.Index(
		e.names.For(doc.Type),
		bytes.NewReader(doc.Source),
		e.client.Index.WithDocumentID(doc.ID.String()),
		e.client.Index.WithVersion(int(doc.Version)),
		e.client.Index.WithVersionType(versionType),
		e.client.Index.WithRefresh(e.refresh),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: elasticsearch index: %w", domain.ErrTransientIndexWrite, err)
	}
	defer func() { _ = res.Body.Close() }()

	if err := writeError("index", res); err != nil {
		return err
	}

	e.logger.DebugContext(ctx, "indexed document", slog.String("ref", doc.Ref().String()))
	return nil
}

// Delete removes a document. 404 and stale versions are ignored.
func (e *Engine) Delete(ctx context.Context, ref domain.EntityRef, version int64) error {
	res, err := e.client.Delete(
		e.names.For(ref.Type),
		ref.ID.String(),
		e.client.Delete.WithVersion(int(version)),
		e.client.Delete.WithVersionType(versionType),
		e.client.Delete.WithRefresh(e.refresh),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: elasticsearch delete: %w", domain.ErrTransientIndexWrite, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if err := writeError("delete", res); err != nil {
		return err
	}

	e.logger.DebugContext(ctx, "deleted document", slog.String("ref", ref.String()))
	return nil
}

// BulkIndex writes docs through the bulk NDJSON API.
func (e *Engine) BulkIndex(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index":       e.names.For(d.Type),
				"_id":          d.ID.String(),
				"version":      d.Version,
				"version_type": versionType,
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		buf.Write(bytes.TrimSpace(d.Source))
		buf.WriteByte('\n')
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: elasticsearch bulk index: %w", domain.ErrTransientIndexWrite, err)
	}
	defer func() { _ = res.Body.Close() }()

	if err := writeError("bulk index", res); err != nil {
		return err
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}
	if !bulkResp.Errors {
		return nil
	}

	var (
		msgs      []string
		transient bool
	)
	for _, item := range bulkResp.Items {
		for _, r := range item {
			switch {
			case r.Error.Type == "", r.Status == http.StatusConflict:
				continue
			case r.Status == http.StatusTooManyRequests, r.Status >= 500:
				transient = true
			}
			msgs = append(msgs, fmt.Sprintf("id=%s: %s: %s", r.ID, r.Error.Type, r.Error.Reason))
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	err = fmt.Errorf("elasticsearch bulk index: %d item errors: %s", len(msgs), strings.Join(msgs, "; "))
	if transient {
		return fmt.Errorf("%w: %w", domain.ErrTransientIndexWrite, err)
	}
	return err
}

// Search runs a query_string query (match_all when empty) against one index.
func (e *Engine) Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	data, err := json.Marshal(buildSearchQuery(q))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.names.For(q.Type)),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: elasticsearch search: %w", domain.ErrIndexUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		reason := decodeError(res)
		if res.StatusCode == http.StatusBadRequest {
			return nil, apperrors.InvalidInput("invalid search query: " + reason)
		}
		return nil, fmt.Errorf("%w: elasticsearch search: %s", domain.ErrIndexUnavailable, reason)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hits = append(hits, domain.SearchHit{ID: h.ID, Source: h.Source})
	}

	return &domain.SearchResult{
		Hits:   hits,
		Total:  esResp.Hits.Total.Value,
		TookMs: int64(esResp.Took),
	}, nil
}

func buildSearchQuery(q domain.SearchQuery) map[string]any {
	var query map[string]any
	if strings.TrimSpace(q.Query) == "" {
		query = map[string]any{"match_all": map[string]any{}}
	} else {
		query = map[string]any{
			"query_string": map[string]any{
				"query":            q.Query,
				"default_operator": "AND",
				"lenient":          true,
			},
		}
	}

	body := map[string]any{
		"query":            query,
		"from":             q.Offset,
		"size":             q.Size,
		"track_total_hits": true,
		"sort":             []any{"_score", map[string]any{"id": "asc"}},
	}
	if len(q.Fields) > 0 {
		body["_source"] = map[string]any{"includes": append([]string{"id"}, q.Fields...)}
	}
	return body
}

// DeleteIndex removes the index of t. Intended for tests and administration.
func (e *Engine) DeleteIndex(ctx context.Context, t domain.EntityType) error {
	res, err := e.client.Indices.Delete(
		[]string{e.names.For(t)},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch delete index: %s", decodeError(res))
	}
	return nil
}

// Refresh makes recent writes to every index visible to search.
func (e *Engine) Refresh(ctx context.Context) error {
	indices := make([]string, 0, len(domain.AllTypes))
	for _, t := range domain.AllTypes {
		indices = append(indices, e.names.For(t))
	}
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(indices...),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch refresh: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("elasticsearch refresh: %s", decodeError(res))
	}
	return nil
}

// writeError classifies a write response. Version conflicts mean a newer
// document is already stored and count as success.
func writeError(op string, res *esapi.Response) error {
	if !res.IsError() || res.StatusCode == http.StatusConflict {
		return nil
	}
	err := fmt.Errorf("elasticsearch %s: %s", op, decodeError(res))
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		return fmt.Errorf("%w: %w", domain.ErrTransientIndexWrite, err)
	}
	return err
}

func decodeError(res *esapi.Response) string {
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "unexpected status " + res.Status()
	}
	var errResp esErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Type != "" {
		return errResp.Error.Type + ": " + errResp.Error.Reason
	}
	return "unexpected status " + res.Status()
}
