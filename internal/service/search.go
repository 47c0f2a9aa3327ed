package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/engine"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
	"github.com/utafrali/shopindex/pkg/pagination"
)

// maxQueryLength bounds the query string accepted from clients.
const maxQueryLength = 1000

var fieldPattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// DefaultProjections lists the fields returned by a projection search when
// the caller names none.
var DefaultProjections = map[domain.EntityType][]string{
	domain.TypeAddress:  {"address1", "city", "postcode", "country", "customer.id", "customer.email"},
	domain.TypeCustomer: {"first_name", "last_name", "email", "addresses.postcode"},
	domain.TypeWishList: {"title", "restricted", "customer.id", "products.title"},
	domain.TypeProduct:  {"title", "keywords", "rating", "wish_list.title", "categories.description"},
	domain.TypeCategory: {"description", "status", "parent.id", "products.title"},
}

// SearchService answers queries from the index store only.
type SearchService struct {
	index  engine.IndexStore
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(index engine.IndexStore, logger *slog.Logger) *SearchService {
	return &SearchService{index: index, logger: logger}
}

// Search returns one page of full documents of resource matching query.
// An empty query matches everything.
func (s *SearchService) Search(ctx context.Context, resource, query string, params pagination.Params) (pagination.Result[json.RawMessage], error) {
	return s.search(ctx, resource, query, nil, params)
}

// SearchProjection is Search narrowed to fields, or to the resource's default
// projection when fields is empty. The document id is always included.
func (s *SearchService) SearchProjection(ctx context.Context, resource, query string, fields []string, params pagination.Params) (pagination.Result[json.RawMessage], error) {
	t, err := parseResource(resource)
	if err != nil {
		return pagination.Result[json.RawMessage]{}, err
	}
	if len(fields) == 0 {
		fields = DefaultProjections[t]
	}
	for _, f := range fields {
		if !fieldPattern.MatchString(f) {
			return pagination.Result[json.RawMessage]{}, apperrors.InvalidInput(fmt.Sprintf("invalid field %q", f))
		}
	}
	return s.search(ctx, resource, query, fields, params)
}

func (s *SearchService) search(ctx context.Context, resource, query string, fields []string, params pagination.Params) (pagination.Result[json.RawMessage], error) {
	t, err := parseResource(resource)
	if err != nil {
		return pagination.Result[json.RawMessage]{}, err
	}
	query = strings.TrimSpace(query)
	if len(query) > maxQueryLength {
		return pagination.Result[json.RawMessage]{}, apperrors.InvalidInput(fmt.Sprintf("query must be at most %d characters", maxQueryLength))
	}
	// Re-validate so callers that build Params by hand get the same limits.
	params, err = pagination.New(params.Page, params.Size)
	if err != nil {
		return pagination.Result[json.RawMessage]{}, err
	}

	res, err := s.index.Search(ctx, domain.SearchQuery{
		Type:   t,
		Query:  query,
		Fields: fields,
		Offset: params.Offset,
		Size:   params.Size,
	})
	if err != nil {
		return pagination.Result[json.RawMessage]{}, fmt.Errorf("search %s: %w", t, err)
	}

	docs := make([]json.RawMessage, 0, len(res.Hits))
	for _, h := range res.Hits {
		docs = append(docs, h.Source)
	}

	s.logger.DebugContext(ctx, "search executed",
		slog.String("resource", string(t)),
		slog.String("query", query),
		slog.Int("total", res.Total),
		slog.Int64("took_ms", res.TookMs),
	)

	return pagination.NewResult(docs, res.Total, params), nil
}

func parseResource(resource string) (domain.EntityType, error) {
	t, err := domain.ParseEntityType(resource)
	if err != nil {
		return "", apperrors.InvalidInput(err.Error())
	}
	return t, nil
}
