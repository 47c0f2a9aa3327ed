package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopindex/internal/document"
	"github.com/utafrali/shopindex/internal/domain"
	enginemem "github.com/utafrali/shopindex/internal/engine/memory"
	"github.com/utafrali/shopindex/internal/notifier"
	"github.com/utafrali/shopindex/internal/reindex"
	"github.com/utafrali/shopindex/internal/repository"
	"github.com/utafrali/shopindex/internal/repository/memory"
	"github.com/utafrali/shopindex/internal/synchronizer"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
	"github.com/utafrali/shopindex/pkg/pagination"
	"github.com/utafrali/shopindex/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

// recordingSink keeps every published event.
type recordingSink struct {
	events []domain.ChangeEvent
}

func (s *recordingSink) Publish(_ context.Context, events ...domain.ChangeEvent) error {
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) refs() []domain.EntityRef {
	out := make([]domain.EntityRef, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Ref()
	}
	return out
}

// applySink applies events synchronously so tests observe the index right after a write.
type applySink struct {
	syncer *synchronizer.Synchronizer
}

func (s applySink) Publish(ctx context.Context, events ...domain.ChangeEvent) error {
	for _, ev := range events {
		_ = s.syncer.Apply(ctx, ev)
	}
	return nil
}

func newRecords(t *testing.T) (*Records, *repository.Store, *recordingSink) {
	t.Helper()
	store := memory.NewStore()
	sink := &recordingSink{}
	return NewRecords(store, notifier.New(store, sink, testLogger()), testLogger()), store, sink
}

func TestRecords_CreateAssignsIDAndNotifies(t *testing.T) {
	recs, _, sink := newRecords(t)
	ctx := context.Background()

	c, err := recs.Customers.Create(ctx, &domain.Customer{FirstName: "Ada"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	require.Len(t, sink.events, 1)
	assert.Equal(t, c.Ref(), sink.events[0].Ref())
	assert.Equal(t, domain.OpUpsert, sink.events[0].Op)

	got, err := recs.Customers.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
}

func TestRecords_CreateValidates(t *testing.T) {
	recs, _, sink := newRecords(t)

	_, err := recs.Addresses.Create(context.Background(), &domain.Address{Country: "GBR"})
	var valErr *validator.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields(), "postcode")
	assert.Equal(t, "must be exactly 2 characters", valErr.Fields()["country"])
	assert.Empty(t, sink.events)
}

func TestRecords_CreateRejectsMissingReference(t *testing.T) {
	recs, _, _ := newRecords(t)

	_, err := recs.Addresses.Create(context.Background(), &domain.Address{Postcode: "AB12", Country: "GB", CustomerID: ptr(uuid.New())})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRecords_CategoryCannotParentItself(t *testing.T) {
	recs, _, _ := newRecords(t)
	id := uuid.New()

	_, err := recs.Categories.Create(context.Background(), &domain.Category{ID: id, ParentID: &id})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRecords_UpdateRefreshesOldAndNewParents(t *testing.T) {
	recs, _, sink := newRecords(t)
	ctx := context.Background()
	c1, err := recs.Customers.Create(ctx, &domain.Customer{FirstName: "Ada"})
	require.NoError(t, err)
	c2, err := recs.Customers.Create(ctx, &domain.Customer{FirstName: "Grace"})
	require.NoError(t, err)
	a, err := recs.Addresses.Create(ctx, &domain.Address{Postcode: "AB12", Country: "GB", CustomerID: ptr(c1.ID)})
	require.NoError(t, err)
	created := a.CreatedAt
	sink.events = nil

	updated, err := recs.Addresses.Update(ctx, a.ID, &domain.Address{Postcode: "AB12", Country: "GB", CustomerID: ptr(c2.ID)})
	require.NoError(t, err)
	assert.Equal(t, created, updated.CreatedAt)

	assert.ElementsMatch(t, []domain.EntityRef{a.Ref(), c1.Ref(), c2.Ref()}, sink.refs())
}

func TestRecords_UpdateMissing(t *testing.T) {
	recs, _, _ := newRecords(t)
	_, err := recs.Customers.Update(context.Background(), uuid.New(), &domain.Customer{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRecords_DeletePlansCascadeBeforeDelete(t *testing.T) {
	recs, store, sink := newRecords(t)
	ctx := context.Background()
	c, err := recs.Customers.Create(ctx, &domain.Customer{FirstName: "Ada"})
	require.NoError(t, err)
	a, err := recs.Addresses.Create(ctx, &domain.Address{Postcode: "AB12", Country: "GB", CustomerID: ptr(c.ID)})
	require.NoError(t, err)
	sink.events = nil

	require.NoError(t, recs.Customers.Delete(ctx, c.ID))

	require.Len(t, sink.events, 2)
	assert.Equal(t, domain.OpDelete, sink.events[0].Op)
	assert.Equal(t, c.Ref(), sink.events[0].Ref())
	assert.Equal(t, a.Ref(), sink.events[1].Ref())
	assert.Equal(t, domain.OpUpsert, sink.events[1].Op)

	_, err = store.Customers.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRecords_List(t *testing.T) {
	recs, _, _ := newRecords(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := recs.Products.Create(ctx, &domain.Product{Title: "Lamp"})
		require.NoError(t, err)
	}

	params, err := pagination.New(1, 2)
	require.NoError(t, err)
	res, err := recs.Products.List(ctx, params)
	require.NoError(t, err)
	assert.Len(t, res.Data, 2)
	assert.Equal(t, 5, res.TotalCount)
	assert.Equal(t, 3, res.TotalPages)
	assert.True(t, res.HasNext)
	assert.True(t, res.HasPrev)
}

func indexDoc(t *testing.T, idx *enginemem.Engine, typ domain.EntityType, src map[string]any) uuid.UUID {
	t.Helper()
	id := uuid.New()
	src["id"] = id.String()
	raw, err := json.Marshal(src)
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), domain.Document{Type: typ, ID: id, Version: 1, Source: raw}))
	return id
}

func TestSearch_Paginates(t *testing.T) {
	idx := enginemem.New()
	for i := 0; i < 25; i++ {
		indexDoc(t, idx, domain.TypeProduct, map[string]any{"title": "lamp"})
	}
	svc := NewSearchService(idx, testLogger())

	params, err := pagination.New(1, 10)
	require.NoError(t, err)
	res, err := svc.Search(context.Background(), "products", "title:lamp", params)
	require.NoError(t, err)
	assert.Len(t, res.Data, 10)
	assert.Equal(t, 25, res.TotalCount)
	assert.Equal(t, 1, res.Page)
	assert.True(t, res.HasNext)
}

func TestSearch_EmptyResultIsNotAnError(t *testing.T) {
	svc := NewSearchService(enginemem.New(), testLogger())

	res, err := svc.Search(context.Background(), "address", "postcode:ZZ99", pagination.DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, res.Data)
	assert.NotNil(t, res.Data)
	assert.Equal(t, 0, res.TotalCount)
}

func TestSearch_RejectsBadInput(t *testing.T) {
	svc := NewSearchService(enginemem.New(), testLogger())
	ctx := context.Background()

	_, err := svc.Search(ctx, "orders", "", pagination.DefaultParams())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Search(ctx, "address", "", pagination.Params{Page: -1, Size: 10})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.SearchProjection(ctx, "address", "", []string{"city; drop"}, pagination.DefaultParams())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSearch_UnavailableIsRetriable(t *testing.T) {
	idx := enginemem.New()
	idx.Fail(errors.New("connection refused"))
	svc := NewSearchService(idx, testLogger())

	_, err := svc.Search(context.Background(), "address", "", pagination.DefaultParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.True(t, domain.Retriable(err))
}

func TestSearchProjection_DefaultFields(t *testing.T) {
	idx := enginemem.New()
	indexDoc(t, idx, domain.TypeAddress, map[string]any{"postcode": "AB12", "city": "Leeds", "address2": "Flat 1"})
	svc := NewSearchService(idx, testLogger())

	res, err := svc.SearchProjection(context.Background(), "address", "", nil, pagination.DefaultParams())
	require.NoError(t, err)
	require.Len(t, res.Data, 1)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(res.Data[0], &doc))
	assert.Equal(t, "AB12", doc["postcode"])
	assert.Contains(t, doc, "id")
	assert.NotContains(t, doc, "address2")
}

func TestSearchProjection_ExplicitFields(t *testing.T) {
	idx := enginemem.New()
	indexDoc(t, idx, domain.TypeAddress, map[string]any{"postcode": "AB12", "city": "Leeds"})
	svc := NewSearchService(idx, testLogger())

	res, err := svc.SearchProjection(context.Background(), "address", "leeds", []string{"city"}, pagination.DefaultParams())
	require.NoError(t, err)
	require.Len(t, res.Data, 1)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(res.Data[0], &doc))
	assert.Len(t, doc, 2)
	assert.Equal(t, "Leeds", doc["city"])
}

// system wires the write path, synchronizer, index and reindexer in process.
type system struct {
	store   *repository.Store
	index   *enginemem.Engine
	records *Records
	search  *SearchService
	reindex *reindex.Reindexer
	dropped []domain.ChangeEvent
}

func newSystem(t *testing.T) *system {
	t.Helper()
	sys := &system{store: memory.NewStore(), index: enginemem.New()}
	builder := document.NewBuilder(sys.store)
	syncer := synchronizer.New(builder, sys.index, synchronizer.Config{
		MaxAttempts:    2,
		InitialBackoff: 1,
		MaxBackoff:     1,
	}, testLogger(), synchronizer.WithDropHandler(func(_ context.Context, ev domain.ChangeEvent, _ error) {
		sys.dropped = append(sys.dropped, ev)
	}))
	n := notifier.New(sys.store, applySink{syncer: syncer}, testLogger())
	sys.records = NewRecords(sys.store, n, testLogger())
	sys.search = NewSearchService(sys.index, testLogger())
	sys.reindex = reindex.New(sys.store, builder, sys.index, reindex.Config{RetryBackoff: 1, MaxBatchRetries: 1}, testLogger())
	return sys
}

func (s *system) hits(t *testing.T, resource, query string) []map[string]any {
	t.Helper()
	res, err := s.search.Search(context.Background(), resource, query, pagination.DefaultParams())
	require.NoError(t, err)
	out := make([]map[string]any, len(res.Data))
	for i, raw := range res.Data {
		require.NoError(t, json.Unmarshal(raw, &out[i]))
	}
	return out
}

func TestScenario_CreateThenSearch(t *testing.T) {
	sys := newSystem(t)

	_, err := sys.records.Addresses.Create(context.Background(), &domain.Address{Address1: "10 Main St", City: "Leeds", Postcode: "AB12", Country: "GB"})
	require.NoError(t, err)

	assert.Len(t, sys.hits(t, "address", "postcode:AB12"), 1)
}

func TestScenario_UpdateRefreshesEmbeddingParent(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()
	c, err := sys.records.Customers.Create(ctx, &domain.Customer{FirstName: "Ada"})
	require.NoError(t, err)
	a, err := sys.records.Addresses.Create(ctx, &domain.Address{City: "Leeds", Postcode: "AB12", Country: "GB", CustomerID: ptr(c.ID)})
	require.NoError(t, err)

	_, err = sys.records.Addresses.Update(ctx, a.ID, &domain.Address{City: "York", Postcode: "AB12", Country: "GB", CustomerID: ptr(c.ID)})
	require.NoError(t, err)

	customers := sys.hits(t, "customer", "addresses.city:York")
	require.Len(t, customers, 1)
	addrs := customers[0]["addresses"].([]any)
	require.Len(t, addrs, 1)
	assert.Equal(t, "York", addrs[0].(map[string]any)["city"])
	assert.Empty(t, sys.hits(t, "customer", "addresses.city:Leeds"))
}

func TestScenario_DeleteRemovesFromSearch(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()
	a, err := sys.records.Addresses.Create(ctx, &domain.Address{Postcode: "AB12", Country: "GB"})
	require.NoError(t, err)
	require.Len(t, sys.hits(t, "address", "postcode:AB12"), 1)

	require.NoError(t, sys.records.Addresses.Delete(ctx, a.ID))

	assert.Empty(t, sys.hits(t, "address", "postcode:AB12"))
}

// gatedIndex holds bulk writes until release is closed.
type gatedIndex struct {
	*enginemem.Engine
	release chan struct{}
}

func (g *gatedIndex) BulkIndex(ctx context.Context, docs []domain.Document) error {
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Engine.BulkIndex(ctx, docs)
}

func TestScenario_SecondReindexConflicts(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := sys.records.Customers.Create(ctx, &domain.Customer{FirstName: "Ada"})
		require.NoError(t, err)
	}
	gate := &gatedIndex{Engine: sys.index, release: make(chan struct{})}
	r := reindex.New(sys.store, document.NewBuilder(sys.store), gate, reindex.Config{}, testLogger())

	first, err := r.ReindexAll(ctx)
	require.NoError(t, err)

	_, err = r.ReindexAll(ctx)
	assert.ErrorIs(t, err, domain.ErrReindexConflict)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	close(gate.release)
	<-first.Done()
	assert.Equal(t, domain.JobSucceeded, first.Status())

	// Once the first job is finished a new one is accepted.
	second, err := r.ReindexAll(ctx)
	require.NoError(t, err)
	<-second.Done()
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestScenario_ReindexRestoresDroppedWrites(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()

	sys.index.Fail(errors.New("cluster down"))
	a, err := sys.records.Addresses.Create(ctx, &domain.Address{Postcode: "AB12", Country: "GB"})
	require.NoError(t, err, "the write itself must not fail")
	require.Len(t, sys.dropped, 1)
	assert.Equal(t, a.Ref(), sys.dropped[0].Ref())

	sys.index.Restore()
	assert.Empty(t, sys.hits(t, "address", "postcode:AB12"))

	job, err := sys.reindex.ReindexAll(ctx)
	require.NoError(t, err)
	<-job.Done()
	assert.Equal(t, domain.JobSucceeded, job.Status())

	assert.Len(t, sys.hits(t, "address", "postcode:AB12"), 1)
}
