package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/repository"
	"github.com/utafrali/shopindex/internal/repository/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	err    error
}

func (s *recordingSink) Publish(_ context.Context, events ...domain.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func refs(events []domain.ChangeEvent) map[domain.EntityRef]domain.ChangeOp {
	out := make(map[domain.EntityRef]domain.ChangeOp, len(events))
	for _, e := range events {
		out[e.Ref()] = e.Op
	}
	return out
}

func TestCascade_CoversEveryEmbedding(t *testing.T) {
	// child -> parents whose document embeds the child
	want := map[domain.EntityType][]domain.EntityType{
		domain.TypeAddress:  {domain.TypeCustomer},
		domain.TypeCustomer: {domain.TypeAddress, domain.TypeWishList},
		domain.TypeWishList: {domain.TypeCustomer, domain.TypeProduct},
		domain.TypeProduct:  {domain.TypeWishList, domain.TypeCategory},
		domain.TypeCategory: {domain.TypeProduct, domain.TypeCategory},
	}
	for child, parents := range want {
		var got []domain.EntityType
		for _, e := range EdgesFrom(child) {
			got = append(got, e.Parent)
		}
		assert.ElementsMatch(t, parents, got, "child %s", child)
	}
}

func TestPlan_AddressCreate_RefreshesCustomer(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	n := New(store, &recordingSink{}, newTestLogger())

	customerID := uuid.New()
	addr := domain.Address{ID: uuid.New(), Postcode: "AB12", Country: "GB", CustomerID: ptr(customerID)}

	events := n.Plan(ctx, domain.OpUpsert, addr)
	require.Len(t, events, 2)
	assert.Equal(t, addr.Ref(), events[0].Ref())
	assert.Nil(t, events[0].Cause)
	assert.Equal(t, domain.EntityRef{Type: domain.TypeCustomer, ID: customerID}, events[1].Ref())
	assert.Equal(t, domain.OpUpsert, events[1].Op)
	require.NotNil(t, events[1].Cause)
	assert.Equal(t, addr.Ref(), *events[1].Cause)
}

func TestPlan_Update_RefreshesOldAndNewParents(t *testing.T) {
	ctx := context.Background()
	n := New(memory.NewStore(), &recordingSink{}, newTestLogger())

	oldOwner, newOwner := uuid.New(), uuid.New()
	id := uuid.New()
	before := domain.Address{ID: id, Postcode: "AB12", Country: "GB", CustomerID: ptr(oldOwner)}
	after := domain.Address{ID: id, Postcode: "AB12", Country: "GB", CustomerID: ptr(newOwner)}

	got := refs(n.Plan(ctx, domain.OpUpsert, before, after))
	assert.Len(t, got, 3)
	assert.Contains(t, got, domain.EntityRef{Type: domain.TypeCustomer, ID: oldOwner})
	assert.Contains(t, got, domain.EntityRef{Type: domain.TypeCustomer, ID: newOwner})
}

func TestPlan_Delete_SelfDeleteParentsUpsert(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	n := New(store, &recordingSink{}, newTestLogger())

	cust := &domain.Customer{ID: uuid.New()}
	require.NoError(t, store.Customers.Create(ctx, cust))
	a := &domain.Address{ID: uuid.New(), Postcode: "AB12", Country: "GB", CustomerID: ptr(cust.ID)}
	require.NoError(t, store.Addresses.Create(ctx, a))
	w := &domain.WishList{ID: uuid.New(), Title: "w", CustomerID: ptr(cust.ID)}
	require.NoError(t, store.WishLists.Create(ctx, w))

	got := refs(n.Plan(ctx, domain.OpDelete, *cust))
	assert.Equal(t, map[domain.EntityRef]domain.ChangeOp{
		cust.Ref(): domain.OpDelete,
		a.Ref():    domain.OpUpsert,
		w.Ref():    domain.OpUpsert,
	}, got)
}

func TestPlan_Category_RefreshesProductsAndChildren(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	n := New(store, &recordingSink{}, newTestLogger())

	p := uuid.New()
	parent := domain.Category{ID: uuid.New(), ProductIDs: []uuid.UUID{p}}
	require.NoError(t, store.Categories.Create(ctx, &parent))
	child := &domain.Category{ID: uuid.New(), ParentID: ptr(parent.ID)}
	require.NoError(t, store.Categories.Create(ctx, child))

	got := refs(n.Plan(ctx, domain.OpUpsert, parent))
	assert.Contains(t, got, domain.EntityRef{Type: domain.TypeProduct, ID: p})
	assert.Contains(t, got, child.Ref())
	assert.Len(t, got, 3)
}

func TestPlan_Nothing(t *testing.T) {
	n := New(memory.NewStore(), &recordingSink{}, newTestLogger())
	assert.Empty(t, n.Plan(context.Background(), domain.OpUpsert))
}

type failingAddresses struct {
	repository.AddressRepository
}

func (failingAddresses) ListByCustomer(context.Context, uuid.UUID) ([]domain.Address, error) {
	return nil, errors.New("connection reset")
}

func TestPlan_ResolutionFailure_KeepsSelfEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Addresses = failingAddresses{store.Addresses}
	n := New(store, &recordingSink{}, newTestLogger())

	cust := domain.Customer{ID: uuid.New()}
	events := n.Plan(ctx, domain.OpUpsert, cust)
	require.NotEmpty(t, events)
	assert.Equal(t, cust.Ref(), events[0].Ref())
}

func TestEmit_SinkFailureIsSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("queue full")}
	n := New(memory.NewStore(), sink, newTestLogger())

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), domain.OpUpsert, domain.Customer{ID: uuid.New()})
	})
	assert.Empty(t, sink.events)
}

func TestNotify_Publishes(t *testing.T) {
	sink := &recordingSink{}
	n := New(memory.NewStore(), sink, newTestLogger())

	c := domain.Customer{ID: uuid.New()}
	n.Notify(context.Background(), domain.OpUpsert, c)

	require.Len(t, sink.events, 1)
	assert.Equal(t, c.Ref(), sink.events[0].Ref())
}
