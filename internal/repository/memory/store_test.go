package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopindex/internal/domain"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

func ptr[T any](v T) *T { return &v }

func TestRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	a := &domain.Address{ID: uuid.New(), Postcode: "AB12", Country: "GB"}
	require.NoError(t, s.Addresses.Create(ctx, a))

	err := s.Addresses.Create(ctx, a)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))

	got, err := s.Addresses.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "AB12", got.Postcode)

	got.City = "Leeds"
	require.NoError(t, s.Addresses.Update(ctx, got))
	got, err = s.Addresses.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Leeds", got.City)

	require.NoError(t, s.Addresses.Delete(ctx, a.ID))
	_, err = s.Addresses.GetByID(ctx, a.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.True(t, errors.Is(s.Addresses.Delete(ctx, a.ID), apperrors.ErrNotFound))
	assert.True(t, errors.Is(s.Addresses.Update(ctx, a), apperrors.ErrNotFound))
}

func TestRepo_ListAfter_IDAscending(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Customers.Create(ctx, &domain.Customer{ID: uuid.New()}))
	}

	var seen []uuid.UUID
	after := uuid.Nil
	for {
		page, err := s.Customers.ListAfter(ctx, after, 3)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			seen = append(seen, c.ID)
		}
		after = page[len(page)-1].ID
	}

	require.Len(t, seen, 7)
	for i := 1; i < len(seen); i++ {
		assert.True(t, lessID(seen[i-1], seen[i]), "ids must be strictly ascending")
	}
}

func TestRepo_List_Pages(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Products.Create(ctx, &domain.Product{ID: uuid.New(), Title: "p"}))
	}

	page, total, err := s.Products.List(ctx, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 1)

	page, _, err = s.Products.List(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestStore_Relations(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	cust := &domain.Customer{ID: uuid.New()}
	require.NoError(t, s.Customers.Create(ctx, cust))
	addr := &domain.Address{ID: uuid.New(), Postcode: "AB12", Country: "GB", CustomerID: ptr(cust.ID)}
	require.NoError(t, s.Addresses.Create(ctx, addr))
	wl := &domain.WishList{ID: uuid.New(), Title: "xmas", CustomerID: ptr(cust.ID)}
	require.NoError(t, s.WishLists.Create(ctx, wl))
	prod := &domain.Product{ID: uuid.New(), Title: "lamp", WishListID: ptr(wl.ID)}
	require.NoError(t, s.Products.Create(ctx, prod))
	parent := &domain.Category{ID: uuid.New()}
	require.NoError(t, s.Categories.Create(ctx, parent))
	cat := &domain.Category{ID: uuid.New(), ParentID: ptr(parent.ID), ProductIDs: []uuid.UUID{prod.ID}}
	require.NoError(t, s.Categories.Create(ctx, cat))

	addrs, err := s.Addresses.ListByCustomer(ctx, cust.ID)
	require.NoError(t, err)
	assert.Len(t, addrs, 1)

	prods, err := s.Products.ListByCategory(ctx, cat.ID)
	require.NoError(t, err)
	assert.Len(t, prods, 1)

	cats, err := s.Categories.ListByProduct(ctx, prod.ID)
	require.NoError(t, err)
	assert.Len(t, cats, 1)

	children, err := s.Categories.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	// Referential actions on delete.
	require.NoError(t, s.Customers.Delete(ctx, cust.ID))
	gotAddr, err := s.Addresses.GetByID(ctx, addr.ID)
	require.NoError(t, err)
	assert.Nil(t, gotAddr.CustomerID)

	require.NoError(t, s.Products.Delete(ctx, prod.ID))
	gotCat, err := s.Categories.GetByID(ctx, cat.ID)
	require.NoError(t, err)
	assert.Empty(t, gotCat.ProductIDs)

	require.NoError(t, s.Categories.Delete(ctx, parent.ID))
	gotCat, err = s.Categories.GetByID(ctx, cat.ID)
	require.NoError(t, err)
	assert.Nil(t, gotCat.ParentID)
}

func TestCategory_ProductIDsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	pid := uuid.New()
	cat := &domain.Category{ID: uuid.New(), ProductIDs: []uuid.UUID{pid}}
	require.NoError(t, s.Categories.Create(ctx, cat))

	cat.ProductIDs[0] = uuid.New()

	got, err := s.Categories.GetByID(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, pid, got.ProductIDs[0])
}
