package notifier

import (
	"context"

	"github.com/google/uuid"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/repository"
)

// Edge declares that documents of type Parent embed a shallow copy of Child.
// Resolve finds the affected parent ids from a snapshot of the child.
type Edge struct {
	Child   domain.EntityType
	Parent  domain.EntityType
	Path    string
	Resolve func(ctx context.Context, store *repository.Store, child domain.Entity) ([]uuid.UUID, error)
}

// Cascade is the complete child -> parent table. Each entry mirrors one
// embedded field in the document types.
var Cascade = []Edge{
	{
		Child: domain.TypeAddress, Parent: domain.TypeCustomer, Path: "address.customer_id",
		Resolve: func(_ context.Context, _ *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return fk(e.(domain.Address).CustomerID), nil
		},
	},
	{
		Child: domain.TypeCustomer, Parent: domain.TypeAddress, Path: "address.customer_id",
		Resolve: func(ctx context.Context, s *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return ids(s.Addresses.ListByCustomer(ctx, e.Ref().ID))
		},
	},
	{
		Child: domain.TypeCustomer, Parent: domain.TypeWishList, Path: "wish_list.customer_id",
		Resolve: func(ctx context.Context, s *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return ids(s.WishLists.ListByCustomer(ctx, e.Ref().ID))
		},
	},
	{
		Child: domain.TypeWishList, Parent: domain.TypeCustomer, Path: "wish_list.customer_id",
		Resolve: func(_ context.Context, _ *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return fk(e.(domain.WishList).CustomerID), nil
		},
	},
	{
		Child: domain.TypeWishList, Parent: domain.TypeProduct, Path: "product.wish_list_id",
		Resolve: func(ctx context.Context, s *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return ids(s.Products.ListByWishList(ctx, e.Ref().ID))
		},
	},
	{
		Child: domain.TypeProduct, Parent: domain.TypeWishList, Path: "product.wish_list_id",
		Resolve: func(_ context.Context, _ *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return fk(e.(domain.Product).WishListID), nil
		},
	},
	{
		Child: domain.TypeProduct, Parent: domain.TypeCategory, Path: "rel_category__product.product_id",
		Resolve: func(ctx context.Context, s *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return ids(s.Categories.ListByProduct(ctx, e.Ref().ID))
		},
	},
	{
		Child: domain.TypeCategory, Parent: domain.TypeProduct, Path: "rel_category__product.category_id",
		Resolve: func(_ context.Context, _ *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return e.(domain.Category).ProductIDs, nil
		},
	},
	{
		Child: domain.TypeCategory, Parent: domain.TypeCategory, Path: "category.parent_id",
		Resolve: func(ctx context.Context, s *repository.Store, e domain.Entity) ([]uuid.UUID, error) {
			return ids(s.Categories.ListChildren(ctx, e.Ref().ID))
		},
	},
}

// EdgesFrom returns the edges whose child is t.
func EdgesFrom(t domain.EntityType) []Edge {
	var out []Edge
	for _, e := range Cascade {
		if e.Child == t {
			out = append(out, e)
		}
	}
	return out
}

func fk(id *uuid.UUID) []uuid.UUID {
	if id == nil {
		return nil
	}
	return []uuid.UUID{*id}
}

func ids[T domain.Entity](items []T, err error) ([]uuid.UUID, error) {
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, len(items))
	for i, v := range items {
		out[i] = v.Ref().ID
	}
	return out, nil
}
