// Package memory is an in-process record store used for development and tests.
// Deletes apply the same referential actions as the PostgreSQL schema.
package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/repository"
)

type db struct {
	customers  *table[domain.Customer]
	addresses  *table[domain.Address]
	wishLists  *table[domain.WishList]
	products   *table[domain.Product]
	categories *table[domain.Category]
}

// NewStore creates an empty in-memory record store.
func NewStore() *repository.Store {
	d := &db{
		customers: newTable[domain.Customer]("customer", nil),
		addresses: newTable[domain.Address]("address", nil),
		wishLists: newTable[domain.WishList]("wishlist", nil),
		products:  newTable[domain.Product]("product", nil),
		categories: newTable("category", func(c domain.Category) domain.Category {
			c.ProductIDs = slices.Clone(c.ProductIDs)
			return c
		}),
	}
	return &repository.Store{
		Customers:  &CustomerRepository{repo: repo[domain.Customer]{d.customers}, db: d},
		Addresses:  &AddressRepository{repo: repo[domain.Address]{d.addresses}},
		WishLists:  &WishListRepository{repo: repo[domain.WishList]{d.wishLists}, db: d},
		Products:   &ProductRepository{repo: repo[domain.Product]{d.products}, db: d},
		Categories: &CategoryRepository{repo: repo[domain.Category]{d.categories}, db: d},
	}
}

func refersTo(fk *uuid.UUID, id uuid.UUID) bool {
	return fk != nil && *fk == id
}

// CustomerRepository is the in-memory customer table.
type CustomerRepository struct {
	repo[domain.Customer]
	db *db
}

// Delete removes the customer and detaches its addresses and wish lists.
func (r *CustomerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.db.addresses.mutate(func(a domain.Address) bool { return refersTo(a.CustomerID, id) },
		func(a *domain.Address) { a.CustomerID = nil })
	r.db.wishLists.mutate(func(w domain.WishList) bool { return refersTo(w.CustomerID, id) },
		func(w *domain.WishList) { w.CustomerID = nil })
	return nil
}

// AddressRepository is the in-memory address table.
type AddressRepository struct {
	repo[domain.Address]
}

func (r *AddressRepository) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]domain.Address, error) {
	return r.t.filter(func(a domain.Address) bool { return refersTo(a.CustomerID, customerID) }), nil
}

// WishListRepository is the in-memory wish list table.
type WishListRepository struct {
	repo[domain.WishList]
	db *db
}

func (r *WishListRepository) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]domain.WishList, error) {
	return r.t.filter(func(w domain.WishList) bool { return refersTo(w.CustomerID, customerID) }), nil
}

// Delete removes the wish list and detaches its products.
func (r *WishListRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.db.products.mutate(func(p domain.Product) bool { return refersTo(p.WishListID, id) },
		func(p *domain.Product) { p.WishListID = nil })
	return nil
}

// ProductRepository is the in-memory product table.
type ProductRepository struct {
	repo[domain.Product]
	db *db
}

func (r *ProductRepository) ListByWishList(_ context.Context, wishListID uuid.UUID) ([]domain.Product, error) {
	return r.t.filter(func(p domain.Product) bool { return refersTo(p.WishListID, wishListID) }), nil
}

func (r *ProductRepository) ListByCategory(_ context.Context, categoryID uuid.UUID) ([]domain.Product, error) {
	r.db.categories.mu.RLock()
	c, ok := r.db.categories.rows[categoryID]
	var members []uuid.UUID
	if ok {
		members = slices.Clone(c.ProductIDs)
	}
	r.db.categories.mu.RUnlock()
	if len(members) == 0 {
		return []domain.Product{}, nil
	}
	return r.t.filter(func(p domain.Product) bool { return slices.Contains(members, p.ID) }), nil
}

// Delete removes the product and its category memberships.
func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.db.categories.mutate(func(c domain.Category) bool { return slices.Contains(c.ProductIDs, id) },
		func(c *domain.Category) {
			c.ProductIDs = slices.DeleteFunc(c.ProductIDs, func(p uuid.UUID) bool { return p == id })
		})
	return nil
}

// CategoryRepository is the in-memory category table.
type CategoryRepository struct {
	repo[domain.Category]
	db *db
}

func (r *CategoryRepository) ListByProduct(_ context.Context, productID uuid.UUID) ([]domain.Category, error) {
	return r.t.filter(func(c domain.Category) bool { return slices.Contains(c.ProductIDs, productID) }), nil
}

func (r *CategoryRepository) ListChildren(_ context.Context, parentID uuid.UUID) ([]domain.Category, error) {
	return r.t.filter(func(c domain.Category) bool { return refersTo(c.ParentID, parentID) }), nil
}

// Delete removes the category and turns its children into roots.
func (r *CategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.t.mutate(func(c domain.Category) bool { return refersTo(c.ParentID, id) },
		func(c *domain.Category) { c.ParentID = nil })
	return nil
}
