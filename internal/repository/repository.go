package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/utafrali/shopindex/internal/domain"
)

// Repository is the persistence contract shared by every record type.
type Repository[T domain.Entity] interface {
	// Create inserts a new record.
	Create(ctx context.Context, v *T) error

	// GetByID retrieves a record by id. Missing records yield apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*T, error)

	// Update replaces an existing record.
	Update(ctx context.Context, v *T) error

	// Delete removes a record by id.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns one page of records ordered by id plus the total count.
	List(ctx context.Context, offset, limit int) ([]T, int, error)

	// ListAfter returns up to limit records with id strictly greater than after,
	// in ascending id order. uuid.Nil starts from the beginning.
	ListAfter(ctx context.Context, after uuid.UUID, limit int) ([]T, error)
}

// CustomerRepository persists customers.
type CustomerRepository interface {
	Repository[domain.Customer]
}

// AddressRepository persists addresses.
type AddressRepository interface {
	Repository[domain.Address]
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Address, error)
}

// WishListRepository persists wish lists.
type WishListRepository interface {
	Repository[domain.WishList]
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.WishList, error)
}

// ProductRepository persists products.
type ProductRepository interface {
	Repository[domain.Product]
	ListByWishList(ctx context.Context, wishListID uuid.UUID) ([]domain.Product, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Product, error)
}

// CategoryRepository persists categories and their product membership.
type CategoryRepository interface {
	Repository[domain.Category]
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]domain.Category, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Category, error)
}

// Store groups the repositories that make up the record store.
type Store struct {
	Customers  CustomerRepository
	Addresses  AddressRepository
	WishLists  WishListRepository
	Products   ProductRepository
	Categories CategoryRepository
}
