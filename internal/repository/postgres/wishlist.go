package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/pkg/database"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

var wishListTable = table[domain.WishList]{
	name:     "wish_list",
	resource: "wishlist",
	columns:  `id, title, restricted, customer_id, created_at, updated_at`,
	scan: func(row pgx.Row, w *domain.WishList) error {
		return row.Scan(&w.ID, &w.Title, &w.Restricted, &w.CustomerID, &w.CreatedAt, &w.UpdatedAt)
	},
}

// WishListRepository implements wish list persistence using PostgreSQL.
type WishListRepository struct {
	pool database.DBTX
}

// NewWishListRepository creates a new PostgreSQL-backed wish list repository.
func NewWishListRepository(pool database.DBTX) *WishListRepository {
	return &WishListRepository{pool: pool}
}

// Create inserts a new wish list.
func (r *WishListRepository) Create(ctx context.Context, w *domain.WishList) error {
	query := `
		INSERT INTO wish_list (id, title, restricted, customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, w.ID, w.Title, w.Restricted, w.CustomerID, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("wishlist", "id", w.ID.String())
		}
		return fmt.Errorf("insert wish list: %w", err)
	}
	return nil
}

// GetByID retrieves a wish list by id.
func (r *WishListRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WishList, error) {
	return wishListTable.getByID(ctx, r.pool, id)
}

// Update replaces an existing wish list.
func (r *WishListRepository) Update(ctx context.Context, w *domain.WishList) error {
	query := `
		UPDATE wish_list
		SET title = $1, restricted = $2, customer_id = $3, updated_at = $4
		WHERE id = $5`

	ct, err := r.pool.Exec(ctx, query, w.Title, w.Restricted, w.CustomerID, w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("update wish list: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("wishlist", w.ID.String())
	}
	return nil
}

// Delete removes a wish list. Products are detached by the schema.
func (r *WishListRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return wishListTable.delete(ctx, r.pool, id)
}

// List returns one page of wish lists ordered by id.
func (r *WishListRepository) List(ctx context.Context, offset, limit int) ([]domain.WishList, int, error) {
	return wishListTable.list(ctx, r.pool, offset, limit)
}

// ListAfter returns the next id-ordered batch after the given id.
func (r *WishListRepository) ListAfter(ctx context.Context, after uuid.UUID, limit int) ([]domain.WishList, error) {
	return wishListTable.listAfter(ctx, r.pool, after, limit)
}

// ListByCustomer returns the wish lists owned by a customer.
func (r *WishListRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.WishList, error) {
	return wishListTable.listWhere(ctx, r.pool, "customer_id = $1", customerID)
}
