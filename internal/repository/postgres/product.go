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

const productColumns = `id, title, keywords, description, rating, date_added, date_modified,
	wish_list_id, created_at, updated_at`

var productTable = table[domain.Product]{
	name:     "product",
	resource: "product",
	columns:  productColumns,
	scan: func(row pgx.Row, p *domain.Product) error {
		return row.Scan(&p.ID, &p.Title, &p.Keywords, &p.Description, &p.Rating, &p.DateAdded,
			&p.DateModified, &p.WishListID, &p.CreatedAt, &p.UpdatedAt)
	},
}

// ProductRepository implements product persistence using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO product (id, title, keywords, description, rating, date_added, date_modified,
			wish_list_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Title, p.Keywords, p.Description, p.Rating, p.DateAdded, p.DateModified,
		p.WishListID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "id", p.ID.String())
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by id.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return productTable.getByID(ctx, r.pool, id)
}

// Update replaces an existing product.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE product
		SET title = $1, keywords = $2, description = $3, rating = $4, date_added = $5,
		    date_modified = $6, wish_list_id = $7, updated_at = $8
		WHERE id = $9`

	ct, err := r.pool.Exec(ctx, query,
		p.Title, p.Keywords, p.Description, p.Rating, p.DateAdded, p.DateModified,
		p.WishListID, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", p.ID.String())
	}
	return nil
}

// Delete removes a product. Category memberships cascade in the schema.
func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return productTable.delete(ctx, r.pool, id)
}

// List returns one page of products ordered by id.
func (r *ProductRepository) List(ctx context.Context, offset, limit int) ([]domain.Product, int, error) {
	return productTable.list(ctx, r.pool, offset, limit)
}

// ListAfter returns the next id-ordered batch after the given id.
func (r *ProductRepository) ListAfter(ctx context.Context, after uuid.UUID, limit int) ([]domain.Product, error) {
	return productTable.listAfter(ctx, r.pool, after, limit)
}

// ListByWishList returns the products on a wish list.
func (r *ProductRepository) ListByWishList(ctx context.Context, wishListID uuid.UUID) ([]domain.Product, error) {
	return productTable.listWhere(ctx, r.pool, "wish_list_id = $1", wishListID)
}

// ListByCategory returns the products that belong to a category.
func (r *ProductRepository) ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Product, error) {
	return productTable.listWhere(ctx, r.pool,
		"id IN (SELECT product_id FROM rel_category__product WHERE category_id = $1)", categoryID)
}
