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

var categoryTable = table[domain.Category]{
	name:     "category",
	resource: "category",
	columns:  `id, description, sort_order, date_added, date_modified, status, parent_id, created_at, updated_at`,
	scan: func(row pgx.Row, c *domain.Category) error {
		return row.Scan(&c.ID, &c.Description, &c.SortOrder, &c.DateAdded, &c.DateModified,
			&c.Status, &c.ParentID, &c.CreatedAt, &c.UpdatedAt)
	},
}

// CategoryRepository implements category persistence using PostgreSQL. The
// category side owns rel_category__product.
type CategoryRepository struct {
	pool database.DBTX
}

// NewCategoryRepository creates a new PostgreSQL-backed category repository.
func NewCategoryRepository(pool database.DBTX) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// Create inserts a new category and its product memberships in one transaction.
func (r *CategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO category (id, description, sort_order, date_added, date_modified, status,
			parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, query,
		c.ID, c.Description, c.SortOrder, c.DateAdded, c.DateModified, c.Status,
		c.ParentID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("category", "id", c.ID.String())
		}
		return fmt.Errorf("insert category: %w", err)
	}

	if err := insertMemberships(ctx, tx, c.ID, c.ProductIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a category with its product ids.
func (r *CategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	c, err := categoryTable.getByID(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	cats := []domain.Category{*c}
	if err := r.loadMemberships(ctx, cats); err != nil {
		return nil, err
	}
	return &cats[0], nil
}

// Update replaces an existing category and rewrites its product memberships.
func (r *CategoryRepository) Update(ctx context.Context, c *domain.Category) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE category
		SET description = $1, sort_order = $2, date_added = $3, date_modified = $4, status = $5,
		    parent_id = $6, updated_at = $7
		WHERE id = $8`

	ct, err := tx.Exec(ctx, query,
		c.Description, c.SortOrder, c.DateAdded, c.DateModified, c.Status, c.ParentID, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("category", c.ID.String())
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rel_category__product WHERE category_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear category products: %w", err)
	}
	if err := insertMemberships(ctx, tx, c.ID, c.ProductIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete removes a category. Children become roots and memberships cascade.
func (r *CategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return categoryTable.delete(ctx, r.pool, id)
}

// List returns one page of categories ordered by id.
func (r *CategoryRepository) List(ctx context.Context, offset, limit int) ([]domain.Category, int, error) {
	cats, total, err := categoryTable.list(ctx, r.pool, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	if err := r.loadMemberships(ctx, cats); err != nil {
		return nil, 0, err
	}
	return cats, total, nil
}

// ListAfter returns the next id-ordered batch after the given id.
func (r *CategoryRepository) ListAfter(ctx context.Context, after uuid.UUID, limit int) ([]domain.Category, error) {
	cats, err := categoryTable.listAfter(ctx, r.pool, after, limit)
	if err != nil {
		return nil, err
	}
	if err := r.loadMemberships(ctx, cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// ListByProduct returns the categories containing a product.
func (r *CategoryRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]domain.Category, error) {
	return categoryTable.listWhere(ctx, r.pool,
		"id IN (SELECT category_id FROM rel_category__product WHERE product_id = $1)", productID)
}

// ListChildren returns the direct children of a category.
func (r *CategoryRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Category, error) {
	return categoryTable.listWhere(ctx, r.pool, "parent_id = $1", parentID)
}

// loadMemberships fills ProductIDs for the given categories with one query.
func (r *CategoryRepository) loadMemberships(ctx context.Context, cats []domain.Category) error {
	if len(cats) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(cats))
	pos := make(map[uuid.UUID]int, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
		pos[c.ID] = i
	}

	rows, err := r.pool.Query(ctx,
		`SELECT category_id, product_id FROM rel_category__product
		 WHERE category_id = ANY($1) ORDER BY category_id, product_id`, ids)
	if err != nil {
		return fmt.Errorf("load category products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var categoryID, productID uuid.UUID
		if err := rows.Scan(&categoryID, &productID); err != nil {
			return fmt.Errorf("scan category product: %w", err)
		}
		if i, ok := pos[categoryID]; ok {
			cats[i].ProductIDs = append(cats[i].ProductIDs, productID)
		}
	}
	return rows.Err()
}

func insertMemberships(ctx context.Context, tx pgx.Tx, categoryID uuid.UUID, productIDs []uuid.UUID) error {
	for _, pid := range productIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO rel_category__product (category_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			categoryID, pid)
		if err != nil {
			return fmt.Errorf("insert category product: %w", err)
		}
	}
	return nil
}
