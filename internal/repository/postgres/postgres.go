// Package postgres implements the record store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/shopindex/internal/repository"
	"github.com/utafrali/shopindex/pkg/database"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

// NewStore wires the PostgreSQL repositories into a record store.
func NewStore(db database.DBTX) *repository.Store {
	return &repository.Store{
		Customers:  NewCustomerRepository(db),
		Addresses:  NewAddressRepository(db),
		WishLists:  NewWishListRepository(db),
		Products:   NewProductRepository(db),
		Categories: NewCategoryRepository(db),
	}
}

// scanFunc reads one row into v. pgx.Rows and the result of QueryRow both satisfy pgx.Row.
type scanFunc[T any] func(row pgx.Row, v *T) error

// table describes the static parts of a record table.
type table[T any] struct {
	name     string
	resource string
	columns  string
	scan     scanFunc[T]
}

func (t table[T]) getByID(ctx context.Context, db database.DBTX, id uuid.UUID) (*T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, t.columns, t.name)

	ctx, end := database.TraceQuery(ctx, "Get."+t.name, query)
	var v T
	err := t.scan(db.QueryRow(ctx, query, id), &v)
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(t.resource, id.String())
		}
		return nil, fmt.Errorf("get %s: %w", t.resource, err)
	}
	return &v, nil
}

func (t table[T]) list(ctx context.Context, db database.DBTX, offset, limit int) ([]T, int, error) {
	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM `+t.name).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", t.resource, err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id LIMIT $1 OFFSET $2`, t.columns, t.name)
	items, err := queryAll(ctx, db, t.scan, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", t.resource, err)
	}
	return items, total, nil
}

func (t table[T]) listAfter(ctx context.Context, db database.DBTX, after uuid.UUID, limit int) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, t.columns, t.name)

	ctx, end := database.TraceQuery(ctx, "ListAfter."+t.name, query)
	items, err := queryAll(ctx, db, t.scan, query, after, limit)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("scan %s batch: %w", t.resource, err)
	}
	return items, nil
}

func (t table[T]) listWhere(ctx context.Context, db database.DBTX, where string, args ...any) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY id`, t.columns, t.name, where)
	items, err := queryAll(ctx, db, t.scan, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.resource, err)
	}
	return items, nil
}

func (t table[T]) delete(ctx context.Context, db database.DBTX, id uuid.UUID) error {
	ct, err := db.Exec(ctx, `DELETE FROM `+t.name+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.resource, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound(t.resource, id.String())
	}
	return nil
}

func queryAll[T any](ctx context.Context, db database.DBTX, scan scanFunc[T], query string, args ...any) ([]T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
