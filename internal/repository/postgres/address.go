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

var addressTable = table[domain.Address]{
	name:     "address",
	resource: "address",
	columns:  `id, address1, address2, city, postcode, country, customer_id, created_at, updated_at`,
	scan: func(row pgx.Row, a *domain.Address) error {
		return row.Scan(&a.ID, &a.Address1, &a.Address2, &a.City, &a.Postcode, &a.Country,
			&a.CustomerID, &a.CreatedAt, &a.UpdatedAt)
	},
}

// AddressRepository implements address persistence using PostgreSQL.
type AddressRepository struct {
	pool database.DBTX
}

// NewAddressRepository creates a new PostgreSQL-backed address repository.
func NewAddressRepository(pool database.DBTX) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// Create inserts a new address.
func (r *AddressRepository) Create(ctx context.Context, a *domain.Address) error {
	query := `
		INSERT INTO address (id, address1, address2, city, postcode, country, customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Address1, a.Address2, a.City, a.Postcode, a.Country, a.CustomerID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("address", "id", a.ID.String())
		}
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

// GetByID retrieves an address by id.
func (r *AddressRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	return addressTable.getByID(ctx, r.pool, id)
}

// Update replaces an existing address.
func (r *AddressRepository) Update(ctx context.Context, a *domain.Address) error {
	query := `
		UPDATE address
		SET address1 = $1, address2 = $2, city = $3, postcode = $4, country = $5,
		    customer_id = $6, updated_at = $7
		WHERE id = $8`

	ct, err := r.pool.Exec(ctx, query,
		a.Address1, a.Address2, a.City, a.Postcode, a.Country, a.CustomerID, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("address", a.ID.String())
	}
	return nil
}

// Delete removes an address.
func (r *AddressRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return addressTable.delete(ctx, r.pool, id)
}

// List returns one page of addresses ordered by id.
func (r *AddressRepository) List(ctx context.Context, offset, limit int) ([]domain.Address, int, error) {
	return addressTable.list(ctx, r.pool, offset, limit)
}

// ListAfter returns the next id-ordered batch after the given id.
func (r *AddressRepository) ListAfter(ctx context.Context, after uuid.UUID, limit int) ([]domain.Address, error) {
	return addressTable.listAfter(ctx, r.pool, after, limit)
}

// ListByCustomer returns the addresses owned by a customer.
func (r *AddressRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Address, error) {
	return addressTable.listWhere(ctx, r.pool, "customer_id = $1", customerID)
}
