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

var customerTable = table[domain.Customer]{
	name:     "customer",
	resource: "customer",
	columns:  `id, first_name, last_name, email, telephone, created_at, updated_at`,
	scan: func(row pgx.Row, c *domain.Customer) error {
		return row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Telephone, &c.CreatedAt, &c.UpdatedAt)
	},
}

// CustomerRepository implements customer persistence using PostgreSQL.
type CustomerRepository struct {
	pool database.DBTX
}

// NewCustomerRepository creates a new PostgreSQL-backed customer repository.
func NewCustomerRepository(pool database.DBTX) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Create inserts a new customer.
func (r *CustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	query := `
		INSERT INTO customer (id, first_name, last_name, email, telephone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query, c.ID, c.FirstName, c.LastName, c.Email, c.Telephone, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("customer", "id", c.ID.String())
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// GetByID retrieves a customer by id.
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return customerTable.getByID(ctx, r.pool, id)
}

// Update replaces an existing customer.
func (r *CustomerRepository) Update(ctx context.Context, c *domain.Customer) error {
	query := `
		UPDATE customer
		SET first_name = $1, last_name = $2, email = $3, telephone = $4, updated_at = $5
		WHERE id = $6`

	ct, err := r.pool.Exec(ctx, query, c.FirstName, c.LastName, c.Email, c.Telephone, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("customer", c.ID.String())
	}
	return nil
}

// Delete removes a customer. Addresses and wish lists are detached by the schema.
func (r *CustomerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return customerTable.delete(ctx, r.pool, id)
}

// List returns one page of customers ordered by id.
func (r *CustomerRepository) List(ctx context.Context, offset, limit int) ([]domain.Customer, int, error) {
	return customerTable.list(ctx, r.pool, offset, limit)
}

// ListAfter returns the next id-ordered batch after the given id.
func (r *CustomerRepository) ListAfter(ctx context.Context, after uuid.UUID, limit int) ([]domain.Customer, error) {
	return customerTable.listAfter(ctx, r.pool, after, limit)
}
