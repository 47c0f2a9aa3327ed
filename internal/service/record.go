package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/notifier"
	"github.com/utafrali/shopindex/internal/repository"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
	"github.com/utafrali/shopindex/pkg/pagination"
	"github.com/utafrali/shopindex/pkg/validator"
)

// recordHooks adapts RecordService to one entity type.
type recordHooks[T domain.Entity] struct {
	// stamp sets the id and audit timestamps on v.
	stamp func(v *T, id uuid.UUID, createdAt, updatedAt time.Time)
	// createdAt reads the creation time of a stored record.
	createdAt func(v T) time.Time
	// references checks that every id v points at exists.
	references func(ctx context.Context, v *T) error
}

// RecordService is the write path of the record store. Every committed write
// is reported to the notifier so the index follows.
type RecordService[T domain.Entity] struct {
	repo     repository.Repository[T]
	notifier *notifier.Notifier
	hooks    recordHooks[T]
	name     string
	logger   *slog.Logger
	now      func() time.Time
}

// Get returns one record.
func (s *RecordService[T]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", s.name, id, err)
	}
	return v, nil
}

// List returns one id-ordered page of records.
func (s *RecordService[T]) List(ctx context.Context, params pagination.Params) (pagination.Result[T], error) {
	items, total, err := s.repo.List(ctx, params.Offset, params.Size)
	if err != nil {
		return pagination.Result[T]{}, fmt.Errorf("list %s: %w", s.name, err)
	}
	return pagination.NewResult(items, total, params), nil
}

// Create validates and stores v, assigning an id when none is given.
func (s *RecordService[T]) Create(ctx context.Context, v *T) (*T, error) {
	id := (*v).Ref().ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := s.now().UTC()
	s.hooks.stamp(v, id, now, now)

	if err := s.check(ctx, v); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create %s: %w", s.name, err)
	}

	s.notifier.Notify(ctx, domain.OpUpsert, *v)
	s.logger.InfoContext(ctx, "record created", slog.String("entity", (*v).Ref().String()))
	return v, nil
}

// Update replaces the record id with v. Parents of both the old and the new
// state are refreshed.
func (s *RecordService[T]) Update(ctx context.Context, id uuid.UUID, v *T) (*T, error) {
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", s.name, id, err)
	}
	s.hooks.stamp(v, id, s.hooks.createdAt(*before), s.now().UTC())

	if err := s.check(ctx, v); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", s.name, id, err)
	}

	s.notifier.Notify(ctx, domain.OpUpsert, *before, *v)
	s.logger.InfoContext(ctx, "record updated", slog.String("entity", (*v).Ref().String()))
	return v, nil
}

// Delete removes a record. Cascades are planned before the delete so the
// relations that point at it can still be resolved.
func (s *RecordService[T]) Delete(ctx context.Context, id uuid.UUID) error {
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", s.name, id, err)
	}
	events := s.notifier.Plan(ctx, domain.OpDelete, *before)

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", s.name, id, err)
	}

	s.notifier.Emit(ctx, events)
	s.logger.InfoContext(ctx, "record deleted", slog.String("entity", (*before).Ref().String()))
	return nil
}

func (s *RecordService[T]) check(ctx context.Context, v *T) error {
	if err := validator.Validate(v); err != nil {
		return err
	}
	if s.hooks.references != nil {
		return s.hooks.references(ctx, v)
	}
	return nil
}

// exists turns a missing referenced record into an input error.
func exists[T any](ctx context.Context, field string, id *uuid.UUID, get func(context.Context, uuid.UUID) (*T, error)) error {
	if id == nil {
		return nil
	}
	if _, err := get(ctx, *id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidInput(fmt.Sprintf("%s %s does not exist", field, id))
		}
		return fmt.Errorf("check %s: %w", field, err)
	}
	return nil
}

// Records bundles the record services of every entity type.
type Records struct {
	Customers  *RecordService[domain.Customer]
	Addresses  *RecordService[domain.Address]
	WishLists  *RecordService[domain.WishList]
	Products   *RecordService[domain.Product]
	Categories *RecordService[domain.Category]
}

// NewRecords wires a record service per entity type over store.
func NewRecords(store *repository.Store, n *notifier.Notifier, logger *slog.Logger) *Records {
	logger = logger.With(slog.String("component", "records"))

	return &Records{
		Customers: &RecordService[domain.Customer]{
			repo: store.Customers, notifier: n, name: "customer", logger: logger, now: time.Now,
			hooks: recordHooks[domain.Customer]{
				stamp: func(v *domain.Customer, id uuid.UUID, c, u time.Time) {
					v.ID, v.CreatedAt, v.UpdatedAt = id, c, u
				},
				createdAt: func(v domain.Customer) time.Time { return v.CreatedAt },
			},
		},
		Addresses: &RecordService[domain.Address]{
			repo: store.Addresses, notifier: n, name: "address", logger: logger, now: time.Now,
			hooks: recordHooks[domain.Address]{
				stamp: func(v *domain.Address, id uuid.UUID, c, u time.Time) {
					v.ID, v.CreatedAt, v.UpdatedAt = id, c, u
				},
				createdAt: func(v domain.Address) time.Time { return v.CreatedAt },
				references: func(ctx context.Context, v *domain.Address) error {
					return exists(ctx, "customer_id", v.CustomerID, store.Customers.GetByID)
				},
			},
		},
		WishLists: &RecordService[domain.WishList]{
			repo: store.WishLists, notifier: n, name: "wishlist", logger: logger, now: time.Now,
			hooks: recordHooks[domain.WishList]{
				stamp: func(v *domain.WishList, id uuid.UUID, c, u time.Time) {
					v.ID, v.CreatedAt, v.UpdatedAt = id, c, u
				},
				createdAt: func(v domain.WishList) time.Time { return v.CreatedAt },
				references: func(ctx context.Context, v *domain.WishList) error {
					return exists(ctx, "customer_id", v.CustomerID, store.Customers.GetByID)
				},
			},
		},
		Products: &RecordService[domain.Product]{
			repo: store.Products, notifier: n, name: "product", logger: logger, now: time.Now,
			hooks: recordHooks[domain.Product]{
				stamp: func(v *domain.Product, id uuid.UUID, c, u time.Time) {
					v.ID, v.CreatedAt, v.UpdatedAt = id, c, u
				},
				createdAt: func(v domain.Product) time.Time { return v.CreatedAt },
				references: func(ctx context.Context, v *domain.Product) error {
					return exists(ctx, "wish_list_id", v.WishListID, store.WishLists.GetByID)
				},
			},
		},
		Categories: &RecordService[domain.Category]{
			repo: store.Categories, notifier: n, name: "category", logger: logger, now: time.Now,
			hooks: recordHooks[domain.Category]{
				stamp: func(v *domain.Category, id uuid.UUID, c, u time.Time) {
					v.ID, v.CreatedAt, v.UpdatedAt = id, c, u
				},
				createdAt: func(v domain.Category) time.Time { return v.CreatedAt },
				references: func(ctx context.Context, v *domain.Category) error {
					if v.ParentID != nil && *v.ParentID == v.ID {
						return apperrors.InvalidInput("parent_id must not reference the category itself")
					}
					if err := exists(ctx, "parent_id", v.ParentID, store.Categories.GetByID); err != nil {
						return err
					}
					for _, pid := range v.ProductIDs {
						if err := exists(ctx, "product_ids", &pid, store.Products.GetByID); err != nil {
							return err
						}
					}
					return nil
				},
			},
		},
	}
}
