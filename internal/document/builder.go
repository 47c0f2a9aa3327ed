// Package document materializes index documents from the record store,
// embedding each record's direct relations one level deep.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/repository"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

// Builder reads records and their relations and renders index documents.
type Builder struct {
	store *repository.Store
	now   func() time.Time
}

// NewBuilder creates a builder over the given record store.
func NewBuilder(store *repository.Store) *Builder {
	return &Builder{store: store, now: time.Now}
}

// Build re-reads the record named by ref and renders its document. A record
// that no longer exists yields apperrors.ErrNotFound; any other read failure
// is wrapped in domain.ErrRecordRead.
func (b *Builder) Build(ctx context.Context, ref domain.EntityRef) (*domain.Document, error) {
	readAt := b.now()

	e, err := b.load(ctx, ref)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load %s: %w", domain.ErrRecordRead, ref, err)
	}
	return b.BuildFrom(ctx, e, readAt)
}

// BuildFrom renders the document for an already loaded record. readAt is the
// time the record was read and becomes the document version.
func (b *Builder) BuildFrom(ctx context.Context, e domain.Entity, readAt time.Time) (*domain.Document, error) {
	var (
		body any
		err  error
	)
	switch v := e.(type) {
	case domain.Address:
		body, err = b.address(ctx, v)
	case domain.Customer:
		body, err = b.customer(ctx, v)
	case domain.WishList:
		body, err = b.wishList(ctx, v)
	case domain.Product:
		body, err = b.product(ctx, v)
	case domain.Category:
		body, err = b.category(ctx, v)
	default:
		return nil, fmt.Errorf("build document: unsupported entity %T", e)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: relations of %s: %w", domain.ErrRecordRead, e.Ref(), err)
	}

	src, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s document: %w", e.Ref().Type, err)
	}

	ref := e.Ref()
	return &domain.Document{Type: ref.Type, ID: ref.ID, Version: readAt.UnixNano(), Source: src}, nil
}

func (b *Builder) load(ctx context.Context, ref domain.EntityRef) (domain.Entity, error) {
	switch ref.Type {
	case domain.TypeAddress:
		return deref(b.store.Addresses.GetByID(ctx, ref.ID))
	case domain.TypeCustomer:
		return deref(b.store.Customers.GetByID(ctx, ref.ID))
	case domain.TypeWishList:
		return deref(b.store.WishLists.GetByID(ctx, ref.ID))
	case domain.TypeProduct:
		return deref(b.store.Products.GetByID(ctx, ref.ID))
	case domain.TypeCategory:
		return deref(b.store.Categories.GetByID(ctx, ref.ID))
	}
	return nil, fmt.Errorf("unknown entity type %q", ref.Type)
}

func deref[T domain.Entity](v *T, err error) (domain.Entity, error) {
	if err != nil {
		return nil, err
	}
	return *v, nil
}

// optional fetches a many-to-one relation. A dangling reference embeds nothing.
func optional[T any](ctx context.Context, id *uuid.UUID, get func(context.Context, uuid.UUID) (*T, error)) (*T, error) {
	if id == nil {
		return nil, nil
	}
	v, err := get(ctx, *id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func summaries[T any, S any](items []T, fn func(T) S) []S {
	out := make([]S, len(items))
	for i, v := range items {
		out[i] = fn(v)
	}
	return out
}

func (b *Builder) address(ctx context.Context, a domain.Address) (*domain.AddressDocument, error) {
	doc := &domain.AddressDocument{AddressSummary: a.Summary()}
	c, err := optional(ctx, a.CustomerID, b.store.Customers.GetByID)
	if err != nil {
		return nil, err
	}
	if c != nil {
		s := c.Summary()
		doc.Customer = &s
	}
	return doc, nil
}

func (b *Builder) customer(ctx context.Context, c domain.Customer) (*domain.CustomerDocument, error) {
	addrs, err := b.store.Addresses.ListByCustomer(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	lists, err := b.store.WishLists.ListByCustomer(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &domain.CustomerDocument{
		CustomerSummary: c.Summary(),
		Addresses:       summaries(addrs, domain.Address.Summary),
		WishLists:       summaries(lists, domain.WishList.Summary),
	}, nil
}

func (b *Builder) wishList(ctx context.Context, w domain.WishList) (*domain.WishListDocument, error) {
	doc := &domain.WishListDocument{WishListSummary: w.Summary()}
	c, err := optional(ctx, w.CustomerID, b.store.Customers.GetByID)
	if err != nil {
		return nil, err
	}
	if c != nil {
		s := c.Summary()
		doc.Customer = &s
	}
	products, err := b.store.Products.ListByWishList(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	doc.Products = summaries(products, domain.Product.Summary)
	return doc, nil
}

func (b *Builder) product(ctx context.Context, p domain.Product) (*domain.ProductDocument, error) {
	doc := &domain.ProductDocument{ProductSummary: p.Summary()}
	w, err := optional(ctx, p.WishListID, b.store.WishLists.GetByID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		s := w.Summary()
		doc.WishList = &s
	}
	cats, err := b.store.Categories.ListByProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	doc.Categories = summaries(cats, domain.Category.Summary)
	return doc, nil
}

func (b *Builder) category(ctx context.Context, c domain.Category) (*domain.CategoryDocument, error) {
	doc := &domain.CategoryDocument{CategorySummary: c.Summary()}
	parent, err := optional(ctx, c.ParentID, b.store.Categories.GetByID)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		s := parent.Summary()
		doc.Parent = &s
	}
	products, err := b.store.Products.ListByCategory(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	doc.Products = summaries(products, domain.Product.Summary)
	return doc, nil
}
