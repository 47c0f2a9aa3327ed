package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType names an indexable record type. It doubles as the default
// index name for documents of that type.
type EntityType string

const (
	TypeAddress  EntityType = "address"
	TypeCustomer EntityType = "customer"
	TypeProduct  EntityType = "product"
	TypeCategory EntityType = "category"
	TypeWishList EntityType = "wishlist"
)

// AllTypes lists every indexable type in the order a full reindex visits them.
var AllTypes = []EntityType{TypeAddress, TypeCustomer, TypeProduct, TypeCategory, TypeWishList}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case TypeAddress, TypeCustomer, TypeProduct, TypeCategory, TypeWishList:
		return true
	}
	return false
}

// ParseEntityType accepts the type name as well as the REST resource spelling
// ("addresses", "wish-lists").
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "address", "addresses":
		return TypeAddress, nil
	case "customer", "customers":
		return TypeCustomer, nil
	case "product", "products":
		return TypeProduct, nil
	case "category", "categories":
		return TypeCategory, nil
	case "wishlist", "wishlists", "wish-list", "wish-lists":
		return TypeWishList, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// ParseEntityTypes parses a list of type names, dropping duplicates.
func ParseEntityTypes(names []string) ([]EntityType, error) {
	seen := make(map[EntityType]bool, len(names))
	out := make([]EntityType, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		t, err := ParseEntityType(n)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// EntityRef identifies a single record.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   uuid.UUID  `json:"id"`
}

func (r EntityRef) String() string {
	return string(r.Type) + ":" + r.ID.String()
}

// Entity is implemented by every record type held in the record store.
type Entity interface {
	Ref() EntityRef
}

// CategoryStatus is the lifecycle state of a category.
type CategoryStatus string

const (
	CategoryAvailable  CategoryStatus = "AVAILABLE"
	CategoryRestricted CategoryStatus = "RESTRICTED"
	CategoryDisabled   CategoryStatus = "DISABLED"
)

// Customer is a shop customer.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name" validate:"max=100"`
	LastName  string    `json:"last_name" validate:"max=100"`
	Email     string    `json:"email" validate:"omitempty,email,max=254"`
	Telephone string    `json:"telephone" validate:"max=32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Customer) Ref() EntityRef { return EntityRef{Type: TypeCustomer, ID: c.ID} }

// Address is a postal address, optionally owned by a customer.
type Address struct {
	ID         uuid.UUID  `json:"id"`
	Address1   string     `json:"address1" validate:"max=255"`
	Address2   string     `json:"address2" validate:"max=255"`
	City       string     `json:"city" validate:"max=100"`
	Postcode   string     `json:"postcode" validate:"required,max=10"`
	Country    string     `json:"country" validate:"required,len=2"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (a Address) Ref() EntityRef { return EntityRef{Type: TypeAddress, ID: a.ID} }

// WishList groups products a customer is interested in.
type WishList struct {
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title" validate:"required,max=255"`
	Restricted bool       `json:"restricted"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (w WishList) Ref() EntityRef { return EntityRef{Type: TypeWishList, ID: w.ID} }

// Product is a catalog item. It may sit on one wish list and in many categories;
// category membership is owned by Category.
type Product struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title" validate:"required,max=255"`
	Keywords     string     `json:"keywords" validate:"max=255"`
	Description  string     `json:"description" validate:"max=2000"`
	Rating       *int       `json:"rating,omitempty" validate:"omitempty,min=0,max=5"`
	DateAdded    *time.Time `json:"date_added,omitempty"`
	DateModified *time.Time `json:"date_modified,omitempty"`
	WishListID   *uuid.UUID `json:"wish_list_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p Product) Ref() EntityRef { return EntityRef{Type: TypeProduct, ID: p.ID} }

// Category is a node in the category tree. ProductIDs is the owning side of
// the category/product relation.
type Category struct {
	ID           uuid.UUID      `json:"id"`
	Description  string         `json:"description" validate:"max=255"`
	SortOrder    *int           `json:"sort_order,omitempty"`
	DateAdded    *time.Time     `json:"date_added,omitempty"`
	DateModified *time.Time     `json:"date_modified,omitempty"`
	Status       CategoryStatus `json:"status" validate:"omitempty,oneof=AVAILABLE RESTRICTED DISABLED"`
	ParentID     *uuid.UUID     `json:"parent_id,omitempty"`
	ProductIDs   []uuid.UUID    `json:"product_ids,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (c Category) Ref() EntityRef { return EntityRef{Type: TypeCategory, ID: c.ID} }
