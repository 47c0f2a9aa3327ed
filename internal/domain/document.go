package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is a built index document ready to be written to the index store.
// Version is the time the source record was read; the index store refuses to
// replace a document with an older version.
type Document struct {
	Type    EntityType      `json:"type"`
	ID      uuid.UUID       `json:"id"`
	Version int64           `json:"version"`
	Source  json.RawMessage `json:"source"`
}

func (d Document) Ref() EntityRef { return EntityRef{Type: d.Type, ID: d.ID} }

// Summaries are the shallow copies embedded one level deep in other documents.

type CustomerSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Telephone string    `json:"telephone,omitempty"`
}

type AddressSummary struct {
	ID       uuid.UUID `json:"id"`
	Address1 string    `json:"address1,omitempty"`
	Address2 string    `json:"address2,omitempty"`
	City     string    `json:"city,omitempty"`
	Postcode string    `json:"postcode"`
	Country  string    `json:"country"`
}

type WishListSummary struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Restricted bool      `json:"restricted"`
}

type ProductSummary struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Keywords     string     `json:"keywords,omitempty"`
	Description  string     `json:"description,omitempty"`
	Rating       *int       `json:"rating,omitempty"`
	DateAdded    *time.Time `json:"date_added,omitempty"`
	DateModified *time.Time `json:"date_modified,omitempty"`
}

type CategorySummary struct {
	ID           uuid.UUID      `json:"id"`
	Description  string         `json:"description,omitempty"`
	SortOrder    *int           `json:"sort_order,omitempty"`
	Status       CategoryStatus `json:"status,omitempty"`
	DateAdded    *time.Time     `json:"date_added,omitempty"`
	DateModified *time.Time     `json:"date_modified,omitempty"`
}

func (c Customer) Summary() CustomerSummary {
	return CustomerSummary{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName, Email: c.Email, Telephone: c.Telephone}
}

func (a Address) Summary() AddressSummary {
	return AddressSummary{ID: a.ID, Address1: a.Address1, Address2: a.Address2, City: a.City, Postcode: a.Postcode, Country: a.Country}
}

func (w WishList) Summary() WishListSummary {
	return WishListSummary{ID: w.ID, Title: w.Title, Restricted: w.Restricted}
}

func (p Product) Summary() ProductSummary {
	return ProductSummary{
		ID: p.ID, Title: p.Title, Keywords: p.Keywords, Description: p.Description,
		Rating: p.Rating, DateAdded: p.DateAdded, DateModified: p.DateModified,
	}
}

func (c Category) Summary() CategorySummary {
	return CategorySummary{
		ID: c.ID, Description: c.Description, SortOrder: c.SortOrder, Status: c.Status,
		DateAdded: c.DateAdded, DateModified: c.DateModified,
	}
}

// AddressDocument embeds the owning customer.
type AddressDocument struct {
	AddressSummary
	Customer *CustomerSummary `json:"customer,omitempty"`
}

// CustomerDocument embeds the customer's addresses and wish lists.
type CustomerDocument struct {
	CustomerSummary
	Addresses []AddressSummary  `json:"addresses"`
	WishLists []WishListSummary `json:"wish_lists"`
}

// WishListDocument embeds the owner and the listed products.
type WishListDocument struct {
	WishListSummary
	Customer *CustomerSummary `json:"customer,omitempty"`
	Products []ProductSummary `json:"products"`
}

// ProductDocument embeds the wish list and the categories containing the product.
type ProductDocument struct {
	ProductSummary
	WishList   *WishListSummary  `json:"wish_list,omitempty"`
	Categories []CategorySummary `json:"categories"`
}

// CategoryDocument embeds the parent category and member products.
type CategoryDocument struct {
	CategorySummary
	Parent   *CategorySummary `json:"parent,omitempty"`
	Products []ProductSummary `json:"products"`
}
