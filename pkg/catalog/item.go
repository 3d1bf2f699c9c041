// Package catalog holds the normalized domain types shared by the sync
// components: the in-memory representation of one retail record and the
// running statistics of a synchronization run.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is the normalized representation of one retail article, translated
// into the shape the storefront expects. Items are transient: they live for
// the duration of one batch and are never persisted.
type Item struct {
	SKU            string          `json:"sku"`
	FamilyCode     string          `json:"family_code,omitempty"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category,omitempty"`
	Price          decimal.Decimal `json:"price"`
	CompareAtPrice decimal.Decimal `json:"compare_at_price,omitempty"`
	Stock          int             `json:"stock"`
	Barcode        string          `json:"barcode,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HasStock reports whether the item carries any positive stock.
func (i Item) HasStock() bool {
	return i.Stock > 0
}

// Complete reports whether the item carries the minimum fields required to
// be pushed to the storefront. Incomplete rows are filtered out before any
// network call is made.
func (i Item) Complete() bool {
	return i.SKU != "" && i.Description != "" && i.Price.IsPositive()
}

// GroupKey returns the key used to sync whole logical products: the family
// code when present, otherwise the item's own SKU.
func (i Item) GroupKey() string {
	if i.FamilyCode != "" {
		return i.FamilyCode
	}
	return i.SKU
}
