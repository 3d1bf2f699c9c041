package sync

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/commercebridge/retail-middleware/pkg/catalog"
	"github.com/commercebridge/retail-middleware/pkg/retail"
	"github.com/commercebridge/retail-middleware/pkg/storefront"
)

// MockSource implements SourceRepository for testing
type MockSource struct {
	CountItemsFunc  func(ctx context.Context, f retail.Filters) (int, error)
	ExtractPageFunc func(ctx context.Context, offset, limit int, f retail.Filters) ([]catalog.Item, error)
	ExtractAllFunc  func(ctx context.Context, f retail.Filters) ([]catalog.Item, error)
}

func (m *MockSource) CountItems(ctx context.Context, f retail.Filters) (int, error) {
	return m.CountItemsFunc(ctx, f)
}

func (m *MockSource) ExtractPage(ctx context.Context, offset, limit int, f retail.Filters) ([]catalog.Item, error) {
	return m.ExtractPageFunc(ctx, offset, limit, f)
}

func (m *MockSource) ExtractAll(ctx context.Context, f retail.Filters) ([]catalog.Item, error) {
	return m.ExtractAllFunc(ctx, f)
}

// MockTarget implements TargetClient for testing
type MockTarget struct {
	DefaultLocationIDFunc func(ctx context.Context) (string, error)
	ExistsBatchFunc       func(ctx context.Context, skus []string) (map[string]*storefront.Product, error)
	CreateProductFunc     func(ctx context.Context, input storefront.ProductInput) (*storefront.Product, error)
	UpdateProductFunc     func(ctx context.Context, id string, input storefront.ProductInput) (*storefront.Product, error)
	SetInventoryFunc      func(ctx context.Context, inventoryItemID, locationID string, qty int) error
}

func (m *MockTarget) DefaultLocationID(ctx context.Context) (string, error) {
	if m.DefaultLocationIDFunc != nil {
		return m.DefaultLocationIDFunc(ctx)
	}
	return "loc-1", nil
}

func (m *MockTarget) ExistsBatch(ctx context.Context, skus []string) (map[string]*storefront.Product, error) {
	if m.ExistsBatchFunc != nil {
		return m.ExistsBatchFunc(ctx, skus)
	}
	return map[string]*storefront.Product{}, nil
}

func (m *MockTarget) CreateProduct(ctx context.Context, input storefront.ProductInput) (*storefront.Product, error) {
	if m.CreateProductFunc != nil {
		return m.CreateProductFunc(ctx, input)
	}
	sku := input.Variants[0].SKU
	return &storefront.Product{
		ID:              "prod-" + sku,
		VariantID:       "var-" + sku,
		InventoryItemID: "inv-" + sku,
		SKU:             sku,
	}, nil
}

func (m *MockTarget) UpdateProduct(ctx context.Context, id string, input storefront.ProductInput) (*storefront.Product, error) {
	if m.UpdateProductFunc != nil {
		return m.UpdateProductFunc(ctx, id, input)
	}
	sku := input.Variants[0].SKU
	return &storefront.Product{
		ID:              id,
		InventoryItemID: "inv-" + sku,
		SKU:             sku,
	}, nil
}

func (m *MockTarget) SetInventory(ctx context.Context, inventoryItemID, locationID string, qty int) error {
	if m.SetInventoryFunc != nil {
		return m.SetInventoryFunc(ctx, inventoryItemID, locationID, qty)
	}
	return nil
}

// testItem builds a syncable record with stock
func testItem(sku string) catalog.Item {
	return catalog.Item{
		SKU:         sku,
		Title:       "Item " + sku,
		Description: "Description for " + sku,
		Price:       decimal.NewFromInt(10),
		Stock:       5,
	}
}

// pagedSource serves a synthetic catalog of total records, SKU-0001 and up,
// with stable SKU ordering like the real repository.
func pagedSource(total int, extracted *[]int) *MockSource {
	return &MockSource{
		CountItemsFunc: func(_ context.Context, _ retail.Filters) (int, error) {
			return total, nil
		},
		ExtractPageFunc: func(_ context.Context, offset, limit int, _ retail.Filters) ([]catalog.Item, error) {
			if extracted != nil {
				*extracted = append(*extracted, offset)
			}
			n := total - offset
			if n <= 0 {
				return nil, nil
			}
			if n > limit {
				n = limit
			}
			items := make([]catalog.Item, n)
			for i := range items {
				items[i] = testItem(fmt.Sprintf("SKU-%04d", offset+i+1))
			}
			return items, nil
		},
	}
}
