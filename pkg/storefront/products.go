package storefront

import (
	"context"
	"fmt"
	"strings"
)

const existsBatchQuery = `
query variantsBySKU($query: String!, $first: Int!) {
  productVariants(first: $first, query: $query) {
    nodes {
      id
      sku
      inventoryQuantity
      inventoryItem { id }
      product { id title }
    }
  }
}`

const defaultLocationQuery = `
query defaultLocation {
  locations(first: 1, query: "active:true") {
    nodes { id }
  }
}`

const productCreateMutation = `
mutation productCreate($input: ProductInput!) {
  productCreate(input: $input) {
    product {
      id
      title
      variants(first: 1) {
        nodes { id sku inventoryItem { id } }
      }
    }
    userErrors { field message }
  }
}`

const productUpdateMutation = `
mutation productUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      id
      title
      variants(first: 1) {
        nodes { id sku inventoryItem { id } }
      }
    }
    userErrors { field message }
  }
}`

const inventorySetMutation = `
mutation inventorySet($input: InventorySetQuantitiesInput!) {
  inventorySetQuantities(input: $input) {
    userErrors { field message }
  }
}`

type variantNode struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	InventoryQuantity int    `json:"inventoryQuantity"`
	InventoryItem     struct {
		ID string `json:"id"`
	} `json:"inventoryItem"`
	Product struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"product"`
}

type productPayload struct {
	Product struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Variants struct {
			Nodes []variantNode `json:"nodes"`
		} `json:"variants"`
	} `json:"product"`
	UserErrors []userError `json:"userErrors"`
}

// ExistsBatch resolves existence for a whole page of SKUs in one call.
// The returned map contains an entry for every requested SKU; absent
// products map to nil.
func (c *Client) ExistsBatch(ctx context.Context, skus []string) (map[string]*Product, error) {
	result := make(map[string]*Product, len(skus))
	for _, sku := range skus {
		result[sku] = nil
	}
	if len(skus) == 0 {
		return result, nil
	}

	terms := make([]string, 0, len(skus))
	for _, sku := range skus {
		terms = append(terms, fmt.Sprintf("sku:%s", sku))
	}

	var data struct {
		ProductVariants struct {
			Nodes []variantNode `json:"nodes"`
		} `json:"productVariants"`
	}
	err := c.execute(ctx, "exists_batch", existsBatchQuery, map[string]any{
		"query": strings.Join(terms, " OR "),
		"first": len(skus),
	}, &data)
	if err != nil {
		return nil, err
	}

	for _, node := range data.ProductVariants.Nodes {
		if _, wanted := result[node.SKU]; !wanted {
			continue
		}
		result[node.SKU] = &Product{
			ID:              node.Product.ID,
			VariantID:       node.ID,
			InventoryItemID: node.InventoryItem.ID,
			SKU:             node.SKU,
			Title:           node.Product.Title,
			Quantity:        node.InventoryQuantity,
		}
	}
	return result, nil
}

// DefaultLocationID resolves the storefront's default inventory location
func (c *Client) DefaultLocationID(ctx context.Context) (string, error) {
	var data struct {
		Locations struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"locations"`
	}
	if err := c.execute(ctx, "default_location", defaultLocationQuery, nil, &data); err != nil {
		return "", err
	}
	if len(data.Locations.Nodes) == 0 {
		return "", &APIError{Operation: "default_location", Retryable: false,
			Messages: []string{"no active location configured"}}
	}
	return data.Locations.Nodes[0].ID, nil
}

// CreateProduct creates a product on the storefront
func (c *Client) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	var data struct {
		ProductCreate productPayload `json:"productCreate"`
	}
	if err := c.execute(ctx, "product_create", productCreateMutation,
		map[string]any{"input": input}, &data); err != nil {
		return nil, err
	}
	return payloadToProduct("product_create", data.ProductCreate)
}

// UpdateProduct overwrites an existing product. The write is
// deterministic: replaying it after a crash yields the same result.
func (c *Client) UpdateProduct(ctx context.Context, id string, input ProductInput) (*Product, error) {
	vars := map[string]any{
		"input": map[string]any{
			"id":              id,
			"title":           input.Title,
			"descriptionHtml": input.DescriptionHTML,
			"productType":     input.ProductType,
			"tags":            input.Tags,
		},
	}

	var data struct {
		ProductUpdate productPayload `json:"productUpdate"`
	}
	if err := c.execute(ctx, "product_update", productUpdateMutation, vars, &data); err != nil {
		return nil, err
	}
	return payloadToProduct("product_update", data.ProductUpdate)
}

// SetInventory sets the absolute available quantity of an inventory item
// at a location.
func (c *Client) SetInventory(ctx context.Context, inventoryItemID, locationID string, qty int) error {
	vars := map[string]any{
		"input": map[string]any{
			"reason": "correction",
			"name":   "available",
			"quantities": []map[string]any{{
				"inventoryItemId": inventoryItemID,
				"locationId":      locationID,
				"quantity":        qty,
			}},
		},
	}

	var data struct {
		InventorySetQuantities struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"inventorySetQuantities"`
	}
	if err := c.execute(ctx, "inventory_set", inventorySetMutation, vars, &data); err != nil {
		return err
	}
	if msgs := userErrorMessages(data.InventorySetQuantities.UserErrors); msgs != nil {
		return &APIError{Operation: "inventory_set", Retryable: false, Messages: msgs}
	}
	return nil
}

// InventoryBySKUs returns current storefront quantities for the given
// SKUs. SKUs unknown to the storefront are omitted from the result.
func (c *Client) InventoryBySKUs(ctx context.Context, skus []string) (map[string]int, error) {
	products, err := c.ExistsBatch(ctx, skus)
	if err != nil {
		return nil, err
	}
	quantities := make(map[string]int)
	for sku, p := range products {
		if p != nil {
			quantities[sku] = p.Quantity
		}
	}
	return quantities, nil
}

func payloadToProduct(operation string, payload productPayload) (*Product, error) {
	if msgs := userErrorMessages(payload.UserErrors); msgs != nil {
		return nil, &APIError{Operation: operation, Retryable: false, Messages: msgs}
	}

	product := &Product{
		ID:    payload.Product.ID,
		Title: payload.Product.Title,
	}
	if nodes := payload.Product.Variants.Nodes; len(nodes) > 0 {
		product.VariantID = nodes[0].ID
		product.InventoryItemID = nodes[0].InventoryItem.ID
		product.SKU = nodes[0].SKU
	}
	return product, nil
}
