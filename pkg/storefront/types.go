package storefront

// Product is the storefront-side view of a synced article, reduced to the
// fields the sync core needs for matching and inventory writes.
type Product struct {
	ID              string
	VariantID       string
	InventoryItemID string
	SKU             string
	Title           string
	Quantity        int
}

// VariantInput describes one variant of a product to create or update
type VariantInput struct {
	SKU            string `json:"sku"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compareAtPrice,omitempty"`
	Barcode        string `json:"barcode,omitempty"`
}

// ProductInput is the creation/update shape of a product
type ProductInput struct {
	Title           string         `json:"title"`
	DescriptionHTML string         `json:"descriptionHtml,omitempty"`
	ProductType     string         `json:"productType,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Variants        []VariantInput `json:"variants,omitempty"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

func userErrorMessages(errs []userError) []string {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	return messages
}
