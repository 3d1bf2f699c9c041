package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/commercebridge/retail-middleware/internal/metrics"
	"github.com/commercebridge/retail-middleware/pkg/catalog"
	"github.com/commercebridge/retail-middleware/pkg/storefront"
)

// BatchProcessor applies one batch of normalized records against the
// storefront, deciding create/update/skip per record. Per-record failures
// are counted, never raised: one bad record must not abort a multi-hour
// run.
type BatchProcessor struct {
	target     TargetClient
	locationID string
	logger     *zap.Logger

	// createZeroStock controls whether absent records with no stock are
	// created or skipped.
	createZeroStock bool
}

// NewBatchProcessor creates a processor writing inventory to locationID
func NewBatchProcessor(target TargetClient, locationID string, createZeroStock bool, logger *zap.Logger) *BatchProcessor {
	return &BatchProcessor{
		target:          target,
		locationID:      locationID,
		createZeroStock: createZeroStock,
		logger:          logger,
	}
}

// ProcessBatch processes records against the existing-product lookup the
// orchestrator resolved for the whole page. Re-processing a record is
// safe: an existing record is skipped (or deterministically overwritten
// with forceUpdate), so replays after a crash are harmless.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, records []catalog.Item, existing map[string]*storefront.Product, forceUpdate bool) catalog.Stats {
	var stats catalog.Stats

	for _, record := range records {
		stats.TotalProcessed++

		if record.SKU == "" {
			stats.Errors++
			metrics.RecordsProcessed.WithLabelValues("error").Inc()
			p.logger.Warn("Record missing natural key, skipping",
				zap.String("title", record.Title))
			continue
		}

		if product := existing[record.SKU]; product != nil {
			if !forceUpdate {
				stats.Skipped++
				metrics.RecordsProcessed.WithLabelValues("skipped").Inc()
				continue
			}
			p.updateRecord(ctx, record, product, &stats)
			continue
		}

		if !record.HasStock() && !p.createZeroStock {
			stats.Skipped++
			metrics.RecordsProcessed.WithLabelValues("skipped").Inc()
			continue
		}
		p.createRecord(ctx, record, &stats)
	}

	return stats
}

func (p *BatchProcessor) updateRecord(ctx context.Context, record catalog.Item, product *storefront.Product, stats *catalog.Stats) {
	updated, err := p.target.UpdateProduct(ctx, product.ID, toProductInput(record))
	if err != nil {
		stats.Errors++
		metrics.RecordsProcessed.WithLabelValues("error").Inc()
		p.logRecordError("update", record.SKU, err)
		return
	}
	stats.Updated++
	metrics.RecordsProcessed.WithLabelValues("updated").Inc()

	inventoryItemID := updated.InventoryItemID
	if inventoryItemID == "" {
		inventoryItemID = product.InventoryItemID
	}
	p.setInventory(ctx, record, inventoryItemID, stats)
}

func (p *BatchProcessor) createRecord(ctx context.Context, record catalog.Item, stats *catalog.Stats) {
	created, err := p.target.CreateProduct(ctx, toProductInput(record))
	if err != nil {
		stats.Errors++
		metrics.RecordsProcessed.WithLabelValues("error").Inc()
		p.logRecordError("create", record.SKU, err)
		return
	}
	stats.Created++
	metrics.RecordsProcessed.WithLabelValues("created").Inc()

	p.setInventory(ctx, record, created.InventoryItemID, stats)
}

func (p *BatchProcessor) setInventory(ctx context.Context, record catalog.Item, inventoryItemID string, stats *catalog.Stats) {
	if inventoryItemID == "" || p.locationID == "" {
		stats.InventoryFailed++
		return
	}
	if err := p.target.SetInventory(ctx, inventoryItemID, p.locationID, record.Stock); err != nil {
		stats.InventoryFailed++
		p.logRecordError("inventory", record.SKU, err)
		return
	}
	stats.InventoryUpdated++
}

func (p *BatchProcessor) logRecordError(operation, sku string, err error) {
	if storefront.IsBusinessRejection(err) {
		p.logger.Warn("Storefront rejected record",
			zap.String("operation", operation),
			zap.String("sku", sku),
			zap.Error(err))
		return
	}
	p.logger.Error("Record processing failed",
		zap.String("operation", operation),
		zap.String("sku", sku),
		zap.Error(err))
}

func toProductInput(item catalog.Item) storefront.ProductInput {
	variant := storefront.VariantInput{
		SKU:     item.SKU,
		Price:   item.Price.String(),
		Barcode: item.Barcode,
	}
	if item.CompareAtPrice.IsPositive() {
		variant.CompareAtPrice = item.CompareAtPrice.String()
	}

	return storefront.ProductInput{
		Title:           item.Title,
		DescriptionHTML: item.Description,
		ProductType:     item.Category,
		Tags:            item.Tags,
		Variants:        []storefront.VariantInput{variant},
	}
}
