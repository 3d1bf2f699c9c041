// Package retail implements the source repository over the retail (POS)
// PostgreSQL database. It exposes the read operations the sync core needs
// (counting, stable pagination, watermark-based change queries) plus the
// single writeback used by the reverse stock sync.
package retail

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/commercebridge/retail-middleware/pkg/catalog"
	"github.com/commercebridge/retail-middleware/pkg/retail/dao"
)

// Filters narrows which articles a sync run covers.
type Filters struct {
	Categories       []string `json:"categories,omitempty"`
	IncludeZeroStock bool     `json:"include_zero_stock,omitempty"`
	SKU              string   `json:"sku,omitempty"`
	SKUs             []string `json:"skus,omitempty"`
}

// ChangedRow is one hit from the watermark change query.
type ChangedRow struct {
	SKU       string
	ChangedAt time.Time
}

// StockLevel is one SKU's current retail stock quantity.
type StockLevel struct {
	SKU   string
	Stock int
}

// Store provides article operations against the retail database
type Store struct {
	db *bun.DB
}

// NewStore creates a new retail store over an open connection
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func applyFilters(q *bun.SelectQuery, f Filters) *bun.SelectQuery {
	if len(f.Categories) > 0 {
		q = q.Where("category IN (?)", bun.In(f.Categories))
	}
	if !f.IncludeZeroStock {
		q = q.Where("stock > 0")
	}
	if f.SKU != "" {
		q = q.Where("sku = ?", f.SKU)
	}
	if len(f.SKUs) > 0 {
		q = q.Where("sku IN (?)", bun.In(f.SKUs))
	}
	return q
}

// CountItems returns the number of articles matching the filters
func (s *Store) CountItems(ctx context.Context, f Filters) (int, error) {
	count, err := applyFilters(s.db.NewSelect().Model((*dao.ArticleDao)(nil)), f).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// ExtractPage returns one page of articles ordered by SKU. Stable ordering
// is what makes page offsets meaningful across checkpoint resumes.
func (s *Store) ExtractPage(ctx context.Context, offset, limit int, f Filters) ([]catalog.Item, error) {
	var rows []dao.ArticleDao
	err := applyFilters(s.db.NewSelect().Model(&rows), f).
		Order("sku ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract page at offset %d: %w", offset, err)
	}
	return toItems(rows), nil
}

// ExtractAll returns every article matching the filters, ordered by SKU.
// Used by targeted (non-paginated) runs over small filtered sets.
func (s *Store) ExtractAll(ctx context.Context, f Filters) ([]catalog.Item, error) {
	var rows []dao.ArticleDao
	err := applyFilters(s.db.NewSelect().Model(&rows), f).
		Order("sku ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract articles: %w", err)
	}
	return toItems(rows), nil
}

// QueryChangedSince returns at most limit articles touched after since,
// most recent first. The cap bounds cold-start fetches; callers loop when
// a full batch comes back.
func (s *Store) QueryChangedSince(ctx context.Context, since time.Time, limit int) ([]ChangedRow, error) {
	var rows []dao.ArticleDao
	err := s.db.NewSelect().
		Model(&rows).
		Column("sku", "updated_at").
		Where("updated_at > ?", since).
		Order("updated_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("query changed articles since %s: %w", since.Format(time.RFC3339), err)
	}

	changed := make([]ChangedRow, 0, len(rows))
	for _, r := range rows {
		changed = append(changed, ChangedRow{SKU: r.SKU, ChangedAt: r.UpdatedAt})
	}
	return changed, nil
}

// ResolveFullRecords loads the full attribute set for the given SKUs,
// dropping rows missing a price or description. Incomplete rows cannot be
// pushed to the storefront and are filtered before any network call.
func (s *Store) ResolveFullRecords(ctx context.Context, skus []string) ([]catalog.Item, error) {
	if len(skus) == 0 {
		return nil, nil
	}

	var rows []dao.ArticleDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("sku IN (?)", bun.In(skus)).
		Where("price IS NOT NULL AND price > 0").
		Where("description IS NOT NULL AND description <> ''").
		Order("sku ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve full records: %w", err)
	}
	return toItems(rows), nil
}

// ListStock returns one page of SKUs with their current retail stock,
// ordered. Used by the reverse stock sync to walk the catalog in bounded
// chunks and skip writebacks for quantities that already match.
func (s *Store) ListStock(ctx context.Context, offset, limit int) ([]StockLevel, error) {
	var rows []dao.ArticleDao
	err := s.db.NewSelect().
		Model(&rows).
		Column("sku", "stock").
		Order("sku ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stock at offset %d: %w", offset, err)
	}

	levels := make([]StockLevel, 0, len(rows))
	for _, r := range rows {
		levels = append(levels, StockLevel{SKU: r.SKU, Stock: r.Stock})
	}
	return levels, nil
}

// UpdateStock writes a storefront stock quantity back to the retail system
func (s *Store) UpdateStock(ctx context.Context, sku string, qty int) error {
	res, err := s.db.NewUpdate().
		Model((*dao.ArticleDao)(nil)).
		Set("stock = ?", qty).
		Set("updated_at = NOW()").
		Where("sku = ?", sku).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update stock for %s: %w", sku, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update stock for %s: no such article", sku)
	}
	return nil
}

func toItems(rows []dao.ArticleDao) []catalog.Item {
	items := make([]catalog.Item, 0, len(rows))
	for _, r := range rows {
		item := catalog.Item{
			SKU:        r.SKU,
			FamilyCode: r.FamilyCode.String,
			Title:      r.Name.String,
			Stock:      r.Stock,
			Barcode:    r.Barcode.String,
			UpdatedAt:  r.UpdatedAt,
		}
		if item.Title == "" {
			item.Title = r.Description.String
		}
		if r.Description.Valid {
			item.Description = r.Description.String
		}
		if r.Category.Valid {
			item.Category = r.Category.String
			item.Tags = append(item.Tags, r.Category.String)
		}
		if r.FamilyCode.Valid && r.FamilyCode.String != "" {
			item.Tags = append(item.Tags, "family:"+r.FamilyCode.String)
		}
		if r.Price.Valid {
			item.Price = r.Price.Decimal
		}
		if r.CompareAtPrice.Valid {
			item.CompareAtPrice = r.CompareAtPrice.Decimal
		}
		items = append(items, item)
	}
	return items
}
