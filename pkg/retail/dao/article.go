package dao

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ArticleDao is a data access object that maps directly to the 'articles'
// table in the retail (POS) PostgreSQL database. The table is owned by the
// retail system; syncd reads it and writes back stock quantities only.
type ArticleDao struct {
	bun.BaseModel  `bun:"table:articles"`
	ID             int64               `bun:"id,pk,autoincrement"`
	SKU            string              `bun:"sku"`
	FamilyCode     sql.NullString      `bun:"family_code"`
	Name           sql.NullString      `bun:"name"`
	Description    sql.NullString      `bun:"description"`
	Category       sql.NullString      `bun:"category"`
	Price          decimal.NullDecimal `bun:"price"`
	CompareAtPrice decimal.NullDecimal `bun:"compare_at_price"`
	Stock          int                 `bun:"stock"`
	Barcode        sql.NullString      `bun:"barcode"`
	UpdatedAt      time.Time           `bun:"updated_at"`
}
