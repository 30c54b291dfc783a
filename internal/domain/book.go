package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Book struct {
	ID            int64               `db:"id"`
	Title         string              `db:"title"`
	Author        string              `db:"author"`
	ISBN          *string             `db:"isbn"`
	Description   string              `db:"description"`
	Category      string              `db:"category"`
	Price         decimal.Decimal     `db:"price"`
	DiscountRate  *float64            `db:"discount_rate"`
	DiscountPrice decimal.NullDecimal `db:"discount_price"`
	StockQuantity int64               `db:"stock_quantity"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
	DeletedAt     *time.Time          `db:"deleted_at" json:"-"`
}

// SalePrice resolves the unit price recorded on an order item at purchase
// time: the discount price when one is set, the list price otherwise.
func (b *Book) SalePrice() decimal.Decimal {
	if b.DiscountPrice.Valid {
		return b.DiscountPrice.Decimal
	}
	return b.Price
}

type UpdateBookInput struct {
	Title         *string          `json:"title"`
	Author        *string          `json:"author"`
	Description   *string          `json:"description"`
	Category      *string          `json:"category"`
	Price         *decimal.Decimal `json:"price"`
	DiscountRate  *float64         `json:"discount_rate"`
	StockQuantity *int64           `json:"stock_quantity"`
}

type BookQuery struct {
	Limit    int64
	Offset   int64
	Keyword  string
	Category string
	SortBy   string
	SortDir  string
}
