package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Order struct {
	ID              int64           `db:"id"`
	UserID          int64           `db:"user_id"`
	OrderNumber     string          `db:"order_number"`
	Status          OrderStatus     `db:"status"`
	TotalPrice      decimal.Decimal `db:"total_price"`
	ShippingAddress string          `db:"shipping_address"`
	PaymentMethod   *string         `db:"payment_method"`
	Items           []OrderItem     `db:"items"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type OrderItem struct {
	ID        int64           `db:"id"`
	OrderID   int64           `db:"order_id"`
	BookID    int64           `db:"book_id"`
	BookTitle string          `db:"book_title"`
	Quantity  int32           `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
	Subtotal  decimal.Decimal `db:"subtotal"`
}

func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	o.TotalPrice = total
}
