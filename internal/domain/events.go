package domain

type EventItem struct {
	BookID   int64 `json:"book_id"`
	Quantity int32 `json:"quantity"`
}

type OrderCreatedEvent struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      int64       `json:"user_id"`
	TotalPrice  string      `json:"total_price"`
	Items       []EventItem `json:"items"`
}

type OrderCanceledEvent struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      int64       `json:"user_id"`
	Items       []EventItem `json:"items"`
}

type BookCreatedEvent struct {
	BookID int64  `json:"book_id"`
	Title  string `json:"title"`
	Price  string `json:"price"`
}
