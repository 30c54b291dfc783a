package repository

import "errors"

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrISBNExists        = errors.New("isbn already exists")
	ErrOrderNumberTaken  = errors.New("order number already taken")
)
