package service

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Attempts before giving up on finding a free order number. Collisions are
// rare enough (10k values per day) that hitting the cap means something else
// is wrong.
const orderNumberAttempts = 5

// NewOrderNumber builds the human-readable order identifier, e.g.
// "20260831-0042". It is a display number: uniqueness is owned by the
// constraint on orders.order_number and callers retry on collision.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s-%04d", now.Format("20060102"), rand.IntN(10000))
}
