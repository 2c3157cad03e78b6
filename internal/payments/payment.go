package payments

// Payment is one payment method as served by the payments resource.
// Percentage is nil when no allocation has been made.
type Payment struct {
	ID         string   `json:"id"`
	Percentage *float64 `json:"percentage"`
}
