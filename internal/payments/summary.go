package payments

type Summary struct {
	Total              int64   `json:"total"`
	WithPercentage     int64   `json:"withPercentage"`
	AssignedPercentage float64 `json:"assignedPercentage"`
}
