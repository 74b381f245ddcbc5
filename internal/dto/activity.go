package dto

// ActivityQuery mirrors supported activity listing filters.
type ActivityQuery struct {
	Action   string
	UserID   string
	Page     int
	PageSize int
}
