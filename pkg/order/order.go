package order

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Order struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ProductName string    `json:"productName"`
	Description string    `json:"description"`
	TotalAmount float64   `json:"totalAmount"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Page is the serialized shape of one cached listing page. A page is always
// produced whole and stored under a single key.
type Page struct {
	Data  []Order `json:"data"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

type Stats struct {
	TotalOrders     int64   `json:"totalOrders"`
	TotalRevenue    float64 `json:"totalRevenue"`
	PendingOrders   int64   `json:"pendingOrders"`
	CompletedOrders int64   `json:"completedOrders"`
	CancelledOrders int64   `json:"cancelledOrders"`
	AvgOrderValue   float64 `json:"avgOrderValue"`
}

// CreateInput is the caller-supplied shape of one order.
type CreateInput struct {
	UserID      string   `json:"userId"`
	ProductName string   `json:"productName"`
	Description string   `json:"description"`
	TotalAmount *float64 `json:"totalAmount"`
	Status      Status   `json:"status"`
}
