// Package sale provides marketplace sale records and their status workflow.
package sale

import (
	"errors"
	"time"
)

// Status is where a sale is in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ValidStatuses is the set of allowed statuses.
var ValidStatuses = []Status{StatusPending, StatusCompleted, StatusCancelled}

// IsValid checks if a status is recognized.
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Label returns a human-readable label for the status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

var (
	// ErrNotFound is returned when a sale does not exist.
	ErrNotFound = errors.New("sale not found")
	// ErrNotPending is returned when completing or cancelling a settled sale.
	ErrNotPending = errors.New("sale is not pending")
	// ErrInvalid is returned when an offer fails validation.
	ErrInvalid = errors.New("invalid sale")
	// ErrForbidden is returned when an address may not act on a sale.
	ErrForbidden = errors.New("not allowed to change this sale")
)

// Sale is a marketplace transaction for one property.
type Sale struct {
	ID         string    `json:"id"`
	PropertyID int64     `json:"property_id"`
	Price      int64     `json:"price"` // whole USD
	Seller     string    `json:"seller"`
	Buyer      string    `json:"buyer"`
	Status     Status    `json:"status"`
	TxHash     string    `json:"tx_hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Stats summarizes sales by status.
type Stats struct {
	Pending         int64 `json:"pending"`
	Completed       int64 `json:"completed"`
	Cancelled       int64 `json:"cancelled"`
	CompletedVolume int64 `json:"completed_volume"`
}
