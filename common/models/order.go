package models

import "time"

// Order is a platform order as seen by the audit engine.
// Populated by an order history source; never persisted directly.
type Order struct {
	ID          string     `json:"id" validate:"required"`
	OrderNumber string     `json:"order_number"`
	CreatedAt   time.Time  `json:"created_at" validate:"required"`
	Customer    *Customer  `json:"customer,omitempty"`
	LineItems   []LineItem `json:"line_items" validate:"dive"`
}

// Customer is the platform customer reference attached to an order
type Customer struct {
	ID string `json:"id"`
}

// LineItem is a single purchased product within an order
type LineItem struct {
	ID        string `json:"id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
	ProductID string `json:"product_id,omitempty"`
	VariantID string `json:"variant_id,omitempty"`
}

// OrderSummary is the compact form of an order kept on an audit log
type OrderSummary struct {
	ID            string    `json:"id"`
	OrderNumber   string    `json:"order_number"`
	CreatedAt     time.Time `json:"created_at"`
	CustomerID    string    `json:"customer_id,omitempty"`
	LineItemCount int       `json:"line_item_count"`
	SKUs          []string  `json:"skus"`
}

// Summarize reduces orders to the summary stored alongside an audit log
func Summarize(orders []Order) []OrderSummary {
	summaries := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		s := OrderSummary{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			CreatedAt:     o.CreatedAt,
			LineItemCount: len(o.LineItems),
			SKUs:          make([]string, 0, len(o.LineItems)),
		}
		if o.Customer != nil {
			s.CustomerID = o.Customer.ID
		}
		for _, item := range o.LineItems {
			if item.SKU != "" {
				s.SKUs = append(s.SKUs, item.SKU)
			}
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// CustomerLookup identifies a platform customer. CustomerID is preferred; Email is the fallback.
type CustomerLookup struct {
	CustomerID string `json:"customer_id,omitempty"`
	Email      string `json:"email,omitempty"`
}

// IsEmpty reports whether neither identifier is set
func (l CustomerLookup) IsEmpty() bool {
	return l.CustomerID == "" && l.Email == ""
}

// OrderHistory is the full order history for a lookup
type OrderHistory struct {
	Orders []Order `json:"orders"`

	// Platform customer IDs the lookup resolved to. More than one means the
	// email is shared across customer records.
	CustomerIDs []string `json:"customer_ids"`
}
