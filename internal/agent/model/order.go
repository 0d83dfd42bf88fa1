package model

import "time"

// Order is a row from the data-access layer.
type Order struct {
	OrderID         string    `json:"order_id"`
	Status          string    `json:"status"`
	ProductName     string    `json:"product_name"`
	TotalAmount     float64   `json:"total_amount"`
	PaymentStatus   string    `json:"payment_status"`
	ShippingAddress string    `json:"shipping_address"`
	CustomerPhone   string    `json:"customer_phone,omitempty"`
	TrackingNumber  string    `json:"tracking_number,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// LogisticsStatus is the answer of the external logistics service.
type LogisticsStatus struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
	Status         string `json:"status"`
	Location       string `json:"location,omitempty"`
	Destination    string `json:"destination,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}
