// internal/models/models.go
package models

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ProductRow is one data line of the submitted CSV.
type ProductRow struct {
	SerialNumber   string   `json:"serial_number"`
	ProductName    string   `json:"product_name"`
	InputImageURLs []string `json:"input_image_urls" validate:"min=1,dive,required,http_url"`
}

// OutputRow is one data line of the result table. URL lists are already joined.
type OutputRow struct {
	SerialNumber    string
	ProductName     string
	InputImageURLs  string
	OutputImageURLs string
}

type ProcessingRequest struct {
	RequestID      string    `db:"request_id"`
	Status         Status    `db:"status"`
	ResultLocation string    `db:"processed_images"` // public URL of the result CSV
	Error          string    `db:"error"`
	WebhookURL     string    `db:"webhook_url"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}
