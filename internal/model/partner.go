package model

import "time"

// Partner is a vendor that lists deals and scans wallet items.
type Partner struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
