package dto

import "time"

// DownloadURLResponse returns a signed download token and its expiry.
type DownloadURLResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
