package api

import "time"

// Envelope wraps every JSON response of the record endpoints.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the failure form of Envelope.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

type AuthLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthMeResponse struct {
	Authenticated bool       `json:"authenticated"`
	Username      string     `json:"username,omitempty"`
	Department    string     `json:"department,omitempty"`
	Role          string     `json:"role,omitempty"`
	AuthType      string     `json:"auth_type,omitempty"`
	Token         string     `json:"token,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// BannerItem is a banner as served to clients: its order plus where to fetch the image.
type BannerItem struct {
	ID       string `json:"id"`
	Order    int    `json:"order"`
	Filename string `json:"filename"`
	BlobID   string `json:"blobId,omitempty"`
	URL      string `json:"url,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Tenants int    `json:"tenants"`
}
