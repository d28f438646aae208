package models

// ErrorResponse is the standard error body for the ops API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
