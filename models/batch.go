package models

// TokenResponse is the identity endpoint's password-grant reply.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type,omitempty"`
}

// UploadOutcome records the result of one descriptor in an ingestion batch.
// Index is the 0-based position of the descriptor in the input slice.
type UploadOutcome struct {
	Index    int    `json:"index"`
	ImageID  string `json:"imageId,omitempty"`
	Main     bool   `json:"main"`
	Strategy string `json:"strategy,omitempty"`
}

// BatchError records one descriptor that could not be uploaded. Path is set
// when the descriptor referenced a local file.
type BatchError struct {
	Index int    `json:"index"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error"`
}

// BatchResult aggregates an entire ingestion run. Downstream glue relies on
// this exact shape; partial success (some errors, some uploads) is a valid
// terminal state.
type BatchResult struct {
	VehicleID     string          `json:"vehicleId"`
	UploadedCount int             `json:"uploadedCount"`
	Uploaded      []UploadOutcome `json:"uploadedImages"`
	Errors        []BatchError    `json:"errors"`
	Success       bool            `json:"success"`
}
