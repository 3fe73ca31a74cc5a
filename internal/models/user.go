package models

// Identity is what the identity provider tells us about the caller.
// DisplayName is stored as a video's uploader and is the key for ownership checks.
type Identity struct {
	Subject     string `json:"subject"`
	DisplayName string `json:"display_name"`
}
