package api

import "fmt"

// APIStepVersion is the data structure for the JSON returned by the step
// registry's version lookup.
type APIStepVersion struct {
	TarballURL  string `json:"tarballUrl"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// APIError represents an error response from the step registry.
type APIError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// Error returns the message and status code.
func (e *APIError) Error() string {
	return fmt.Sprintf("wercker-api: %s (status code: %d)", e.Message, e.StatusCode)
}
