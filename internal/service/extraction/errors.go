package extraction

import "errors"

// Sentinel errors for the extraction service layer.
var (
	ErrEmailNotFound      = errors.New("email not found")
	ErrExtractionNotFound = errors.New("extraction not found")
)
