package review

import "errors"

// Sentinel errors for the review service layer.
var (
	ErrNotFound       = errors.New("extraction not found")
	ErrForbidden      = errors.New("extraction belongs to another owner")
	ErrAlreadyDecided = errors.New("extraction already confirmed or rejected")
)
