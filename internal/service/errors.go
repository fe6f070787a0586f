// internal/service/errors.go
package service

import "errors"

// Sentinel errors for handler status mapping. Missing rows and rows the
// caller may not touch both collapse into ErrNotFound so ownership is
// never probeable from the outside.
var (
	ErrNotFound           = errors.New("not found")
	ErrNotPendingReview   = errors.New("image is not pending review")
	ErrNotPublished       = errors.New("image is still pending review")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
