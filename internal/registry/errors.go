package registry

import "errors"

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("registry record not found")

// ErrDuplicateResource signals that the submitted URL is already registered.
var ErrDuplicateResource = errors.New("resource already exists")
