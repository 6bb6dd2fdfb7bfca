package domain

import "errors"

// ErrNotFound is wrapped by catalog lookups for unknown products or vendors.
var ErrNotFound = errors.New("not found")
