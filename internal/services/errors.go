package services

import (
	"errors"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNotFound         = errors.New("not found")
	ErrPersistence      = errors.New("persistence failure")
	ErrEnqueue          = errors.New("enqueue failure")
)
