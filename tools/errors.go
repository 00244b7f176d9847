package tools

import "errors"

// Sentinel errors for tool registration.
var (
	ErrAlreadyExists = errors.New("tool already registered")
	ErrEmptyName     = errors.New("tool name is empty")
)
