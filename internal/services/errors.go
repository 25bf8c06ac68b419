package services

import "errors"

// Service errors
var (
	ErrNoEventsPath  = errors.New("events path is required")
	ErrNoReturnsPath = errors.New("returns path is required")
	ErrNoResult      = errors.New("engine returned no result")
)
