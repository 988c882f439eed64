package render

import "errors"

// Errors returned by the engine's control surface.
var (
	ErrUnknownHandle  = errors.New("render: unknown object handle")
	ErrTooManyObjects = errors.New("render: object capacity exhausted")
	ErrNilSource      = errors.New("render: source must not be nil")
)
