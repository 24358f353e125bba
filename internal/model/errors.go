package model

import "errors"

var (
	ErrInvalidImage       = errors.New("invalid image")
	ErrModelLoad          = errors.New("model load failed")
	ErrModelInvocation    = errors.New("model invocation failed")
	ErrShapeMismatch      = errors.New("output shape mismatch")
	ErrLabelCountMismatch = errors.New("label count mismatch")
)
