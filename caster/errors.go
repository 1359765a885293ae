package caster

import "errors"

var (
	// Returned when a pipeline stage is invoked out of order.
	ErrInvalidStage = errors.New("caster: pipeline stage invoked out of order")

	// Returned when a stage runs before an index has been uploaded.
	ErrNoIndexData = errors.New("caster: no spatial index uploaded")

	// Returned when a dispatch layout is requested under an unknown name.
	ErrUnknownLayout = errors.New("caster: unknown dispatch layout")
)
