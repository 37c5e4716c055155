// Package simerr defines the error kinds shared by the cell, network and
// engine packages. Each kind has a sentinel for errors.Is and a typed error
// carrying the offending detail for errors.As.
package simerr

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownCell is returned when a connection, stimulus or recorder
	// references a cell id that is not part of the network.
	ErrUnknownCell = errors.New("unknown cell")

	// ErrInvalidParameter is returned for negative durations or delays,
	// negative weights, non-positive tick sizes and malformed sites.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrEngineState is returned when topology is mutated while a run is in
	// progress, or when a run is started from inside another run.
	ErrEngineState = errors.New("invalid engine state")

	// ErrDiverged is returned when a membrane voltage becomes non-finite.
	ErrDiverged = errors.New("integration diverged")
)

// UnknownCellError names the missing cell and the operation that needed it.
type UnknownCellError struct {
	ID string
	Op string
}

func (e *UnknownCellError) Error() string {
	return fmt.Sprintf("%s: unknown cell %q", e.Op, e.ID)
}

// Is reports whether target is ErrUnknownCell.
func (e *UnknownCellError) Is(target error) bool { return target == ErrUnknownCell }

// InvalidParameterError describes a rejected numeric or structural parameter.
type InvalidParameterError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Name, e.Value, e.Reason)
}

// Is reports whether target is ErrInvalidParameter.
func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

// EngineStateError reports an operation attempted in the wrong engine state.
type EngineStateError struct {
	Op    string
	State string
}

func (e *EngineStateError) Error() string {
	return fmt.Sprintf("%s not allowed while engine is %s", e.Op, e.State)
}

// Is reports whether target is ErrEngineState.
func (e *EngineStateError) Is(target error) bool { return target == ErrEngineState }

// Invalid is shorthand for building an *InvalidParameterError.
func Invalid(name string, value any, reason string) error {
	return &InvalidParameterError{Name: name, Value: value, Reason: reason}
}

// NonNegative returns an *InvalidParameterError when v is negative or not finite.
func NonNegative(name string, v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return Invalid(name, v, "must be a non-negative finite number")
	}
	return nil
}

// Positive returns an *InvalidParameterError when v is not strictly positive
// and finite.
func Positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return Invalid(name, v, "must be a positive finite number")
	}
	return nil
}
