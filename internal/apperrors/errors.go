// Package apperrors defines the typed failures returned by the booking and
// settlement services. Every type matches one sentinel through errors.Is so the
// HTTP layer can map them without knowing the concrete type, while the struct
// fields carry the context that ends up in logs.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("this session is not in a state that allows that action")
	ErrGateway       = errors.New("payment could not be started, please try again")
)

// ValidationError reports a bad input shape or range.
type ValidationError struct {
	Field  string
	Reason string
}

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ForbiddenError reports an actor that may not perform Action on the resource.
type ForbiddenError struct {
	Resource string
	ID       string
	ActorID  int64
	Action   string
}

func Forbidden(resource, id string, actorID int64, action string) *ForbiddenError {
	return &ForbiddenError{Resource: resource, ID: id, ActorID: actorID, Action: action}
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %d may not %s %s %s", e.ActorID, e.Action, e.Resource, e.ID)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

type NotFoundError struct {
	Resource string
	ID       string
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StateConflictError reports an illegal transition or a duplicate payment attempt.
type StateConflictError struct {
	SessionID string
	Action    string
	Current   string
}

func StateConflict(sessionID, action, current string) *StateConflictError {
	return &StateConflictError{SessionID: sessionID, Action: action, Current: current}
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s session %s in state %s", e.Action, e.SessionID, e.Current)
}

func (e *StateConflictError) Is(target error) bool { return target == ErrStateConflict }

// GatewayError wraps an upstream payment provider failure. Code is the raw
// provider error code when one was returned.
type GatewayError struct {
	Op   string
	Code string
	Err  error
}

func Gateway(op, code string, err error) *GatewayError {
	return &GatewayError{Op: op, Code: code, Err: err}
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }
