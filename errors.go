package strata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents specific error conditions in the engine
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// State was not found in the graph or in storage
	ErrCodeStateNotFound
	// Transition references unknown states
	ErrCodeTransitionNotAllowed
	// Trigger was issued while another one is being evaluated
	ErrCodeAlreadyTransitioning
	// Trigger payload is invalid
	ErrCodeInvalidTrigger
	// Handler execution failed
	ErrCodeActionFailed
	// Graph or region configuration is invalid
	ErrCodeInvalidConfiguration
	// Context key is flagged as inherited
	ErrCodeInheritedKey
)

var (
	// ErrNotFound is matched by every lookup failure
	ErrNotFound = errors.New("not found")
	// ErrAlreadyTransitioning is returned for reentrant triggers
	ErrAlreadyTransitioning = errors.New("already transitioning")
	// ErrNilTrigger is returned when a nil payload is dispatched
	ErrNilTrigger = errors.New("trigger payload must not be nil")
	// ErrInheritedKey is returned when an inherited key is set on the declaring region
	ErrInheritedKey = errors.New("key is flagged as inherited")
)

// StateError represents state-related errors
type StateError struct {
	Code    ErrorCode
	StateID string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error [%s]: %s", e.StateID, e.Message)
}

// Is lets errors.Is match ErrNotFound for lookup failures
func (e *StateError) Is(target error) bool {
	return target == ErrNotFound && e.Code == ErrCodeStateNotFound
}

// NewStateNotFoundError creates a new state not found error
func NewStateNotFoundError(stateID string) *StateError {
	return &StateError{
		Code:    ErrCodeStateNotFound,
		StateID: stateID,
		Message: fmt.Sprintf("state '%s' not found", stateID),
	}
}

// newHistoryNotFoundError reports a compound state without stored history
func newHistoryNotFoundError(parentID string) *StateError {
	return &StateError{
		Code:    ErrCodeStateNotFound,
		StateID: parentID,
		Message: "no history recorded",
	}
}

// TransitionError represents transition-related errors
type TransitionError struct {
	Code   ErrorCode
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition error [%s->%s]: %s", e.From, e.To, e.Reason)
}

// NewTransitionNotAllowedError creates an error for transitions between unknown states
func NewTransitionNotAllowedError(from, to string) *TransitionError {
	return &TransitionError{
		Code:   ErrCodeTransitionNotAllowed,
		From:   from,
		To:     to,
		Reason: fmt.Sprintf("there is no transition from '%s' to '%s'", from, to),
	}
}

// ConfigurationError represents graph or region configuration issues.
// All problems found during a build are listed in Issues.
type ConfigurationError struct {
	Component string
	Issues    []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Issues[0])
	}
	return fmt.Sprintf("configuration error in %s:\n  - %s", e.Component, strings.Join(e.Issues, "\n  - "))
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(component string, issues ...string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Issues:    issues,
	}
}

// issueList accumulates configuration problems so a build can report all of them
type issueList struct {
	component string
	issues    []string
}

func (l *issueList) addf(format string, args ...any) {
	l.issues = append(l.issues, fmt.Sprintf(format, args...))
}

func (l *issueList) err() error {
	if len(l.issues) == 0 {
		return nil
	}
	return NewConfigurationError(l.component, l.issues...)
}

// MachineError represents engine operation errors
type MachineError struct {
	Code      ErrorCode
	Operation string
	Message   string
}

func (e *MachineError) Error() string {
	return fmt.Sprintf("machine error during %s: %s", e.Operation, e.Message)
}

// Is lets errors.Is match the engine sentinels
func (e *MachineError) Is(target error) bool {
	switch e.Code {
	case ErrCodeAlreadyTransitioning:
		return target == ErrAlreadyTransitioning
	case ErrCodeInvalidTrigger:
		return target == ErrNilTrigger
	}
	return false
}

// NewAlreadyTransitioningError creates the reentrancy error
func NewAlreadyTransitioningError(operation string) *MachineError {
	return &MachineError{
		Code:      ErrCodeAlreadyTransitioning,
		Operation: operation,
		Message:   "machine is already transitioning",
	}
}

// ActionError represents handler execution errors
type ActionError struct {
	Action      string
	State       string
	OriginalErr error
}

func (e *ActionError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s handler failed in state '%s': %v", e.Action, e.State, e.OriginalErr)
	}
	return fmt.Sprintf("%s handler failed in state '%s'", e.Action, e.State)
}

func (e *ActionError) Unwrap() error {
	return e.OriginalErr
}

// NewActionError creates a new handler execution error
func NewActionError(action, state string, err error) *ActionError {
	return &ActionError{
		Action:      action,
		State:       state,
		OriginalErr: err,
	}
}

// ContextError is returned by illegal context writes
type ContextError struct {
	Code   ErrorCode
	Region string
	Key    string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("cannot set key '%s' on region '%s': flagged as inherited", e.Key, e.Region)
}

// Is lets errors.Is match ErrInheritedKey
func (e *ContextError) Is(target error) bool {
	return target == ErrInheritedKey
}

// IsStateError checks if an error is a StateError
func IsStateError(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsTransitionError checks if an error is a TransitionError
func IsTransitionError(err error) bool {
	var e *TransitionError
	return errors.As(err, &e)
}

// IsConfigurationError checks if an error is a ConfigurationError
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// IsMachineError checks if an error is a MachineError
func IsMachineError(err error) bool {
	var e *MachineError
	return errors.As(err, &e)
}

// IsActionError checks if an error is an ActionError
func IsActionError(err error) bool {
	var e *ActionError
	return errors.As(err, &e)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	var (
		stateErr   *StateError
		transErr   *TransitionError
		machineErr *MachineError
		configErr  *ConfigurationError
		actionErr  *ActionError
		contextErr *ContextError
	)
	switch {
	case errors.As(err, &machineErr):
		return machineErr.Code
	case errors.As(err, &actionErr):
		return ErrCodeActionFailed
	case errors.As(err, &configErr):
		return ErrCodeInvalidConfiguration
	case errors.As(err, &transErr):
		return transErr.Code
	case errors.As(err, &contextErr):
		return contextErr.Code
	case errors.As(err, &stateErr):
		return stateErr.Code
	default:
		return ErrCodeNone
	}
}
