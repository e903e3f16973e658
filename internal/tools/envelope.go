package tools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/workflow"
)

// ErrorCode is the closed taxonomy carried in error envelopes.
type ErrorCode string

// Envelope error codes.
const (
	CodeValidation      ErrorCode = "VALIDATION_ERROR"
	CodeNotFound        ErrorCode = "RESOURCE_NOT_FOUND"
	CodeConflict        ErrorCode = "CONFLICT_ERROR"
	CodeDatabase        ErrorCode = "DATABASE_ERROR"
	CodeOperationFailed ErrorCode = "OPERATION_FAILED"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// Envelope is the uniform response shape every tool returns. Batch tools
// report per-element failures inside Data and still set Success true; atomic
// tools set Success false on any sub-failure.
type Envelope struct {
	Success  bool       `json:"success"`
	Message  string     `json:"message,omitempty"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorBody `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

// ErrorBody describes a failed invocation or a failed batch element.
type ErrorBody struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
	Details any       `json:"details,omitempty"`
}

// Metadata stamps every envelope with the response time and server version.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// BatchSummary totals per-element outcomes of a batch tool.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ValidationError is a parameter or domain-rule violation detected before
// any state changes. It maps to VALIDATION_ERROR.
type ValidationError struct {
	Message string
	Details any
}

func (e *ValidationError) Error() string { return e.Message }

// validationf builds a ValidationError with a formatted message.
func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// GateError reports required note keys with missing or empty bodies,
// preventing a trigger from being applied.
type GateError struct {
	Trigger types.Trigger
	Missing []string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("cannot %s: required notes missing or empty: %s",
		e.Trigger, strings.Join(e.Missing, ", "))
}

func (s *Service) metadata() Metadata {
	return Metadata{Timestamp: time.Now().UTC(), Version: s.version}
}

// ok wraps data in a success envelope.
func (s *Service) ok(message string, data any) *Envelope {
	return &Envelope{Success: true, Message: message, Data: data, Metadata: s.metadata()}
}

// fail classifies err and wraps it in an error envelope.
func (s *Service) fail(err error) *Envelope {
	return &Envelope{Success: false, Error: errorBody(err), Metadata: s.metadata()}
}

// failCode builds an error envelope with an explicit code.
func (s *Service) failCode(code ErrorCode, message string, details any) *Envelope {
	return &Envelope{
		Success:  false,
		Error:    &ErrorBody{Message: message, Code: code, Details: details},
		Metadata: s.metadata(),
	}
}

// errorBody maps an error to the envelope taxonomy:
//
//   - ValidationError and trigger-resolution failures -> VALIDATION_ERROR
//   - unsatisfied dependency blockers and gate failures -> OPERATION_FAILED
//     with structured details
//   - storage sentinels -> RESOURCE_NOT_FOUND / CONFLICT_ERROR
//   - anything else surfacing from storage -> DATABASE_ERROR
func errorBody(err error) *ErrorBody {
	var verr *ValidationError
	var rerr *workflow.ResolutionError
	var berr *workflow.BlockedError
	var gerr *GateError

	switch {
	case errors.As(err, &verr):
		return &ErrorBody{Message: verr.Message, Code: CodeValidation, Details: verr.Details}
	case errors.As(err, &rerr):
		return &ErrorBody{Message: rerr.Error(), Code: CodeValidation}
	case errors.As(err, &berr):
		return &ErrorBody{
			Message: berr.Error(),
			Code:    CodeOperationFailed,
			Details: map[string]any{"blockers": berr.Blockers},
		}
	case errors.As(err, &gerr):
		return &ErrorBody{
			Message: gerr.Error(),
			Code:    CodeOperationFailed,
			Details: map[string]any{"missingNotes": gerr.Missing},
		}
	case errors.Is(err, storage.ErrNotFound):
		return &ErrorBody{Message: err.Error(), Code: CodeNotFound}
	case errors.Is(err, storage.ErrConflict),
		errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, storage.ErrCycle):
		return &ErrorBody{Message: err.Error(), Code: CodeConflict}
	default:
		return &ErrorBody{Message: err.Error(), Code: CodeDatabase}
	}
}
