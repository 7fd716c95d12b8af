package rpctools

import (
	"errors"
	"fmt"

	serr "github.com/amanmcp/syncore/internal/errors"
)

// Standard JSON-RPC error codes, plus syncore-specific ones above -32000.
const (
	ErrCodeInvalidParams  = -32602
	ErrCodeMethodNotFound = -32601
	ErrCodeInternalError  = -32603

	ErrCodeCapacity = -32001
	ErrCodeWatcher  = -32002
)

// ToolError is the structured result returned instead of a transport-level
// failure: errors come back as structured results with an is_error flag,
// not as transport-level failures.
type ToolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("rpctools error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an InputError result: surfaced to the
// caller verbatim, never retried.
func NewInvalidParamsError(msg string) *ToolError {
	return &ToolError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError classifies an internal error by its structured kind. A
// CapacityError is mapped to ErrCodeCapacity like any other kind; no handler
// in this package checks the collection limit itself (handleIndexCodebase
// does not call CheckCollectionLimit).
func MapError(err error) *ToolError {
	if err == nil {
		return nil
	}

	var se *serr.SyncError
	if errors.As(err, &se) {
		switch se.Kind {
		case serr.KindInput:
			return &ToolError{Code: ErrCodeInvalidParams, Message: se.Message}
		case serr.KindCapacity:
			return &ToolError{Code: ErrCodeCapacity, Message: "collection limit reached"}
		case serr.KindWatcher:
			return &ToolError{Code: ErrCodeWatcher, Message: se.Message}
		default:
			return &ToolError{Code: ErrCodeInternalError, Message: se.Error()}
		}
	}

	return &ToolError{Code: ErrCodeInternalError, Message: err.Error()}
}
