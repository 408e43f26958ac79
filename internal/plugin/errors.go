package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// ErrorCodePluginNotFound indicates the requested plugin isn't attached
	ErrorCodePluginNotFound = "PLUGIN_NOT_FOUND"

	// ErrorCodeMethodNotFound indicates the plugin has no such method
	ErrorCodeMethodNotFound = "METHOD_NOT_FOUND"

	// ErrorCodeInvalidArgs indicates the method parameters could not be decoded
	ErrorCodeInvalidArgs = "INVALID_ARGS"

	// ErrorCodeInvalidConfig indicates the plugin settings could not be decoded
	ErrorCodeInvalidConfig = "INVALID_CONFIG"

	// ErrorCodePermissionDenied indicates the call was denied by the permission set
	ErrorCodePermissionDenied = "PERMISSION_DENIED"

	// ErrorCodeSetClosed indicates operations on a closed Set
	ErrorCodeSetClosed = "PLUGIN_SET_CLOSED"

	// ErrorCodeUnavailable indicates the capability is not available on this device
	ErrorCodeUnavailable = "UNAVAILABLE"

	// ErrorCodeInternalError indicates an unexpected error occurred
	ErrorCodeInternalError = "INTERNAL_ERROR"
)

var (
	ErrNilFactory      = errors.New("plugin factory cannot be nil")
	ErrAlreadyAttached = errors.New("plugin already attached")
)

// Error provides structured error information
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " - " + e.Details
	}
	return e.Code + ": " + e.Message
}

// MethodNotFound builds the error returned for unknown methods
func MethodNotFound(plugin, method string) *Error {
	return &Error{
		Code:    ErrorCodeMethodNotFound,
		Message: fmt.Sprintf("method %s not found on plugin %s", method, plugin),
	}
}

// Unavailable builds the error returned when a capability is missing
func Unavailable(plugin, details string) *Error {
	return &Error{
		Code:    ErrorCodeUnavailable,
		Message: fmt.Sprintf("%s is not available on this device", plugin),
		Details: details,
	}
}

// DecodeArgs unmarshals method parameters into v. Empty parameters are
// treated as an empty object.
func DecodeArgs(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &Error{
			Code:    ErrorCodeInvalidArgs,
			Message: "invalid arguments",
			Details: err.Error(),
		}
	}
	return nil
}

// Result marshals a method result
func Result(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{
			Code:    ErrorCodeInternalError,
			Message: "failed to encode result",
			Details: err.Error(),
		}
	}
	return data, nil
}

// coded is implemented by structured errors of other packages
type coded interface {
	error
	ErrorCode() string
}

// AsError converts any error into a *Error, keeping structured errors as-is
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	var ce coded
	if errors.As(err, &ce) {
		return &Error{Code: ce.ErrorCode(), Message: ce.Error()}
	}
	return &Error{
		Code:    ErrorCodeInternalError,
		Message: err.Error(),
	}
}
