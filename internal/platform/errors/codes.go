// Package errors provides structured domain errors with transport mappings.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeNotFound marks a missing resolution, challenge, character or skill.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidState marks an operation the current state does not allow,
	// including world-scope mismatches on pending approvals.
	CodeInvalidState Code = "INVALID_STATE"
	// CodeInvalidInput marks structurally invalid requests rejected at the boundary.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeExecutionError marks a downstream side-effect failure.
	CodeExecutionError Code = "EXECUTION_ERROR"
	// CodeBackendUnavailable marks a generation backend failure.
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
	// CodeCancelled marks work cancelled by a caller.
	CodeCancelled Code = "CANCELLED"
	// CodeConflict marks a duplicate resource.
	CodeConflict Code = "CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidInput:
		return codes.InvalidArgument
	case CodeInvalidState:
		return codes.FailedPrecondition
	case CodeNotFound:
		return codes.NotFound
	case CodeConflict:
		return codes.AlreadyExists
	case CodeBackendUnavailable:
		return codes.Unavailable
	case CodeCancelled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInvalidState, CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case CodeCancelled:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
