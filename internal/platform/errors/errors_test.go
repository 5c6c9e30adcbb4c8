package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "resolution missing"))
	if !stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeInvalidState, "")) {
		t.Fatal("expected errors.Is to reject a different code")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %s, want %s", got, CodeUnknown)
	}
	wrapped := fmt.Errorf("decide: %w", Wrap(CodeExecutionError, "apply", stderrors.New("boom")))
	if got := CodeOf(wrapped); got != CodeExecutionError {
		t.Fatalf("code = %s, want %s", got, CodeExecutionError)
	}
	if IsCode(nil, CodeUnknown) {
		t.Fatal("expected nil error to carry no code")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeBackendUnavailable, "generate", stderrors.New("timeout"))
	if got := err.Error(); got != "generate: timeout" {
		t.Fatalf("message = %q, want %q", got, "generate: timeout")
	}
}

func TestCodeMappings(t *testing.T) {
	cases := []struct {
		code     Code
		grpcCode codes.Code
		httpCode int
	}{
		{CodeNotFound, codes.NotFound, http.StatusNotFound},
		{CodeInvalidState, codes.FailedPrecondition, http.StatusConflict},
		{CodeInvalidInput, codes.InvalidArgument, http.StatusBadRequest},
		{CodeExecutionError, codes.Internal, http.StatusInternalServerError},
		{CodeBackendUnavailable, codes.Unavailable, http.StatusServiceUnavailable},
		{CodeUnknown, codes.Internal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.GRPCCode(); got != tc.grpcCode {
			t.Fatalf("%s grpc = %v, want %v", tc.code, got, tc.grpcCode)
		}
		if got := tc.code.HTTPStatus(); got != tc.httpCode {
			t.Fatalf("%s http = %d, want %d", tc.code, got, tc.httpCode)
		}
	}
}

func TestToGRPCStatusAttachesErrorInfo(t *testing.T) {
	err := WithMetadata(CodeInvalidState, "world mismatch", map[string]string{"resolution_id": "res-1"})
	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.FailedPrecondition)
	}
	var info *errdetails.ErrorInfo
	for _, detail := range st.Details() {
		if typed, ok := detail.(*errdetails.ErrorInfo); ok {
			info = typed
		}
	}
	if info == nil {
		t.Fatal("expected error info detail")
	}
	if info.GetReason() != string(CodeInvalidState) {
		t.Fatalf("reason = %q, want %q", info.GetReason(), CodeInvalidState)
	}
	if info.GetMetadata()["resolution_id"] != "res-1" {
		t.Fatalf("metadata = %v", info.GetMetadata())
	}
}
