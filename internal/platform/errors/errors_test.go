package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeUnknownTask, "unknown task")
	specific := WithMetadata(CodeUnknownTask, `unknown task "send"`, map[string]string{"task": "send"})

	if !errors.Is(specific, sentinel) {
		t.Fatal("expected errors.Is to match by code")
	}
	if errors.Is(specific, New(CodeUnknownNamespace, "other")) {
		t.Fatal("expected different codes not to match")
	}
	wrapped := fmt.Errorf("lookup: %w", specific)
	if !errors.Is(wrapped, sentinel) {
		t.Fatal("expected wrapped error to match sentinel")
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeInvalidTask, "invalid task", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	cases := map[Code]codes.Code{
		CodeInvalidRetryPolicy:    codes.InvalidArgument,
		CodeUnknownNamespace:      codes.NotFound,
		CodeNoPendingTask:         codes.NotFound,
		CodeDuplicateTask:         codes.AlreadyExists,
		CodeProducerNotConfigured: codes.FailedPrecondition,
		CodeUnknown:               codes.Internal,
	}
	for code, want := range cases {
		if got := code.GRPCCode(); got != want {
			t.Fatalf("%s.GRPCCode() = %v, want %v", code, got, want)
		}
	}
}

func TestToGRPCStatusRoundTripsCode(t *testing.T) {
	err := WithMetadata(CodeNotInflight, "activation is not inflight", map[string]string{"id": "a-1"}).ToGRPCStatus()
	if status.Code(err) != codes.NotFound {
		t.Fatalf("status code = %v, want %v", status.Code(err), codes.NotFound)
	}
	if got := CodeFromGRPCStatus(err); got != CodeNotInflight {
		t.Fatalf("code = %q, want %q", got, CodeNotInflight)
	}
	if got := CodeFromGRPCStatus(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
}
