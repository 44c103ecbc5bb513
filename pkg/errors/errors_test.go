package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCode(t *testing.T) {
	meta := MetadataFor(CodeInsufficientFunds)
	if meta.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", meta.HTTPStatus)
	}
	if meta.Retryable {
		t.Fatal("insufficient funds must not be retryable")
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NO_SUCH_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected 500 fallback, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("row not found")
	err := Wrap(CodeNotFound, cause, "wallet lookup failed")

	if !stdErrors.Is(err, cause) {
		t.Fatal("wrapped cause should be reachable via errors.Is")
	}
	if err.Code() != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", err.Code())
	}
}

func TestAsFindsTypedErrorThroughChain(t *testing.T) {
	inner := New(CodeBudgetExhausted, "budget below click cost")
	wrapped := Wrap(CodeInternal, inner, "click billing failed")

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	// As returns the outermost typed error.
	if typed.Code() != CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %s", typed.Code())
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeDuplicateEvent, "gateway event replayed")
	if !IsCode(err, CodeDuplicateEvent) {
		t.Fatal("expected IsCode to match")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatal("expected IsCode mismatch")
	}
	if IsCode(nil, CodeNotFound) {
		t.Fatal("nil error should never match")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "redis ping failed")

	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected DEPENDENCY_ERROR, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(d.Chain))
	}
}
