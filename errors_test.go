package etdi

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := NewError(KindSignature, "calculator", "digest mismatch")
	if KindOf(err) != KindSignature {
		t.Fatalf("expected KindSignature, got %s", KindOf(err))
	}

	wrapped := fmt.Errorf("VerifyTool: %w", err)
	if KindOf(wrapped) != KindSignature {
		t.Fatal("kind lost through wrapping")
	}

	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("expected KindUnknown for foreign error")
	}
	if KindOf(nil) != KindUnknown {
		t.Fatal("expected KindUnknown for nil")
	}
}

func TestWrapErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(KindStore, "calculator", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause not reachable via errors.Is")
	}
	if !IsStoreFault(err) {
		t.Fatal("expected store fault classification")
	}
	if IsStoreFault(NewError(KindSignature, "calculator", "bad sig")) {
		t.Fatal("signature error misclassified as store fault")
	}
}

func TestErrorMessageIncludesToolAndKind(t *testing.T) {
	err := NewError(KindPermission, "calculator", "scope %s not approved", "files:read")
	msg := err.Error()
	for _, want := range []string{"calculator", "permission", "files:read"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
}
