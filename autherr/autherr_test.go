package autherr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New(KindLookupFailed, "session.Get", cause)

	if !errors.Is(err, ErrLookupFailed) {
		t.Fatalf("expected %v to match ErrLookupFailed", err)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("lookup failure must not match ErrUnauthenticated")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to stay reachable through Unwrap")
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("gate: %w", New(KindTimeout, "gate.Check", nil))
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("expected KindTimeout, got %v", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Fatalf("expected KindUnknown, got %v", got)
	}
}

func TestErrorString(t *testing.T) {
	err := New(KindInvalidCredentials, "backend.SignIn", nil)
	if got := err.Error(); got != "backend.SignIn: invalid credentials" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Kind(200).String(); got != "unknown" {
		t.Fatalf("unexpected out of range name %q", got)
	}
}
