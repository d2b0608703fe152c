package ucperrors

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := New(KindCircuitOpen, "pool.Call", errors.New("boom")).WithServer("github")
	if !errors.Is(err, CircuitOpen) {
		t.Fatalf("expected errors.Is to match CircuitOpen sentinel")
	}
	if errors.Is(err, ToolNotFound) {
		t.Fatalf("expected errors.Is to not match a different kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("dial refused")
	err := New(KindTimeout, "pool.Call", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("expected unwrap to expose inner error")
	}
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := New(KindToolNotFound, "pool.resolve", nil).WithServer("email").WithTool("email.send")
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
}

func TestSelfCorrectionTextShapesForLLM(t *testing.T) {
	text := SelfCorrectionText("email.send", "sends an email", "to, subject, body", `{"to":"x"}`, errors.New("invalid recipient"))
	if text == "" {
		t.Fatal("expected non-empty self-correction text")
	}
}

func TestAsKind(t *testing.T) {
	err := New(KindDownstreamError, "pool.Call", errors.New("500"))
	if !AsKind(err, KindDownstreamError) {
		t.Fatalf("expected AsKind to match")
	}
	if AsKind(err, KindTimeout) {
		t.Fatalf("expected AsKind to not match a different kind")
	}
}
