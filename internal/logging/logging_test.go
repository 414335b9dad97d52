package logging

import (
	"context"
	"testing"
)

func TestEnsureRequestIDGeneratesOnce(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatalf("EnsureRequestID returned empty id")
	}

	// A second call on the same context reuses the existing id.
	ctx2, id2 := EnsureRequestID(ctx)
	if id2 != id {
		t.Errorf("second EnsureRequestID = %q, want %q", id2, id)
	}
	if ctx2 != ctx {
		t.Errorf("context replaced although a request id was already present")
	}
}

func TestEnsureRequestIDUniquePerRequest(t *testing.T) {
	_, a := EnsureRequestID(context.Background())
	_, b := EnsureRequestID(context.Background())
	if a == b {
		t.Errorf("two fresh contexts share request id %q", a)
	}
}

func TestWithRequestLoggerToleratesNilInputs(t *testing.T) {
	ctx, log := WithRequestLogger(nil, nil)
	if ctx == nil {
		t.Fatalf("WithRequestLogger returned nil context")
	}
	if log == nil {
		t.Fatalf("WithRequestLogger returned nil logger")
	}
	// The fallback logger must be usable.
	log.Info(ctx, "noop")

	if _, id := EnsureRequestID(ctx); id == "" {
		t.Errorf("request id missing from returned context")
	}
}
