package obslog

import (
	"context"
	"testing"
)

func TestWithRequestIDRoundTrip(t *testing.T) {
	ctx, id := WithRequestID(context.Background())
	if id == "" {
		t.Fatal("expected non-empty request id")
	}
	if got := RequestIDFromContext(ctx); got != id {
		t.Errorf("RequestIDFromContext = %q, want %q", got, id)
	}
}

func TestRequestIDFromContextEmptyWhenAbsent(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty id on bare context, got %q", got)
	}
}

func TestWithRequestIDGeneratesDistinctIDs(t *testing.T) {
	_, id1 := WithRequestID(context.Background())
	_, id2 := WithRequestID(context.Background())
	if id1 == id2 {
		t.Error("expected distinct request ids across calls")
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected a non-nil logger even without a request id")
	}
}
