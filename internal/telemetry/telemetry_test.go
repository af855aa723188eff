package telemetry

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "test", Options{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if Tracer() == nil {
		t.Fatal("Tracer() returned nil")
	}
}

func TestClampRate(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0.1},
		{-1, 0.1},
		{1.5, 0.1},
		{0.25, 0.25},
		{1, 1},
	}
	for _, tt := range tests {
		if got := clampRate(tt.in); got != tt.want {
			t.Errorf("clampRate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
