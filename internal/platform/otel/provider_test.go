package otel

import (
	"context"
	"testing"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv(envEndpoint, "")
	t.Setenv(envEnabled, "")

	shutdown, err := Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv(envEndpoint, "http://localhost:4318")
	t.Setenv(envEnabled, "false")

	shutdown, err := Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestParseRatio(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{raw: "0.25", want: 0.25, ok: true},
		{raw: "1", want: 1, ok: true},
		{raw: "0", ok: false},
		{raw: "1.5", ok: false},
		{raw: "abc", ok: false},
		{raw: ".", ok: false},
	}
	for _, tc := range cases {
		got, ok := parseRatio(tc.raw)
		if ok != tc.ok {
			t.Fatalf("parseRatio(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("parseRatio(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
