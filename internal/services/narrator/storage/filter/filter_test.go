package filter

import (
	"testing"
	"time"
)

func TestParsePendingFilterEmpty(t *testing.T) {
	cond, err := ParsePendingFilter("  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cond.Clause != "" || len(cond.Params) != 0 {
		t.Fatalf("cond = %+v, want empty", cond)
	}
}

func TestParsePendingFilterConjunction(t *testing.T) {
	cond, err := ParsePendingFilter(`world_id = "w1" AND state = "suggestions_ready"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cond.Clause != "(world_id = ? AND state = ?)" {
		t.Fatalf("clause = %q", cond.Clause)
	}
	if len(cond.Params) != 2 || cond.Params[0] != "w1" || cond.Params[1] != "suggestions_ready" {
		t.Fatalf("params = %v", cond.Params)
	}
}

func TestParsePendingFilterTimestamp(t *testing.T) {
	cond, err := ParsePendingFilter(`create_time >= timestamp("2026-03-01T00:00:00Z")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if cond.Clause != "created_at >= ?" || cond.Params[0] != want {
		t.Fatalf("cond = %+v, want created_at >= %d", cond, want)
	}
}

func TestParsePendingFilterRejectsUnknownField(t *testing.T) {
	if _, err := ParsePendingFilter(`owner = "x"`); err == nil {
		t.Fatal("expected error for undeclared field")
	}
}

func TestCompilePendingMatcher(t *testing.T) {
	match, err := CompilePendingMatcher(`kind = "challenge_outcome" OR state != "queued"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cases := []struct {
		fields Fields
		want   bool
	}{
		{Fields{Kind: "challenge_outcome", State: "queued"}, true},
		{Fields{Kind: "npc_response", State: "suggestions_ready"}, true},
		{Fields{Kind: "npc_response", State: "queued"}, false},
	}
	for _, tc := range cases {
		if got := match(tc.fields); got != tc.want {
			t.Fatalf("match(%+v) = %v, want %v", tc.fields, got, tc.want)
		}
	}
}

func TestCompilePendingMatcherTime(t *testing.T) {
	match, err := CompilePendingMatcher(`update_time < timestamp("2026-03-01T00:00:00Z")`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !match(Fields{UpdateTime: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}) {
		t.Fatal("expected earlier update to match")
	}
	if match(Fields{UpdateTime: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}) {
		t.Fatal("expected later update not to match")
	}
}
