package challenge

import (
	"testing"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
)

func lockChallenge(withCriticals bool) Challenge {
	c := Challenge{
		ID: "lock",
		DC: 15,
		Outcomes: Outcomes{
			Success: Outcome{Description: "The lock clicks open."},
			Failure: Outcome{Description: "The pick slips."},
		},
	}
	if withCriticals {
		c.Outcomes.CriticalSuccess = &Outcome{Description: "The door swings wide."}
		c.Outcomes.CriticalFailure = &Outcome{Description: "The pick snaps."}
	}
	return c
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		criticals bool
		natural   int
		modifier  int
		want      OutcomeType
	}{
		{name: "nat 20 with critical defined", criticals: true, natural: 20, modifier: -10, want: CriticalSuccess},
		{name: "nat 20 without critical defined", criticals: false, natural: 20, modifier: 0, want: Success},
		{name: "nat 1 with critical defined", criticals: true, natural: 1, modifier: 20, want: CriticalFailure},
		{name: "nat 1 without critical defined meets dc", criticals: false, natural: 1, modifier: 14, want: Success},
		{name: "meets dc exactly", criticals: true, natural: 12, modifier: 3, want: Success},
		{name: "below dc", criticals: true, natural: 11, modifier: 3, want: Failure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Resolve(lockChallenge(tc.criticals), tc.natural, tc.modifier)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if res.Type != tc.want {
				t.Fatalf("type = %q, want %q", res.Type, tc.want)
			}
			if res.Total != tc.natural+tc.modifier {
				t.Fatalf("total = %d, want %d", res.Total, tc.natural+tc.modifier)
			}
		})
	}
}

func TestResolveRejectsImpossibleRoll(t *testing.T) {
	for _, natural := range []int{0, 21} {
		if _, err := Resolve(lockChallenge(false), natural, 0); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
			t.Fatalf("natural %d: err = %v, want INVALID_INPUT", natural, err)
		}
	}
}

func TestParseModifier(t *testing.T) {
	tests := map[string]int{"+3": 3, "-1": -1, "2": 2, "": 0, " + 4 ": 4}
	for in, want := range tests {
		got, err := ParseModifier(in)
		if err != nil {
			t.Fatalf("ParseModifier(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseModifier(%q) = %d, want %d", in, got, want)
		}
	}
	if _, err := ParseModifier("1d6"); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}
