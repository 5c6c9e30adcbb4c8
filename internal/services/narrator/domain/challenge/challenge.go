// Package challenge resolves skill checks against a difficulty class.
package challenge

import (
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
)

// DieSides is the size of the check die.
const DieSides = 20

// OutcomeType classifies a resolved check.
type OutcomeType string

const (
	CriticalSuccess OutcomeType = "critical_success"
	Success         OutcomeType = "success"
	Failure         OutcomeType = "failure"
	CriticalFailure OutcomeType = "critical_failure"
)

// IsSuccess reports whether the outcome counts as passing the check.
func (t OutcomeType) IsSuccess() bool {
	return t == Success || t == CriticalSuccess
}

// Outcome is the narrative consequence of one outcome type.
type Outcome struct {
	Description string            `json:"description"`
	Triggers    []outcome.Trigger `json:"-"`
}

// Outcomes holds the consequences a challenge defines. Critical outcomes are
// optional; when absent, natural 20s and 1s resolve against the DC.
type Outcomes struct {
	Success         Outcome
	Failure         Outcome
	CriticalSuccess *Outcome
	CriticalFailure *Outcome
}

// Challenge is a skill check authored for a world.
type Challenge struct {
	ID          string
	WorldID     string
	Name        string
	Description string
	Skill       string
	DC          int
	Outcomes    Outcomes
	Active      bool
}

// Resolution is the result of rolling against a challenge.
type Resolution struct {
	ChallengeID string
	Type        OutcomeType
	Natural     int
	Modifier    int
	Total       int
	DC          int
	Outcome     Outcome
}

// Resolve classifies a natural die result plus modifier. Natural 20 and 1 only
// become criticals when the challenge defines the matching critical outcome.
func Resolve(c Challenge, natural, modifier int) (Resolution, error) {
	if natural < 1 || natural > DieSides {
		return Resolution{}, apperrors.Newf(apperrors.CodeInvalidInput, "natural roll %d outside 1..%d", natural, DieSides)
	}
	total := natural + modifier
	res := Resolution{
		ChallengeID: c.ID,
		Natural:     natural,
		Modifier:    modifier,
		Total:       total,
		DC:          c.DC,
	}
	switch {
	case natural == DieSides && c.Outcomes.CriticalSuccess != nil:
		res.Type = CriticalSuccess
		res.Outcome = *c.Outcomes.CriticalSuccess
	case natural == 1 && c.Outcomes.CriticalFailure != nil:
		res.Type = CriticalFailure
		res.Outcome = *c.Outcomes.CriticalFailure
	case total >= c.DC:
		res.Type = Success
		res.Outcome = c.Outcomes.Success
	default:
		res.Type = Failure
		res.Outcome = c.Outcomes.Failure
	}
	return res, nil
}

// ParseModifier parses a signed integer modifier such as "+3", "-1" or "2".
// Empty input is zero.
func ParseModifier(formula string) (int, error) {
	s := strings.ReplaceAll(strings.TrimSpace(formula), " ", "")
	if s == "" {
		return 0, nil
	}
	s = strings.TrimPrefix(s, "+")
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperrors.Newf(apperrors.CodeInvalidInput, "invalid modifier %q", formula)
	}
	return v, nil
}
