package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

type challengeOutcomeJSON struct {
	Description string          `json:"description"`
	Triggers    json.RawMessage `json:"triggers,omitempty"`
}

type challengeOutcomesJSON struct {
	Success         challengeOutcomeJSON  `json:"success"`
	Failure         challengeOutcomeJSON  `json:"failure"`
	CriticalSuccess *challengeOutcomeJSON `json:"critical_success,omitempty"`
	CriticalFailure *challengeOutcomeJSON `json:"critical_failure,omitempty"`
}

func encodeChallengeOutcome(o challenge.Outcome) (challengeOutcomeJSON, error) {
	triggers, err := outcome.MarshalTriggers(o.Triggers)
	if err != nil {
		return challengeOutcomeJSON{}, err
	}
	return challengeOutcomeJSON{Description: o.Description, Triggers: triggers}, nil
}

func decodeChallengeOutcome(o challengeOutcomeJSON) (challenge.Outcome, error) {
	triggers, err := outcome.UnmarshalTriggers(o.Triggers)
	if err != nil {
		return challenge.Outcome{}, err
	}
	return challenge.Outcome{Description: o.Description, Triggers: triggers}, nil
}

func encodeOutcomes(o challenge.Outcomes) (string, error) {
	var doc challengeOutcomesJSON
	var err error
	if doc.Success, err = encodeChallengeOutcome(o.Success); err != nil {
		return "", err
	}
	if doc.Failure, err = encodeChallengeOutcome(o.Failure); err != nil {
		return "", err
	}
	if o.CriticalSuccess != nil {
		cs, err := encodeChallengeOutcome(*o.CriticalSuccess)
		if err != nil {
			return "", err
		}
		doc.CriticalSuccess = &cs
	}
	if o.CriticalFailure != nil {
		cf, err := encodeChallengeOutcome(*o.CriticalFailure)
		if err != nil {
			return "", err
		}
		doc.CriticalFailure = &cf
	}
	return encodeJSON(doc)
}

func decodeOutcomes(raw string) (challenge.Outcomes, error) {
	var doc challengeOutcomesJSON
	if err := decodeJSON(raw, &doc); err != nil {
		return challenge.Outcomes{}, err
	}
	var out challenge.Outcomes
	var err error
	if out.Success, err = decodeChallengeOutcome(doc.Success); err != nil {
		return challenge.Outcomes{}, err
	}
	if out.Failure, err = decodeChallengeOutcome(doc.Failure); err != nil {
		return challenge.Outcomes{}, err
	}
	if doc.CriticalSuccess != nil {
		cs, err := decodeChallengeOutcome(*doc.CriticalSuccess)
		if err != nil {
			return challenge.Outcomes{}, err
		}
		out.CriticalSuccess = &cs
	}
	if doc.CriticalFailure != nil {
		cf, err := decodeChallengeOutcome(*doc.CriticalFailure)
		if err != nil {
			return challenge.Outcomes{}, err
		}
		out.CriticalFailure = &cf
	}
	return out, nil
}

const challengeColumns = `world_id, id, name, description, skill, dc, active, outcomes_json`

func scanChallenge(scan scanner) (challenge.Challenge, error) {
	var (
		c        challenge.Challenge
		active   int
		outcomes string
	)
	if err := scan(&c.WorldID, &c.ID, &c.Name, &c.Description, &c.Skill, &c.DC, &active, &outcomes); err != nil {
		return challenge.Challenge{}, err
	}
	c.Active = active != 0
	o, err := decodeOutcomes(outcomes)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("decode challenge %s outcomes: %w", c.ID, err)
	}
	c.Outcomes = o
	return c, nil
}

// GetChallenge implements storage.ChallengeStore.
func (s *Store) GetChallenge(ctx context.Context, worldID, challengeID string) (challenge.Challenge, error) {
	if err := s.ready(ctx); err != nil {
		return challenge.Challenge{}, err
	}
	c, err := scanChallenge(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE world_id = ? AND id = ?`, worldID, challengeID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return challenge.Challenge{}, storage.ErrNotFound
	}
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

// PutChallenge implements storage.ChallengeStore.
func (s *Store) PutChallenge(ctx context.Context, c challenge.Challenge) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("challenge id", c.ID); err != nil {
		return err
	}
	outcomes, err := encodeOutcomes(c.Outcomes)
	if err != nil {
		return fmt.Errorf("encode challenge outcomes: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO challenges (`+challengeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(world_id, id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    skill = excluded.skill,
    dc = excluded.dc,
    active = excluded.active,
    outcomes_json = excluded.outcomes_json`,
		c.WorldID, c.ID, c.Name, c.Description, c.Skill, c.DC, boolInt(c.Active), outcomes,
	)
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// ListChallenges implements storage.ChallengeStore.
func (s *Store) ListChallenges(ctx context.Context, worldID string) ([]challenge.Challenge, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE world_id = ? ORDER BY id`, worldID)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()
	var out []challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenges: %w", err)
	}
	return out, nil
}

// GetSkill implements storage.ChallengeStore.
func (s *Store) GetSkill(ctx context.Context, worldID, skillID string) (storage.SkillRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SkillRecord{}, err
	}
	skill := storage.SkillRecord{WorldID: worldID}
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id, name FROM skills WHERE world_id = ? AND id = ?`, worldID, skillID).
		Scan(&skill.ID, &skill.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SkillRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SkillRecord{}, fmt.Errorf("get skill: %w", err)
	}
	return skill, nil
}

// PutSkill implements storage.ChallengeStore.
func (s *Store) PutSkill(ctx context.Context, skill storage.SkillRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("skill id", skill.ID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO skills (world_id, id, name) VALUES (?, ?, ?)
ON CONFLICT(world_id, id) DO UPDATE SET name = excluded.name`,
		skill.WorldID, skill.ID, skill.Name)
	if err != nil {
		return fmt.Errorf("put skill: %w", err)
	}
	return nil
}
