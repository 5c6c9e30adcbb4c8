// Package catalog loads authored world content (narrative events, chains,
// challenges, skills and scenes) from YAML files and imports it into storage.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
	"gopkg.in/yaml.v3"
)

// Catalog is the decoded content of one world file.
type Catalog struct {
	WorldID    string
	Scenes     []storage.SceneRecord
	Skills     []storage.SkillRecord
	Events     []*narrative.NarrativeEvent
	Chains     []storage.ChainRecord
	Challenges []challenge.Challenge
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	worldID := strings.TrimSpace(file.World)
	if worldID == "" {
		return nil, fmt.Errorf("world is required")
	}
	out := &Catalog{WorldID: worldID}
	for _, s := range file.Scenes {
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("scene id is required")
		}
		out.Scenes = append(out.Scenes, storage.SceneRecord{ID: s.ID, WorldID: worldID, Name: s.Name})
	}
	for _, s := range file.Skills {
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("skill id is required")
		}
		out.Skills = append(out.Skills, storage.SkillRecord{ID: s.ID, WorldID: worldID, Name: s.Name})
	}

	eventIDs := make(map[string]struct{}, len(file.Events))
	for _, rec := range file.Events {
		e, err := toEvent(worldID, rec)
		if err != nil {
			return nil, err
		}
		if _, dup := eventIDs[e.ID]; dup {
			return nil, fmt.Errorf("duplicate event id %q", e.ID)
		}
		eventIDs[e.ID] = struct{}{}
		out.Events = append(out.Events, e)
	}
	for _, rec := range file.Chains {
		if strings.TrimSpace(rec.ID) == "" {
			return nil, fmt.Errorf("chain id is required")
		}
		for _, id := range rec.Events {
			if _, ok := eventIDs[id]; !ok {
				return nil, fmt.Errorf("chain %q references unknown event %q", rec.ID, id)
			}
		}
		out.Chains = append(out.Chains, storage.ChainRecord{
			ID:       rec.ID,
			WorldID:  worldID,
			Name:     rec.Name,
			EventIDs: append([]string(nil), rec.Events...),
		})
	}
	for _, rec := range file.Challenges {
		c, err := toChallenge(worldID, rec)
		if err != nil {
			return nil, err
		}
		out.Challenges = append(out.Challenges, c)
	}
	return out, nil
}

// nodeJSON re-encodes a YAML node as JSON so domain decoders keep one set of
// field names.
func nodeJSON(node yaml.Node) ([]byte, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func toEvent(worldID string, rec eventRecord) (*narrative.NarrativeEvent, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return nil, fmt.Errorf("event id is required")
	}
	logic, err := narrative.ParseLogic(rec.Logic, rec.MinMatches)
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", rec.ID, err)
	}
	e := narrative.NewEvent(rec.ID, worldID, rec.Name)
	e.Description = rec.Description
	e.RegionID = rec.Region
	e.Logic = logic
	e.Timing = narrative.Timing{DelayTurns: rec.DelayTurns, ExpiryTurns: rec.ExpiryTurns}
	e.ChainID = rec.Chain
	e.SetPriority(rec.Priority)
	if rec.Repeatable {
		e.SetRepeatability(narrative.Repeatable)
	}
	if rec.Active != nil {
		e.SetActive(*rec.Active)
	}
	for _, cr := range rec.Conditions {
		args, err := nodeJSON(cr.Args)
		if err != nil {
			return nil, fmt.Errorf("event %q condition %q: %w", rec.ID, cr.ID, err)
		}
		c, err := narrative.DecodeCondition(narrative.ConditionKind(cr.Kind), args)
		if err != nil {
			return nil, fmt.Errorf("event %q condition %q: %w", rec.ID, cr.ID, err)
		}
		e.Conditions = append(e.Conditions, narrative.TriggerCondition{
			ID:          cr.ID,
			Condition:   c,
			Required:    cr.Required,
			Description: cr.Description,
		})
	}
	for _, o := range rec.Outcomes {
		e.Outcomes = append(e.Outcomes, narrative.Outcome{Name: o.Name, Description: o.Description})
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func toTriggers(records []triggerRecord) ([]outcome.Trigger, error) {
	out := make([]outcome.Trigger, 0, len(records))
	for _, tr := range records {
		args, err := nodeJSON(tr.Args)
		if err != nil {
			return nil, err
		}
		t, err := outcome.DecodeTrigger(outcome.TriggerKind(tr.Kind), args)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func toChallengeOutcome(rec challengeOutcomeRecord) (challenge.Outcome, error) {
	triggers, err := toTriggers(rec.Triggers)
	if err != nil {
		return challenge.Outcome{}, err
	}
	return challenge.Outcome{Description: rec.Description, Triggers: triggers}, nil
}

func toChallenge(worldID string, rec challengeRecord) (challenge.Challenge, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return challenge.Challenge{}, fmt.Errorf("challenge id is required")
	}
	if rec.DC <= 0 {
		return challenge.Challenge{}, fmt.Errorf("challenge %q: dc must be positive", rec.ID)
	}
	c := challenge.Challenge{
		ID:          rec.ID,
		WorldID:     worldID,
		Name:        rec.Name,
		Description: rec.Description,
		Skill:       rec.Skill,
		DC:          rec.DC,
		Active:      rec.Active == nil || *rec.Active,
	}
	var err error
	if c.Outcomes.Success, err = toChallengeOutcome(rec.Outcomes.Success); err != nil {
		return challenge.Challenge{}, fmt.Errorf("challenge %q success: %w", rec.ID, err)
	}
	if c.Outcomes.Failure, err = toChallengeOutcome(rec.Outcomes.Failure); err != nil {
		return challenge.Challenge{}, fmt.Errorf("challenge %q failure: %w", rec.ID, err)
	}
	if rec.Outcomes.CriticalSuccess != nil {
		cs, err := toChallengeOutcome(*rec.Outcomes.CriticalSuccess)
		if err != nil {
			return challenge.Challenge{}, fmt.Errorf("challenge %q critical success: %w", rec.ID, err)
		}
		c.Outcomes.CriticalSuccess = &cs
	}
	if rec.Outcomes.CriticalFailure != nil {
		cf, err := toChallengeOutcome(*rec.Outcomes.CriticalFailure)
		if err != nil {
			return challenge.Challenge{}, fmt.Errorf("challenge %q critical failure: %w", rec.ID, err)
		}
		c.Outcomes.CriticalFailure = &cf
	}
	return c, nil
}
