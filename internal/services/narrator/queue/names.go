package queue

import (
	"context"

	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

// Names resolves display names for references carried by NPC requests.
// Lookups are best-effort; callers fall back to the raw id.
type Names interface {
	ChallengeName(ctx context.Context, worldID, challengeID string) (string, error)
	SkillName(ctx context.Context, worldID, skillID string) (string, error)
	EventName(ctx context.Context, worldID, eventID string) (string, error)
}

// StoreNames resolves names from persisted records.
type StoreNames struct {
	Challenges storage.ChallengeStore
	Events     storage.EventStore
}

// ChallengeName implements Names.
func (n StoreNames) ChallengeName(ctx context.Context, worldID, challengeID string) (string, error) {
	c, err := n.Challenges.GetChallenge(ctx, worldID, challengeID)
	if err != nil {
		return "", err
	}
	return c.Name, nil
}

// SkillName implements Names.
func (n StoreNames) SkillName(ctx context.Context, worldID, skillID string) (string, error) {
	s, err := n.Challenges.GetSkill(ctx, worldID, skillID)
	if err != nil {
		return "", err
	}
	return s.Name, nil
}

// EventName implements Names.
func (n StoreNames) EventName(ctx context.Context, worldID, eventID string) (string, error) {
	e, err := n.Events.GetEvent(ctx, worldID, eventID)
	if err != nil {
		return "", err
	}
	return e.Name, nil
}

func resolveName(ctx context.Context, id string, lookup func(context.Context, string, string) (string, error), worldID string) string {
	if id == "" || lookup == nil {
		return id
	}
	name, err := lookup(ctx, worldID, id)
	if err != nil || name == "" {
		return id
	}
	return name
}
