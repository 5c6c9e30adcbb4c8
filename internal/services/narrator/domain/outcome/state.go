package outcome

import "context"

// Item is an inventory entry.
type Item struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CharacterCondition is a named status effect on a character.
type CharacterCondition struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DurationTurns int    `json:"duration_turns,omitempty"`
}

// WorldState is the mutable game state the executor writes through. Boolean
// results report whether the referenced entity exists; a false result is a
// skip, not an error.
//
// The Adjust methods read and write in one atomic step and report the value
// before and after, so concurrent deltas against the same entity all land.
type WorldState interface {
	RevealInformation(ctx context.Context, worldID, characterID, info string, persist bool) error
	SetChallengeActive(ctx context.Context, worldID, challengeID string, active bool) (bool, error)
	AdjustCharacterStat(ctx context.Context, characterID, stat string, delta int) (old, updated int, found bool, err error)
	SetCurrentScene(ctx context.Context, worldID, sceneID string) (bool, error)
	AddItem(ctx context.Context, characterID string, item Item) (bool, error)
	TransferItem(ctx context.Context, fromID, toID, itemName string) (bool, error)
	AdjustRelationship(ctx context.Context, npcID, characterID string, apply func(current float64) float64) (old, updated float64, npcFound bool, err error)
	SetNPCMotivation(ctx context.Context, npcID, motivation string) (bool, error)
	AppendCharacterDescription(ctx context.Context, characterID, text string) (bool, error)
	AdjustNPCOpinion(ctx context.Context, npcID, targetID, reason string, apply func(current int) int) (old, updated int, npcFound bool, err error)
	AddCondition(ctx context.Context, characterID string, condition CharacterCondition) (bool, error)
	RemoveCondition(ctx context.Context, characterID, name string) (bool, error)
	MarkEventTriggered(ctx context.Context, worldID, eventID string) (bool, error)
}
