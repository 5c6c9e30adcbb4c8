package outcome

import "time"

// ChangeKind names a StateChange variant.
type ChangeKind string

const (
	ChangeItemAdded                  ChangeKind = "item_added"
	ChangeInfoRevealed               ChangeKind = "info_revealed"
	ChangeRelationshipChanged        ChangeKind = "relationship_changed"
	ChangeEventTriggered             ChangeKind = "event_triggered"
	ChangeCharacterStatUpdated       ChangeKind = "character_stat_updated"
	ChangeNPCMotivationChanged       ChangeKind = "npc_motivation_changed"
	ChangeCharacterDescriptionUpdate ChangeKind = "character_description_updated"
	ChangeNPCOpinionChanged          ChangeKind = "npc_opinion_changed"
	ChangeConditionAdded             ChangeKind = "condition_added"
	ChangeConditionRemoved           ChangeKind = "condition_removed"
	ChangeItemTransferred            ChangeKind = "item_transferred"
	ChangeChallengeEnabled           ChangeKind = "challenge_enabled"
	ChangeChallengeDisabled          ChangeKind = "challenge_disabled"
	ChangeSceneTriggered             ChangeKind = "scene_triggered"
)

// StateChange is an append-only audit and broadcast record of one mutation.
// Values are never modified after creation.
type StateChange struct {
	Kind        ChangeKind `json:"kind"`
	WorldID     string     `json:"world_id"`
	CharacterID string     `json:"character_id,omitempty"`
	NPCID       string     `json:"npc_id,omitempty"`
	TargetID    string     `json:"target_id,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	Text        string     `json:"text,omitempty"`
	OldValue    float64    `json:"old_value,omitempty"`
	NewValue    float64    `json:"new_value,omitempty"`
	Delta       float64    `json:"delta,omitempty"`
	At          time.Time  `json:"at"`
}
