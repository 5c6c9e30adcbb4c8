package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to tell "no such entity" apart from transport or data
// corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrAlreadyExists indicates an insert collided with an existing key.
var ErrAlreadyExists = apperrors.New(apperrors.CodeConflict, "record already exists")

// WorldRecord captures world-level clock and flag state.
type WorldRecord struct {
	ID             string
	Name           string
	CurrentSceneID string
	TimeOfDay      string
	TurnCount      int
	Flags          []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasFlag reports whether a world flag is set.
func (w WorldRecord) HasFlag(flag string) bool {
	for _, f := range w.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ItemStack is an inventory line with a quantity.
type ItemStack struct {
	Name        string
	Description string
	Quantity    int
}

// CharacterRecord captures a player character's mutable state. SheetJSON is the
// free-form character sheet compendium facts are read from.
type CharacterRecord struct {
	ID          string
	WorldID     string
	Name        string
	Description string
	LocationID  string
	Stats       map[string]int
	Inventory   []ItemStack
	Conditions  []outcome.CharacterCondition
	SheetJSON   string
	UpdatedAt   time.Time
}

// OpinionRecord is an NPC's opinion of another character.
type OpinionRecord struct {
	Value  int
	Reason string
}

// NPCRecord captures a non-player character. Relationships is sentiment toward
// player characters keyed by character id.
type NPCRecord struct {
	ID            string
	WorldID       string
	RegionID      string
	Name          string
	Motivation    string
	Relationships map[string]float64
	Opinions      map[string]OpinionRecord
	UpdatedAt     time.Time
}

// SceneRecord names a scene a world can switch to.
type SceneRecord struct {
	ID      string
	WorldID string
	Name    string
}

// SkillRecord names a skill challenges test.
type SkillRecord struct {
	ID      string
	WorldID string
	Name    string
}

// ChainRecord is an ordered list of event ids that unlock one another.
type ChainRecord struct {
	ID       string
	WorldID  string
	Name     string
	EventIDs []string
}

// Next returns the event following eventID in the chain.
func (c ChainRecord) Next(eventID string) (string, bool) {
	for i, id := range c.EventIDs {
		if id == eventID && i+1 < len(c.EventIDs) {
			return c.EventIDs[i+1], true
		}
	}
	return "", false
}

// EventCompletionRecord records a character completing a narrative event.
type EventCompletionRecord struct {
	WorldID     string
	CharacterID string
	EventID     string
	Outcome     string
	Turn        int
	CompletedAt time.Time
}

// ChallengeCompletionRecord records a character resolving a challenge.
type ChallengeCompletionRecord struct {
	WorldID     string
	CharacterID string
	ChallengeID string
	Success     bool
	CompletedAt time.Time
}

// LoreRecord is revealed information.
type LoreRecord struct {
	WorldID     string
	CharacterID string
	Info        string
	Persisted   bool
	RevealedAt  time.Time
}

// PendingApprovalRecord is the durable form of a pending approval. Payload is
// the serialized entry; the other columns exist for listing and filtering.
type PendingApprovalRecord struct {
	ResolutionID string
	WorldID      string
	CharacterID  string
	Kind         string
	State        string
	Payload      []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SettingsRecord stores per-world generation settings.
type SettingsRecord struct {
	WorldID         string
	BranchCount     int
	TokensPerBranch int
	FailurePolicy   string
	UpdatedAt       time.Time
}

// WorldStore persists worlds.
type WorldStore interface {
	GetWorld(ctx context.Context, worldID string) (WorldRecord, error)
	PutWorld(ctx context.Context, world WorldRecord) error
	GetScene(ctx context.Context, sceneID string) (SceneRecord, error)
	PutScene(ctx context.Context, scene SceneRecord) error
}

// CharacterStore persists player characters.
type CharacterStore interface {
	GetCharacter(ctx context.Context, characterID string) (CharacterRecord, error)
	PutCharacter(ctx context.Context, character CharacterRecord) error
}

// NPCStore persists non-player characters.
type NPCStore interface {
	GetNPC(ctx context.Context, npcID string) (NPCRecord, error)
	PutNPC(ctx context.Context, npc NPCRecord) error
	// ListNPCsInRegion returns every NPC of a world; an empty regionID
	// matches all regions.
	ListNPCsInRegion(ctx context.Context, worldID, regionID string) ([]NPCRecord, error)
}

// EventStore persists narrative events and chains.
type EventStore interface {
	GetEvent(ctx context.Context, worldID, eventID string) (*narrative.NarrativeEvent, error)
	PutEvent(ctx context.Context, event *narrative.NarrativeEvent) error
	// CompleteEvent loads, completes and saves an event atomically and
	// returns the saved event. Errors from NarrativeEvent.Complete pass
	// through unwrapped.
	CompleteEvent(ctx context.Context, worldID, eventID string, at time.Time, outcome string) (*narrative.NarrativeEvent, error)
	SetEventActive(ctx context.Context, worldID, eventID string, active bool) error
	DeleteEvent(ctx context.Context, worldID, eventID string) error
	// ListEvents returns events in authoring order; an empty regionID
	// matches all regions, otherwise world-wide events are included too.
	ListEvents(ctx context.Context, worldID, regionID string) ([]*narrative.NarrativeEvent, error)
	GetChain(ctx context.Context, worldID, chainID string) (ChainRecord, error)
	PutChain(ctx context.Context, chain ChainRecord) error
	ListChains(ctx context.Context, worldID string) ([]ChainRecord, error)
}

// ChallengeStore persists challenges and skills.
type ChallengeStore interface {
	GetChallenge(ctx context.Context, worldID, challengeID string) (challenge.Challenge, error)
	PutChallenge(ctx context.Context, c challenge.Challenge) error
	ListChallenges(ctx context.Context, worldID string) ([]challenge.Challenge, error)
	GetSkill(ctx context.Context, worldID, skillID string) (SkillRecord, error)
	PutSkill(ctx context.Context, skill SkillRecord) error
}

// ProgressStore persists per-character completion facts.
type ProgressStore interface {
	RecordEventCompletion(ctx context.Context, rec EventCompletionRecord) error
	ListEventCompletions(ctx context.Context, worldID, characterID string) ([]EventCompletionRecord, error)
	RecordChallengeCompletion(ctx context.Context, rec ChallengeCompletionRecord) error
	ListChallengeCompletions(ctx context.Context, worldID, characterID string) ([]ChallengeCompletionRecord, error)
}

// LoreStore reads revealed information.
type LoreStore interface {
	ListLore(ctx context.Context, worldID string) ([]LoreRecord, error)
}

// SettingsStore persists per-world settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, worldID string) (SettingsRecord, error)
	PutSettings(ctx context.Context, rec SettingsRecord) error
}

// PendingApprovalStore is the durable pending-approval journal.
type PendingApprovalStore interface {
	PutPendingApproval(ctx context.Context, rec PendingApprovalRecord) error
	DeletePendingApproval(ctx context.Context, resolutionID string) error
	// ListPendingApprovals returns records of a world matching an AIP-160
	// filter; an empty worldID lists every world.
	ListPendingApprovals(ctx context.Context, worldID, filter string) ([]PendingApprovalRecord, error)
}

// Store is the full persistence surface a narrator deployment wires.
type Store interface {
	WorldStore
	CharacterStore
	NPCStore
	EventStore
	ChallengeStore
	ProgressStore
	LoreStore
	SettingsStore
	PendingApprovalStore
	outcome.WorldState
	Close() error
}
