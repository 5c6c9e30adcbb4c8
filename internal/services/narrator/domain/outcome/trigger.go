package outcome

// TriggerKind names an outcome trigger variant.
type TriggerKind string

const (
	TriggerRevealInformation   TriggerKind = "reveal_information"
	TriggerEnableChallenge     TriggerKind = "enable_challenge"
	TriggerDisableChallenge    TriggerKind = "disable_challenge"
	TriggerModifyCharacterStat TriggerKind = "modify_character_stat"
	TriggerScene               TriggerKind = "trigger_scene"
	TriggerGiveItem            TriggerKind = "give_item"
	TriggerCustom              TriggerKind = "custom"
)

// Trigger is one instruction attached to a challenge or event outcome.
type Trigger interface {
	TriggerKind() TriggerKind
}

// RevealInformation records lore for the world, optionally persisted to the
// active character's journal.
type RevealInformation struct {
	Info    string `json:"info"`
	Persist bool   `json:"persist,omitempty"`
}

// EnableChallenge makes a challenge available.
type EnableChallenge struct {
	ChallengeID string `json:"challenge_id"`
}

// DisableChallenge hides a challenge.
type DisableChallenge struct {
	ChallengeID string `json:"challenge_id"`
}

// ModifyCharacterStat adds Delta to a stat of Character. An empty Character
// or ActivePC means the character who originated the roll.
type ModifyCharacterStat struct {
	Character string `json:"character,omitempty"`
	Stat      string `json:"stat"`
	Delta     int    `json:"delta"`
}

// StartScene switches the world's current scene.
type StartScene struct {
	SceneID string `json:"scene_id"`
}

// GiveItem adds an item to the active character.
type GiveItem struct {
	ItemName        string `json:"item_name"`
	ItemDescription string `json:"item_description,omitempty"`
}

// CustomTrigger is free text for the game master; it changes no state.
type CustomTrigger struct {
	Description string `json:"description"`
}

func (RevealInformation) TriggerKind() TriggerKind   { return TriggerRevealInformation }
func (EnableChallenge) TriggerKind() TriggerKind     { return TriggerEnableChallenge }
func (DisableChallenge) TriggerKind() TriggerKind    { return TriggerDisableChallenge }
func (ModifyCharacterStat) TriggerKind() TriggerKind { return TriggerModifyCharacterStat }
func (StartScene) TriggerKind() TriggerKind          { return TriggerScene }
func (GiveItem) TriggerKind() TriggerKind            { return TriggerGiveItem }
func (CustomTrigger) TriggerKind() TriggerKind       { return TriggerCustom }
