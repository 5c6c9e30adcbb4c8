package narrative

// ConditionKind names a trigger condition variant.
type ConditionKind string

const (
	KindFlagSet            ConditionKind = "flag_set"
	KindFlagNotSet         ConditionKind = "flag_not_set"
	KindPlayerAtLocation   ConditionKind = "player_at_location"
	KindHasItem            ConditionKind = "has_item"
	KindMissingItem        ConditionKind = "missing_item"
	KindEventCompleted     ConditionKind = "event_completed"
	KindTurnCount          ConditionKind = "turn_count"
	KindChallengeCompleted ConditionKind = "challenge_completed"
	KindDialogueTopic      ConditionKind = "dialogue_topic"
	KindTimeAtLocation     ConditionKind = "time_at_location"
	KindNPCAction          ConditionKind = "npc_action"
	KindRelationship       ConditionKind = "relationship_threshold"
	KindStatThreshold      ConditionKind = "stat_threshold"
	KindKnowsSpell         ConditionKind = "knows_spell"
	KindHasFeat            ConditionKind = "has_feat"
	KindHasClass           ConditionKind = "has_class"
	KindHasOrigin          ConditionKind = "has_origin"
	KindKnowsCreature      ConditionKind = "knows_creature"
	KindCustom             ConditionKind = "custom"
	KindCombatResult       ConditionKind = "combat_result"
)

// Condition is one typed trigger predicate. The set of implementations is
// closed; Evaluate switches over it exhaustively.
type Condition interface {
	Kind() ConditionKind
}

// FlagSet matches when the flag is set to true.
type FlagSet struct {
	Flag string `json:"flag" yaml:"flag"`
}

// FlagNotSet matches when the flag is absent or false.
type FlagNotSet struct {
	Flag string `json:"flag" yaml:"flag"`
}

// PlayerAtLocation matches when the PC stands at LocationID.
type PlayerAtLocation struct {
	LocationID string `json:"location_id" yaml:"location_id"`
}

// HasItem matches when the PC carries at least Quantity copies of Item.
// A zero Quantity means one.
type HasItem struct {
	Item     string `json:"item" yaml:"item"`
	Quantity int    `json:"quantity,omitempty" yaml:"quantity,omitempty"`
}

// MissingItem matches when the PC carries no copy of Item.
type MissingItem struct {
	Item string `json:"item" yaml:"item"`
}

// EventCompleted matches when EventID has completed, optionally with the
// named outcome selected.
type EventCompleted struct {
	EventID string `json:"event_id" yaml:"event_id"`
	Outcome string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// TurnCount matches when at least Turns turns have passed, counted from the
// start of play or, when SinceEvent is set, from that event's completion.
type TurnCount struct {
	Turns      int    `json:"turns" yaml:"turns"`
	SinceEvent string `json:"since_event,omitempty" yaml:"since_event,omitempty"`
}

// ChallengeCompleted matches when ChallengeID was resolved. RequireSuccess
// restricts the match to a successful (true) or failed (false) resolution.
type ChallengeCompleted struct {
	ChallengeID    string `json:"challenge_id" yaml:"challenge_id"`
	RequireSuccess *bool  `json:"require_success,omitempty" yaml:"require_success,omitempty"`
}

// DialogueTopic matches when any recent dialogue topic contains Keyword,
// ignoring case.
type DialogueTopic struct {
	Keyword string `json:"keyword" yaml:"keyword"`
}

// TimeAtLocation matches when the PC is at LocationID and the time of day
// equals TimeOfDay, ignoring case and surrounding space.
type TimeAtLocation struct {
	LocationID string `json:"location_id" yaml:"location_id"`
	TimeOfDay  string `json:"time_of_day" yaml:"time_of_day"`
}

// NPCAction matches when any recent NPC action contains Keyword, ignoring case.
type NPCAction struct {
	Keyword string `json:"keyword" yaml:"keyword"`
}

// RelationshipThreshold matches when the NPC's sentiment toward the PC lies
// within [Min, Max]. A nil bound is unconstrained.
type RelationshipThreshold struct {
	NPCID string   `json:"npc_id" yaml:"npc_id"`
	Min   *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// StatThreshold matches when the PC's stat lies within [Min, Max]. A nil
// bound is unconstrained.
type StatThreshold struct {
	Stat string `json:"stat" yaml:"stat"`
	Min  *int   `json:"min,omitempty" yaml:"min,omitempty"`
	Max  *int   `json:"max,omitempty" yaml:"max,omitempty"`
}

// KnowsSpell matches when the PC's sheet lists Spell.
type KnowsSpell struct {
	Spell string `json:"spell" yaml:"spell"`
}

// HasFeat matches when the PC's sheet lists Feat.
type HasFeat struct {
	Feat string `json:"feat" yaml:"feat"`
}

// HasClass matches when the PC has levels in Class, at least MinLevel when set.
type HasClass struct {
	Class    string `json:"class" yaml:"class"`
	MinLevel int    `json:"min_level,omitempty" yaml:"min_level,omitempty"`
}

// HasOrigin matches the PC's origin (race/ancestry).
type HasOrigin struct {
	Origin string `json:"origin" yaml:"origin"`
}

// KnowsCreature matches when the PC knows about Creature.
type KnowsCreature struct {
	Creature string `json:"creature" yaml:"creature"`
}

// Custom is judged out of band by the generation backend; the verdict is
// looked up by Description in the context.
type Custom struct {
	Description string `json:"description" yaml:"description"`
}

// CombatResult is reserved for combat outcomes. Combat resolution does not
// feed trigger contexts yet, so it never matches.
type CombatResult struct {
	Result string `json:"result,omitempty" yaml:"result,omitempty"`
}

func (FlagSet) Kind() ConditionKind               { return KindFlagSet }
func (FlagNotSet) Kind() ConditionKind            { return KindFlagNotSet }
func (PlayerAtLocation) Kind() ConditionKind      { return KindPlayerAtLocation }
func (HasItem) Kind() ConditionKind               { return KindHasItem }
func (MissingItem) Kind() ConditionKind           { return KindMissingItem }
func (EventCompleted) Kind() ConditionKind        { return KindEventCompleted }
func (TurnCount) Kind() ConditionKind             { return KindTurnCount }
func (ChallengeCompleted) Kind() ConditionKind    { return KindChallengeCompleted }
func (DialogueTopic) Kind() ConditionKind         { return KindDialogueTopic }
func (TimeAtLocation) Kind() ConditionKind        { return KindTimeAtLocation }
func (NPCAction) Kind() ConditionKind             { return KindNPCAction }
func (RelationshipThreshold) Kind() ConditionKind { return KindRelationship }
func (StatThreshold) Kind() ConditionKind         { return KindStatThreshold }
func (KnowsSpell) Kind() ConditionKind            { return KindKnowsSpell }
func (HasFeat) Kind() ConditionKind               { return KindHasFeat }
func (HasClass) Kind() ConditionKind              { return KindHasClass }
func (HasOrigin) Kind() ConditionKind             { return KindHasOrigin }
func (KnowsCreature) Kind() ConditionKind         { return KindKnowsCreature }
func (Custom) Kind() ConditionKind                { return KindCustom }
func (CombatResult) Kind() ConditionKind          { return KindCombatResult }

// NewCondition returns a zero value of the variant named by kind, ready to be
// decoded into. It reports false for unknown kinds.
func NewCondition(kind ConditionKind) (Condition, bool) {
	switch kind {
	case KindFlagSet:
		return &FlagSet{}, true
	case KindFlagNotSet:
		return &FlagNotSet{}, true
	case KindPlayerAtLocation:
		return &PlayerAtLocation{}, true
	case KindHasItem:
		return &HasItem{}, true
	case KindMissingItem:
		return &MissingItem{}, true
	case KindEventCompleted:
		return &EventCompleted{}, true
	case KindTurnCount:
		return &TurnCount{}, true
	case KindChallengeCompleted:
		return &ChallengeCompleted{}, true
	case KindDialogueTopic:
		return &DialogueTopic{}, true
	case KindTimeAtLocation:
		return &TimeAtLocation{}, true
	case KindNPCAction:
		return &NPCAction{}, true
	case KindRelationship:
		return &RelationshipThreshold{}, true
	case KindStatThreshold:
		return &StatThreshold{}, true
	case KindKnowsSpell:
		return &KnowsSpell{}, true
	case KindHasFeat:
		return &HasFeat{}, true
	case KindHasClass:
		return &HasClass{}, true
	case KindHasOrigin:
		return &HasOrigin{}, true
	case KindKnowsCreature:
		return &KnowsCreature{}, true
	case KindCustom:
		return &Custom{}, true
	case KindCombatResult:
		return &CombatResult{}, true
	default:
		return nil, false
	}
}

// Deref converts a pointer variant produced by NewCondition into its value
// form so callers never hold two representations of the same condition.
func Deref(c Condition) Condition {
	switch v := c.(type) {
	case *FlagSet:
		return *v
	case *FlagNotSet:
		return *v
	case *PlayerAtLocation:
		return *v
	case *HasItem:
		return *v
	case *MissingItem:
		return *v
	case *EventCompleted:
		return *v
	case *TurnCount:
		return *v
	case *ChallengeCompleted:
		return *v
	case *DialogueTopic:
		return *v
	case *TimeAtLocation:
		return *v
	case *NPCAction:
		return *v
	case *RelationshipThreshold:
		return *v
	case *StatThreshold:
		return *v
	case *KnowsSpell:
		return *v
	case *HasFeat:
		return *v
	case *HasClass:
		return *v
	case *HasOrigin:
		return *v
	case *KnowsCreature:
		return *v
	case *Custom:
		return *v
	case *CombatResult:
		return *v
	default:
		return c
	}
}

// TriggerCondition is one named condition instance attached to an event.
type TriggerCondition struct {
	ID          string
	Condition   Condition
	Required    bool
	Description string
}
