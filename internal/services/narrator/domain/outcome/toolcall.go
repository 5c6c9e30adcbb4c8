package outcome

import "fmt"

// ActivePC is the symbolic subject resolved to the character who originated
// the surrounding roll or approval.
const ActivePC = "active_pc"

// ToolName names a dialogue tool-call variant.
type ToolName string

const (
	ToolGiveItem                   ToolName = "give_item"
	ToolRevealInfo                 ToolName = "reveal_info"
	ToolChangeRelationship         ToolName = "change_relationship"
	ToolTriggerEvent               ToolName = "trigger_event"
	ToolModifyNPCMotivation        ToolName = "modify_npc_motivation"
	ToolModifyCharacterDescription ToolName = "modify_character_description"
	ToolModifyNPCOpinion           ToolName = "modify_npc_opinion"
	ToolTransferItem               ToolName = "transfer_item"
	ToolAddCondition               ToolName = "add_condition"
	ToolRemoveCondition            ToolName = "remove_condition"
	ToolUpdateCharacterStat        ToolName = "update_character_stat"
)

// ToolNames lists every known tool in a stable order.
var ToolNames = []ToolName{
	ToolGiveItem,
	ToolRevealInfo,
	ToolChangeRelationship,
	ToolTriggerEvent,
	ToolModifyNPCMotivation,
	ToolModifyCharacterDescription,
	ToolModifyNPCOpinion,
	ToolTransferItem,
	ToolAddCondition,
	ToolRemoveCondition,
	ToolUpdateCharacterStat,
}

// ToolCall is one state mutation proposed by the generation backend during
// dialogue.
type ToolCall interface {
	Tool() ToolName
}

// Direction is the sign of a relationship change.
type Direction string

const (
	Improve Direction = "improve"
	Worsen  Direction = "worsen"
)

// Magnitude is the size tier of a relationship change.
type Magnitude string

const (
	Slight      Magnitude = "slight"
	Moderate    Magnitude = "moderate"
	Significant Magnitude = "significant"
)

// Points returns the unsigned size of the tier.
func (m Magnitude) Points() (int, error) {
	switch m {
	case Slight:
		return 10, nil
	case Moderate:
		return 25, nil
	case Significant:
		return 50, nil
	default:
		return 0, fmt.Errorf("unknown magnitude %q", m)
	}
}

// SignedDelta combines a direction and a magnitude.
func SignedDelta(d Direction, m Magnitude) (int, error) {
	points, err := m.Points()
	if err != nil {
		return 0, err
	}
	switch d {
	case Improve:
		return points, nil
	case Worsen:
		return -points, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", d)
	}
}

type GiveItemCall struct {
	ItemName    string `json:"item_name"`
	Description string `json:"description,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
}

type RevealInfoCall struct {
	Info       string `json:"info"`
	Importance string `json:"importance,omitempty"`
}

type ChangeRelationshipCall struct {
	NPCID     string    `json:"npc_id,omitempty"`
	Direction Direction `json:"change"`
	Magnitude Magnitude `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
}

type TriggerEventCall struct {
	EventID     string `json:"event_id"`
	Description string `json:"description,omitempty"`
}

type ModifyNPCMotivationCall struct {
	NPCID      string `json:"npc_id,omitempty"`
	Motivation string `json:"motivation"`
	Reason     string `json:"reason,omitempty"`
}

type ModifyCharacterDescriptionCall struct {
	Character string `json:"character,omitempty"`
	Change    string `json:"change"`
}

type ModifyNPCOpinionCall struct {
	NPCID     string    `json:"npc_id,omitempty"`
	Target    string    `json:"target,omitempty"`
	Direction Direction `json:"change"`
	Magnitude Magnitude `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
}

type TransferItemCall struct {
	From     string `json:"from"`
	To       string `json:"to"`
	ItemName string `json:"item_name"`
}

type AddConditionCall struct {
	Character     string `json:"character,omitempty"`
	Condition     string `json:"condition"`
	Description   string `json:"description,omitempty"`
	DurationTurns int    `json:"duration_turns,omitempty"`
}

type RemoveConditionCall struct {
	Character string `json:"character,omitempty"`
	Condition string `json:"condition"`
}

type UpdateCharacterStatCall struct {
	Character string `json:"character,omitempty"`
	Stat      string `json:"stat"`
	Delta     int    `json:"delta"`
}

func (GiveItemCall) Tool() ToolName                   { return ToolGiveItem }
func (RevealInfoCall) Tool() ToolName                 { return ToolRevealInfo }
func (ChangeRelationshipCall) Tool() ToolName         { return ToolChangeRelationship }
func (TriggerEventCall) Tool() ToolName               { return ToolTriggerEvent }
func (ModifyNPCMotivationCall) Tool() ToolName        { return ToolModifyNPCMotivation }
func (ModifyCharacterDescriptionCall) Tool() ToolName { return ToolModifyCharacterDescription }
func (ModifyNPCOpinionCall) Tool() ToolName           { return ToolModifyNPCOpinion }
func (TransferItemCall) Tool() ToolName               { return ToolTransferItem }
func (AddConditionCall) Tool() ToolName               { return ToolAddCondition }
func (RemoveConditionCall) Tool() ToolName            { return ToolRemoveCondition }
func (UpdateCharacterStatCall) Tool() ToolName        { return ToolUpdateCharacterStat }
