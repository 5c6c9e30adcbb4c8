package outcome

import (
	"encoding/json"
	"fmt"
)

// Envelope is the persisted form of a trigger or tool call.
type Envelope struct {
	Kind string          `json:"kind"`
	Args json.RawMessage `json:"args"`
}

// DecodeTrigger decodes trigger arguments for a known kind.
func DecodeTrigger(kind TriggerKind, args []byte) (Trigger, error) {
	switch kind {
	case TriggerRevealInformation:
		return decodeInto[RevealInformation](args)
	case TriggerEnableChallenge:
		return decodeInto[EnableChallenge](args)
	case TriggerDisableChallenge:
		return decodeInto[DisableChallenge](args)
	case TriggerModifyCharacterStat:
		return decodeInto[ModifyCharacterStat](args)
	case TriggerScene:
		return decodeInto[StartScene](args)
	case TriggerGiveItem:
		return decodeInto[GiveItem](args)
	case TriggerCustom:
		return decodeInto[CustomTrigger](args)
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", kind)
	}
}

// DecodeToolCall decodes tool arguments for a known tool name.
func DecodeToolCall(name ToolName, args []byte) (ToolCall, error) {
	switch name {
	case ToolGiveItem:
		return decodeInto[GiveItemCall](args)
	case ToolRevealInfo:
		return decodeInto[RevealInfoCall](args)
	case ToolChangeRelationship:
		return decodeInto[ChangeRelationshipCall](args)
	case ToolTriggerEvent:
		return decodeInto[TriggerEventCall](args)
	case ToolModifyNPCMotivation:
		return decodeInto[ModifyNPCMotivationCall](args)
	case ToolModifyCharacterDescription:
		return decodeInto[ModifyCharacterDescriptionCall](args)
	case ToolModifyNPCOpinion:
		return decodeInto[ModifyNPCOpinionCall](args)
	case ToolTransferItem:
		return decodeInto[TransferItemCall](args)
	case ToolAddCondition:
		return decodeInto[AddConditionCall](args)
	case ToolRemoveCondition:
		return decodeInto[RemoveConditionCall](args)
	case ToolUpdateCharacterStat:
		return decodeInto[UpdateCharacterStatCall](args)
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

func decodeInto[T any](args []byte) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// MarshalTriggers encodes triggers as a JSON array of envelopes.
func MarshalTriggers(triggers []Trigger) ([]byte, error) {
	out := make([]Envelope, 0, len(triggers))
	for _, t := range triggers {
		if t == nil {
			continue
		}
		args, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode trigger %s: %w", t.TriggerKind(), err)
		}
		out = append(out, Envelope{Kind: string(t.TriggerKind()), Args: args})
	}
	return json.Marshal(out)
}

// UnmarshalTriggers decodes the output of MarshalTriggers.
func UnmarshalTriggers(data []byte) ([]Trigger, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var envelopes []Envelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("decode triggers: %w", err)
	}
	out := make([]Trigger, 0, len(envelopes))
	for _, env := range envelopes {
		t, err := DecodeTrigger(TriggerKind(env.Kind), env.Args)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// MarshalToolCalls encodes tool calls as a JSON array of envelopes.
func MarshalToolCalls(calls []ToolCall) ([]byte, error) {
	out := make([]Envelope, 0, len(calls))
	for _, c := range calls {
		if c == nil {
			continue
		}
		args, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encode tool call %s: %w", c.Tool(), err)
		}
		out = append(out, Envelope{Kind: string(c.Tool()), Args: args})
	}
	return json.Marshal(out)
}

// UnmarshalToolCalls decodes the output of MarshalToolCalls.
func UnmarshalToolCalls(data []byte) ([]ToolCall, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var envelopes []Envelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}
	out := make([]ToolCall, 0, len(envelopes))
	for _, env := range envelopes {
		c, err := DecodeToolCall(ToolName(env.Kind), env.Args)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
