package generation

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// Structured suggestions travel as function calls next to the tools.
	suggestChallengeTool = "suggest_challenge"
	suggestEventTool     = "suggest_event"
)

const (
	directionSchema = `{"type":"string","enum":["improve","worsen"]}`
	magnitudeSchema = `{"type":"string","enum":["slight","moderate","significant"]}`
)

// toolSchemas are the argument schemas advertised to and enforced on the
// backend.
var toolSchemas = map[outcome.ToolName]string{
	outcome.ToolGiveItem: `{"type":"object","required":["item_name"],"properties":{
		"item_name":{"type":"string","minLength":1},"description":{"type":"string"},"recipient":{"type":"string"}}}`,
	outcome.ToolRevealInfo: `{"type":"object","required":["info"],"properties":{
		"info":{"type":"string","minLength":1},"importance":{"type":"string","enum":["low","normal","high"]}}}`,
	outcome.ToolChangeRelationship: `{"type":"object","required":["change","amount"],"properties":{
		"npc_id":{"type":"string"},"change":` + directionSchema + `,"amount":` + magnitudeSchema + `,"reason":{"type":"string"}}}`,
	outcome.ToolTriggerEvent: `{"type":"object","required":["event_id"],"properties":{
		"event_id":{"type":"string","minLength":1},"description":{"type":"string"}}}`,
	outcome.ToolModifyNPCMotivation: `{"type":"object","required":["motivation"],"properties":{
		"npc_id":{"type":"string"},"motivation":{"type":"string","minLength":1},"reason":{"type":"string"}}}`,
	outcome.ToolModifyCharacterDescription: `{"type":"object","required":["change"],"properties":{
		"character":{"type":"string"},"change":{"type":"string","minLength":1}}}`,
	outcome.ToolModifyNPCOpinion: `{"type":"object","required":["change","amount"],"properties":{
		"npc_id":{"type":"string"},"target":{"type":"string"},"change":` + directionSchema + `,"amount":` + magnitudeSchema + `,"reason":{"type":"string"}}}`,
	outcome.ToolTransferItem: `{"type":"object","required":["from","to","item_name"],"properties":{
		"from":{"type":"string","minLength":1},"to":{"type":"string","minLength":1},"item_name":{"type":"string","minLength":1}}}`,
	outcome.ToolAddCondition: `{"type":"object","required":["condition"],"properties":{
		"character":{"type":"string"},"condition":{"type":"string","minLength":1},"description":{"type":"string"},"duration_turns":{"type":"integer","minimum":0}}}`,
	outcome.ToolRemoveCondition: `{"type":"object","required":["condition"],"properties":{
		"character":{"type":"string"},"condition":{"type":"string","minLength":1}}}`,
	outcome.ToolUpdateCharacterStat: `{"type":"object","required":["stat","delta"],"properties":{
		"character":{"type":"string"},"stat":{"type":"string","minLength":1},"delta":{"type":"integer"}}}`,
}

// toolAliases maps names older backends emit to the closed set.
var toolAliases = map[string]outcome.ToolName{
	"grant_item":             outcome.ToolGiveItem,
	"add_item":               outcome.ToolGiveItem,
	"reveal_information":     outcome.ToolRevealInfo,
	"share_info":             outcome.ToolRevealInfo,
	"update_relationship":    outcome.ToolChangeRelationship,
	"adjust_relationship":    outcome.ToolChangeRelationship,
	"start_event":            outcome.ToolTriggerEvent,
	"set_npc_motivation":     outcome.ToolModifyNPCMotivation,
	"update_npc_opinion":     outcome.ToolModifyNPCOpinion,
	"give_item_to":           outcome.ToolTransferItem,
	"apply_condition":        outcome.ToolAddCondition,
	"clear_condition":        outcome.ToolRemoveCondition,
	"modify_stat":            outcome.ToolUpdateCharacterStat,
	"update_stat":            outcome.ToolUpdateCharacterStat,
	"modify_character_stat":  outcome.ToolUpdateCharacterStat,
	"update_character_descr": outcome.ToolModifyCharacterDescription,
}

// keywordOrder tries longer names first so a name containing two tool names
// resolves to the more specific one.
var keywordOrder = func() []outcome.ToolName {
	names := append([]outcome.ToolName(nil), outcome.ToolNames...)
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return names
}()

var (
	compileOnce sync.Once
	compiled    map[outcome.ToolName]*jsonschema.Schema
	compileErr  error
)

func schemas() (map[outcome.ToolName]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[outcome.ToolName]*jsonschema.Schema, len(toolSchemas))
		for name, src := range toolSchemas {
			s, err := jsonschema.CompileString(string(name)+".json", src)
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// NormalizeToolName maps a raw backend tool name into the closed set: exact
// names first, then known aliases, then keyword containment.
func NormalizeToolName(raw string) (outcome.ToolName, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(name)
	if name == "" {
		return "", false
	}
	if _, ok := toolSchemas[outcome.ToolName(name)]; ok {
		return outcome.ToolName(name), true
	}
	if alias, ok := toolAliases[name]; ok {
		return alias, true
	}
	for _, candidate := range keywordOrder {
		if strings.Contains(name, string(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// DecodeToolCall validates arguments against the tool schema and decodes
// them into the closed variant.
func DecodeToolCall(rawName, arguments string) (outcome.ToolCall, error) {
	name, ok := NormalizeToolName(rawName)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", rawName)
	}
	set, err := schemas()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	var doc any
	if err := json.Unmarshal([]byte(arguments), &doc); err != nil {
		return nil, fmt.Errorf("tool %s arguments: %w", name, err)
	}
	if err := set[name].Validate(doc); err != nil {
		return nil, fmt.Errorf("tool %s arguments: %w", name, err)
	}
	return outcome.DecodeToolCall(name, []byte(arguments))
}

// RawToolCall is an undecoded function call from a backend.
type RawToolCall struct {
	Name      string
	Arguments string
}

// DecodeToolCalls decodes every call, collecting the undecodable ones.
func DecodeToolCalls(raw []RawToolCall) ([]outcome.ToolCall, []UnknownTool) {
	var (
		calls   []outcome.ToolCall
		unknown []UnknownTool
	)
	for _, rc := range raw {
		call, err := DecodeToolCall(rc.Name, rc.Arguments)
		if err != nil {
			log.Printf("generation: unknown tool call %q: %v", rc.Name, err)
			unknown = append(unknown, UnknownTool{Name: rc.Name, Arguments: rc.Arguments, Reason: err.Error()})
			continue
		}
		calls = append(calls, call)
	}
	return calls, unknown
}

// ToolDefinitions returns function definitions for the responses API.
func ToolDefinitions() []map[string]any {
	defs := make([]map[string]any, 0, len(outcome.ToolNames)+2)
	for _, name := range outcome.ToolNames {
		defs = append(defs, map[string]any{
			"type":       "function",
			"name":       string(name),
			"parameters": json.RawMessage(toolSchemas[name]),
		})
	}
	defs = append(defs,
		map[string]any{
			"type": "function",
			"name": suggestChallengeTool,
			"parameters": json.RawMessage(`{"type":"object","required":["challenge_id"],"properties":{
				"challenge_id":{"type":"string"},"skill_id":{"type":"string"},"dc":{"type":"integer"},"reason":{"type":"string"}}}`),
		},
		map[string]any{
			"type": "function",
			"name": suggestEventTool,
			"parameters": json.RawMessage(`{"type":"object","required":["event_id"],"properties":{
				"event_id":{"type":"string"},"description":{"type":"string"}}}`),
		},
	)
	return defs
}
