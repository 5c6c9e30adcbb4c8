package queue

import (
	"fmt"
	"strings"

	"github.com/louisbranch/gmloop/internal/services/narrator/generation"
	"github.com/tidwall/gjson"
)

// FieldType selects a suggestion routine.
type FieldType string

const (
	FieldCharacterName        FieldType = "character_name"
	FieldCharacterDescription FieldType = "character_description"
	FieldNPCPersonality       FieldType = "npc_personality"
	FieldLocationDescription  FieldType = "location_description"
	FieldItemDescription      FieldType = "item_description"
	FieldChallengeDescription FieldType = "challenge_description"
	FieldEventDescription     FieldType = "event_description"
	FieldOutcomeAlternatives  FieldType = "outcome_alternatives"
	FieldOutcomeBranches      FieldType = "outcome_branches"
)

const (
	defaultSuggestionCount = 3
	defaultTokensPerItem   = 120
)

type routine struct {
	instructions string
	branching    bool
}

var routines = map[FieldType]routine{
	FieldCharacterName: {
		instructions: "Suggest fitting names for a character.",
	},
	FieldCharacterDescription: {
		instructions: "Suggest short physical and personality descriptions for a character.",
	},
	FieldNPCPersonality: {
		instructions: "Suggest distinct personalities and motivations for a non-player character.",
	},
	FieldLocationDescription: {
		instructions: "Suggest evocative descriptions for a location.",
	},
	FieldItemDescription: {
		instructions: "Suggest descriptions for an item, including a notable detail.",
	},
	FieldChallengeDescription: {
		instructions: "Suggest how a skill challenge could be framed to the players.",
	},
	FieldEventDescription: {
		instructions: "Suggest how a narrative event could unfold.",
	},
	FieldOutcomeAlternatives: {
		instructions: "Rewrite the outcome narration as alternative versions the game master can pick from.",
	},
	FieldOutcomeBranches: {
		instructions: "Propose alternative branches for the outcome. Each branch has a title, a description and a list of mechanical effects.",
		branching:    true,
	},
}

// KnownFieldType reports whether a suggestion routine exists.
func KnownFieldType(ft FieldType) bool {
	_, ok := routines[ft]
	return ok
}

func (r routine) prompt(worldID string, req SuggestionRequest) generation.Prompt {
	count := req.Count
	if count <= 0 {
		count = defaultSuggestionCount
	}
	perItem := req.TokensPerItem
	if perItem <= 0 {
		perItem = defaultTokensPerItem
	}
	var format string
	if r.branching {
		format = fmt.Sprintf(`Reply with a JSON array of exactly %d objects with keys "title", "description" and "effects".`, count)
	} else {
		format = fmt.Sprintf("Reply with a JSON array of exactly %d strings.", count)
	}
	system := r.instructions + " " + format
	input := strings.TrimSpace(req.Context)
	if g := strings.TrimSpace(req.Guidance); g != "" {
		input += "\n\nGame master guidance: " + g
	}
	return generation.Prompt{
		WorldID:   worldID,
		System:    system,
		Input:     input,
		MaxTokens: count * perItem,
	}
}

// parseSuggestions reads a JSON array of strings, falling back to one
// suggestion per non-empty line.
func parseSuggestions(text string, count int) []string {
	text = stripFence(text)
	var out []string
	if parsed := gjson.Parse(text); parsed.IsArray() {
		parsed.ForEach(func(_, v gjson.Result) bool {
			s := v.String()
			if v.IsObject() {
				s = v.Get("text").String()
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			return true
		})
	} else {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789.)"))
			if line != "" {
				out = append(out, line)
			}
		}
	}
	return limit(out, count)
}

// parseBranches reads a JSON array of branch objects. Non-JSON output
// becomes one untitled branch per suggestion.
func parseBranches(text string, count int) []Branch {
	text = stripFence(text)
	var out []Branch
	if parsed := gjson.Parse(text); parsed.IsArray() {
		parsed.ForEach(func(_, v gjson.Result) bool {
			b := Branch{
				Title:       strings.TrimSpace(v.Get("title").String()),
				Description: strings.TrimSpace(v.Get("description").String()),
			}
			if b.Description == "" && v.Type == gjson.String {
				b.Description = strings.TrimSpace(v.String())
			}
			v.Get("effects").ForEach(func(_, e gjson.Result) bool {
				if s := strings.TrimSpace(e.String()); s != "" {
					b.Effects = append(b.Effects, s)
				}
				return true
			})
			if b.Description != "" || b.Title != "" {
				out = append(out, b)
			}
			return true
		})
	} else {
		for _, s := range parseSuggestions(text, count) {
			out = append(out, Branch{Description: s})
		}
	}
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	for i := range out {
		out[i].ID = fmt.Sprintf("branch-%d", i+1)
	}
	return out
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

func limit(in []string, count int) []string {
	if count > 0 && len(in) > count {
		return in[:count]
	}
	return in
}
