package narrative

import (
	"strings"

	"golang.org/x/text/cases"
)

// CompletedEvent records how and when an event completed.
type CompletedEvent struct {
	Outcome string
	Turn    int
}

// CompendiumContext carries game-system facts read from the PC's sheet.
// Lookups are case-insensitive.
type CompendiumContext struct {
	Origin         string
	ClassLevels    map[string]int
	KnownSpells    []string
	Feats          []string
	KnownCreatures []string
}

// ChallengeRecord tracks which results a character has reached on one
// challenge. Repeated attempts keep both.
type ChallengeRecord struct {
	Succeeded bool
	Failed    bool
}

// TriggerContext is a point-in-time snapshot evaluated by Evaluate. It is
// built fresh for one pass and discarded afterwards.
type TriggerContext struct {
	Flags               map[string]bool
	Inventory           map[string]int
	CompletedEvents     map[string]CompletedEvent
	CompletedChallenges map[string]ChallengeRecord
	TurnCount           int
	CurrentLocationID   string
	TimeOfDay           string
	RecentTopics        []string
	RecentNPCActions    []string
	// Relationships holds NPC -> PC sentiment keyed by NPC id.
	Relationships  map[string]float64
	CharacterStats map[string]int
	Compendium     CompendiumContext
	// CustomResults holds verdicts for Custom conditions keyed by description.
	CustomResults map[string]bool
}

// NewTriggerContext returns an empty context with initialized maps.
func NewTriggerContext() *TriggerContext {
	return &TriggerContext{
		Flags:               map[string]bool{},
		Inventory:           map[string]int{},
		CompletedEvents:     map[string]CompletedEvent{},
		CompletedChallenges: map[string]ChallengeRecord{},
		Relationships:       map[string]float64{},
		CharacterStats:      map[string]int{},
		Compendium:          CompendiumContext{ClassLevels: map[string]int{}},
		CustomResults:       map[string]bool{},
	}
}

// AddItem inserts one copy of name into the inventory multiset.
func (c *TriggerContext) AddItem(name string) {
	if c.Inventory == nil {
		c.Inventory = map[string]int{}
	}
	c.Inventory[name]++
}

// AddItems inserts n copies of name. Non-positive counts are ignored.
func (c *TriggerContext) AddItems(name string, n int) {
	if n <= 0 {
		return
	}
	if c.Inventory == nil {
		c.Inventory = map[string]int{}
	}
	c.Inventory[name] += n
}

// RecordChallenge notes one resolution of a challenge.
func (c *TriggerContext) RecordChallenge(challengeID string, success bool) {
	if c.CompletedChallenges == nil {
		c.CompletedChallenges = map[string]ChallengeRecord{}
	}
	r := c.CompletedChallenges[challengeID]
	if success {
		r.Succeeded = true
	} else {
		r.Failed = true
	}
	c.CompletedChallenges[challengeID] = r
}

// ItemCount returns how many copies of name the PC carries.
func (c *TriggerContext) ItemCount(name string) int {
	return c.Inventory[name]
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func equalFold(a, b string) bool {
	return fold(a) == fold(b)
}

func containsFold(haystack, needle string) bool {
	n := fold(needle)
	if n == "" {
		return false
	}
	return strings.Contains(fold(haystack), n)
}

func listContainsFold(list []string, value string) bool {
	for _, item := range list {
		if equalFold(item, value) {
			return true
		}
	}
	return false
}
