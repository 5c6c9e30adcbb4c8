package memory

import (
	"context"
	"strings"

	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

// RevealInformation implements outcome.WorldState.
func (s *Store) RevealInformation(_ context.Context, worldID, characterID, info string, persist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lore = append(s.lore, storage.LoreRecord{
		WorldID:     worldID,
		CharacterID: characterID,
		Info:        info,
		Persisted:   persist,
		RevealedAt:  s.clock().UTC(),
	})
	return nil
}

// SetChallengeActive implements outcome.WorldState.
func (s *Store) SetChallengeActive(_ context.Context, worldID, challengeID string, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(worldID, challengeID)
	c, ok := s.challenges[k]
	if !ok {
		return false, nil
	}
	c.Active = active
	s.challenges[k] = c
	return true, nil
}

// CharacterStat reads one stat of a character.
func (s *Store) CharacterStat(_ context.Context, characterID, stat string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return 0, false, nil
	}
	v, ok := c.Stats[stat]
	return v, ok, nil
}

// AdjustCharacterStat implements outcome.WorldState.
func (s *Store) AdjustCharacterStat(_ context.Context, characterID, stat string, delta int) (int, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return 0, 0, false, nil
	}
	old, ok := c.Stats[stat]
	if !ok {
		return 0, 0, false, nil
	}
	c.Stats[stat] = old + delta
	c.UpdatedAt = s.clock().UTC()
	s.characters[characterID] = c
	return old, old + delta, true, nil
}

// SetCurrentScene implements outcome.WorldState.
func (s *Store) SetCurrentScene(_ context.Context, worldID, sceneID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[sceneID]
	if !ok || scene.WorldID != worldID {
		return false, nil
	}
	w, ok := s.worlds[worldID]
	if !ok {
		return false, nil
	}
	w.CurrentSceneID = sceneID
	w.UpdatedAt = s.clock().UTC()
	s.worlds[worldID] = w
	return true, nil
}

// AddItem implements outcome.WorldState.
func (s *Store) AddItem(_ context.Context, characterID string, item outcome.Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return false, nil
	}
	c.Inventory = addStack(c.Inventory, item)
	s.characters[characterID] = c
	return true, nil
}

func addStack(inv []storage.ItemStack, item outcome.Item) []storage.ItemStack {
	for i := range inv {
		if strings.EqualFold(inv[i].Name, item.Name) {
			inv[i].Quantity++
			return inv
		}
	}
	return append(inv, storage.ItemStack{Name: item.Name, Description: item.Description, Quantity: 1})
}

// TransferItem implements outcome.WorldState.
func (s *Store) TransferItem(_ context.Context, fromID, toID, itemName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.characters[fromID]
	if !ok {
		return false, nil
	}
	to, ok := s.characters[toID]
	if !ok {
		return false, nil
	}
	idx := -1
	for i, stack := range from.Inventory {
		if strings.EqualFold(stack.Name, itemName) && stack.Quantity > 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	moved := outcome.Item{Name: from.Inventory[idx].Name, Description: from.Inventory[idx].Description}
	from.Inventory[idx].Quantity--
	if from.Inventory[idx].Quantity == 0 {
		from.Inventory = append(from.Inventory[:idx], from.Inventory[idx+1:]...)
	}
	s.characters[fromID] = from
	to = s.characters[toID]
	to.Inventory = addStack(to.Inventory, moved)
	s.characters[toID] = to
	return true, nil
}

// Relationship reads an NPC's sentiment toward a character. Unknown pairs
// are neutral.
func (s *Store) Relationship(_ context.Context, npcID, characterID string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.npcs[npcID]
	if !ok {
		return 0, false, nil
	}
	return n.Relationships[characterID], true, nil
}

// AdjustRelationship implements outcome.WorldState.
func (s *Store) AdjustRelationship(_ context.Context, npcID, characterID string, apply func(float64) float64) (float64, float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.npcs[npcID]
	if !ok {
		return 0, 0, false, nil
	}
	if n.Relationships == nil {
		n.Relationships = map[string]float64{}
	}
	old := n.Relationships[characterID]
	updated := apply(old)
	n.Relationships[characterID] = updated
	n.UpdatedAt = s.clock().UTC()
	s.npcs[npcID] = n
	return old, updated, true, nil
}

// SetNPCMotivation implements outcome.WorldState.
func (s *Store) SetNPCMotivation(_ context.Context, npcID, motivation string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.npcs[npcID]
	if !ok {
		return false, nil
	}
	n.Motivation = motivation
	n.UpdatedAt = s.clock().UTC()
	s.npcs[npcID] = n
	return true, nil
}

// AppendCharacterDescription implements outcome.WorldState.
func (s *Store) AppendCharacterDescription(_ context.Context, characterID, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return false, nil
	}
	c.Description = appendParagraph(c.Description, text)
	s.characters[characterID] = c
	return true, nil
}

func appendParagraph(base, text string) string {
	text = strings.TrimSpace(text)
	if base == "" {
		return text
	}
	return base + "\n\n" + text
}

// NPCOpinion reads an NPC's opinion of a target.
func (s *Store) NPCOpinion(_ context.Context, npcID, targetID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.npcs[npcID]
	if !ok {
		return 0, false, nil
	}
	return n.Opinions[targetID].Value, true, nil
}

// AdjustNPCOpinion implements outcome.WorldState.
func (s *Store) AdjustNPCOpinion(_ context.Context, npcID, targetID, reason string, apply func(int) int) (int, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.npcs[npcID]
	if !ok {
		return 0, 0, false, nil
	}
	if n.Opinions == nil {
		n.Opinions = map[string]storage.OpinionRecord{}
	}
	old := n.Opinions[targetID].Value
	updated := apply(old)
	n.Opinions[targetID] = storage.OpinionRecord{Value: updated, Reason: reason}
	s.npcs[npcID] = n
	return old, updated, true, nil
}

// AddCondition implements outcome.WorldState. A condition with the same name
// is replaced.
func (s *Store) AddCondition(_ context.Context, characterID string, condition outcome.CharacterCondition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return false, nil
	}
	c.Conditions = upsertCondition(c.Conditions, condition)
	s.characters[characterID] = c
	return true, nil
}

func upsertCondition(list []outcome.CharacterCondition, condition outcome.CharacterCondition) []outcome.CharacterCondition {
	for i := range list {
		if strings.EqualFold(list[i].Name, condition.Name) {
			list[i] = condition
			return list
		}
	}
	return append(list, condition)
}

// RemoveCondition implements outcome.WorldState.
func (s *Store) RemoveCondition(_ context.Context, characterID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return false, nil
	}
	for i := range c.Conditions {
		if strings.EqualFold(c.Conditions[i].Name, name) {
			c.Conditions = append(c.Conditions[:i], c.Conditions[i+1:]...)
			s.characters[characterID] = c
			return true, nil
		}
	}
	return false, nil
}

// MarkEventTriggered implements outcome.WorldState.
func (s *Store) MarkEventTriggered(_ context.Context, worldID, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[key(worldID, eventID)]
	if !ok {
		return false, nil
	}
	e.Trigger(s.clock().UTC(), "")
	return true, nil
}
