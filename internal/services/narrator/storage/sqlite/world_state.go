package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

// updateCharacter loads a character, applies fn and writes it back in one
// transaction. A missing character reports found=false; fn returning false
// skips the write.
func (s *Store) updateCharacter(ctx context.Context, characterID string, fn func(c *storage.CharacterRecord) bool) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	applied := false
	err := s.inTx(ctx, "update character", func(tx *sql.Tx) error {
		c, err := getCharacter(ctx, tx, characterID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !fn(&c) {
			return nil
		}
		applied = true
		return putCharacter(ctx, tx, c, s.now())
	})
	return applied, err
}

func (s *Store) updateNPC(ctx context.Context, npcID string, fn func(n *storage.NPCRecord)) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	found := false
	err := s.inTx(ctx, "update npc", func(tx *sql.Tx) error {
		n, err := getNPC(ctx, tx, npcID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		fn(&n)
		return putNPC(ctx, tx, n, s.now())
	})
	return found, err
}

// RevealInformation implements outcome.WorldState.
func (s *Store) RevealInformation(ctx context.Context, worldID, characterID, info string, persist bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO lore (world_id, character_id, info, persisted, revealed_at) VALUES (?, ?, ?, ?, ?)`,
		worldID, characterID, info, boolInt(persist), s.now())
	if err != nil {
		return fmt.Errorf("reveal information: %w", err)
	}
	return nil
}

// SetChallengeActive implements outcome.WorldState.
func (s *Store) SetChallengeActive(ctx context.Context, worldID, challengeID string, active bool) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE challenges SET active = ? WHERE world_id = ? AND id = ?`,
		boolInt(active), worldID, challengeID)
	if err != nil {
		return false, fmt.Errorf("set challenge active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set challenge active: %w", err)
	}
	return n > 0, nil
}

// CharacterStat reads one stat of a character.
func (s *Store) CharacterStat(ctx context.Context, characterID, stat string) (int, bool, error) {
	if err := s.ready(ctx); err != nil {
		return 0, false, err
	}
	c, err := getCharacter(ctx, s.sqlDB, characterID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, ok := c.Stats[stat]
	return v, ok, nil
}

// AdjustCharacterStat implements outcome.WorldState. The read and the write
// share one transaction; a missing character or stat reports found=false.
func (s *Store) AdjustCharacterStat(ctx context.Context, characterID, stat string, delta int) (int, int, bool, error) {
	var old, updated int
	applied, err := s.updateCharacter(ctx, characterID, func(c *storage.CharacterRecord) bool {
		v, ok := c.Stats[stat]
		if !ok {
			return false
		}
		old, updated = v, v+delta
		c.Stats[stat] = updated
		return true
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("adjust character stat: %w", err)
	}
	return old, updated, applied, nil
}

// SetCurrentScene implements outcome.WorldState.
func (s *Store) SetCurrentScene(ctx context.Context, worldID, sceneID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE worlds SET current_scene_id = ?, updated_at = ?
WHERE id = ? AND EXISTS (SELECT 1 FROM scenes WHERE id = ? AND world_id = ?)`,
		sceneID, s.now(), worldID, sceneID, worldID)
	if err != nil {
		return false, fmt.Errorf("set current scene: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set current scene: %w", err)
	}
	return n > 0, nil
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

// AddItem implements outcome.WorldState.
func (s *Store) AddItem(ctx context.Context, characterID string, item outcome.Item) (bool, error) {
	return s.updateCharacter(ctx, characterID, func(c *storage.CharacterRecord) bool {
		c.Inventory = addStack(c.Inventory, item)
		return true
	})
}

// TransferItem implements outcome.WorldState. One unit moves; both characters
// must exist and the giver must hold the item.
func (s *Store) TransferItem(ctx context.Context, fromID, toID, itemName string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	moved := false
	err := s.inTx(ctx, "transfer item", func(tx *sql.Tx) error {
		from, err := getCharacter(ctx, tx, fromID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		to, err := getCharacter(ctx, tx, toID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		idx := -1
		for i, stack := range from.Inventory {
			if strings.EqualFold(stack.Name, itemName) && stack.Quantity > 0 {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		item := outcome.Item{Name: from.Inventory[idx].Name, Description: from.Inventory[idx].Description}
		from.Inventory[idx].Quantity--
		if from.Inventory[idx].Quantity == 0 {
			from.Inventory = append(from.Inventory[:idx], from.Inventory[idx+1:]...)
		}
		if fromID == toID {
			to = from
		}
		to.Inventory = addStack(to.Inventory, item)
		now := s.now()
		if fromID != toID {
			if err := putCharacter(ctx, tx, from, now); err != nil {
				return err
			}
		}
		if err := putCharacter(ctx, tx, to, now); err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, err
}

// Relationship reads an NPC's sentiment toward a character. Unknown pairs
// are neutral.
func (s *Store) Relationship(ctx context.Context, npcID, characterID string) (float64, bool, error) {
	if err := s.ready(ctx); err != nil {
		return 0, false, err
	}
	n, err := getNPC(ctx, s.sqlDB, npcID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n.Relationships[characterID], true, nil
}

// AdjustRelationship implements outcome.WorldState.
func (s *Store) AdjustRelationship(ctx context.Context, npcID, characterID string, apply func(float64) float64) (float64, float64, bool, error) {
	var old, updated float64
	found, err := s.updateNPC(ctx, npcID, func(n *storage.NPCRecord) {
		if n.Relationships == nil {
			n.Relationships = map[string]float64{}
		}
		old = n.Relationships[characterID]
		updated = apply(old)
		n.Relationships[characterID] = updated
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("adjust relationship: %w", err)
	}
	return old, updated, found, nil
}

// SetNPCMotivation implements outcome.WorldState.
func (s *Store) SetNPCMotivation(ctx context.Context, npcID, motivation string) (bool, error) {
	return s.updateNPC(ctx, npcID, func(n *storage.NPCRecord) {
		n.Motivation = motivation
	})
}

// AppendCharacterDescription implements outcome.WorldState.
func (s *Store) AppendCharacterDescription(ctx context.Context, characterID, text string) (bool, error) {
	return s.updateCharacter(ctx, characterID, func(c *storage.CharacterRecord) bool {
		text = strings.TrimSpace(text)
		if c.Description == "" {
			c.Description = text
		} else {
			c.Description += "\n\n" + text
		}
		return true
	})
}

// NPCOpinion reads an NPC's opinion of a target.
func (s *Store) NPCOpinion(ctx context.Context, npcID, targetID string) (int, bool, error) {
	if err := s.ready(ctx); err != nil {
		return 0, false, err
	}
	n, err := getNPC(ctx, s.sqlDB, npcID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n.Opinions[targetID].Value, true, nil
}

// AdjustNPCOpinion implements outcome.WorldState.
func (s *Store) AdjustNPCOpinion(ctx context.Context, npcID, targetID, reason string, apply func(int) int) (int, int, bool, error) {
	var old, updated int
	found, err := s.updateNPC(ctx, npcID, func(n *storage.NPCRecord) {
		if n.Opinions == nil {
			n.Opinions = map[string]storage.OpinionRecord{}
		}
		old = n.Opinions[targetID].Value
		updated = apply(old)
		n.Opinions[targetID] = storage.OpinionRecord{Value: updated, Reason: reason}
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("adjust npc opinion: %w", err)
	}
	return old, updated, found, nil
}

// AddCondition implements outcome.WorldState. A condition with the same name
// is replaced.
func (s *Store) AddCondition(ctx context.Context, characterID string, condition outcome.CharacterCondition) (bool, error) {
	return s.updateCharacter(ctx, characterID, func(c *storage.CharacterRecord) bool {
		for i := range c.Conditions {
			if strings.EqualFold(c.Conditions[i].Name, condition.Name) {
				c.Conditions[i] = condition
				return true
			}
		}
		c.Conditions = append(c.Conditions, condition)
		return true
	})
}

// RemoveCondition implements outcome.WorldState.
func (s *Store) RemoveCondition(ctx context.Context, characterID, name string) (bool, error) {
	return s.updateCharacter(ctx, characterID, func(c *storage.CharacterRecord) bool {
		for i := range c.Conditions {
			if strings.EqualFold(c.Conditions[i].Name, name) {
				c.Conditions = append(c.Conditions[:i], c.Conditions[i+1:]...)
				return true
			}
		}
		return false
	})
}

// MarkEventTriggered implements outcome.WorldState.
func (s *Store) MarkEventTriggered(ctx context.Context, worldID, eventID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	found := false
	err := s.inTx(ctx, "mark event triggered", func(tx *sql.Tx) error {
		e, err := getEvent(ctx, tx, worldID, eventID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		e.Trigger(s.clock().UTC(), "")
		return putEvent(ctx, tx, e)
	})
	return found, err
}
