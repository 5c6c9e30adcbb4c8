// Package memory provides an in-process implementation of the narrator
// storage ports, used by tests and ephemeral runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage/filter"
)

var _ storage.Store = (*Store)(nil)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu    sync.Mutex
	clock func() time.Time

	worlds      map[string]storage.WorldRecord
	scenes      map[string]storage.SceneRecord
	characters  map[string]storage.CharacterRecord
	npcs        map[string]storage.NPCRecord
	events      map[string]*narrative.NarrativeEvent
	eventOrder  []string
	chains      map[string]storage.ChainRecord
	challenges  map[string]challenge.Challenge
	skills      map[string]storage.SkillRecord
	eventDone   []storage.EventCompletionRecord
	challDone   []storage.ChallengeCompletionRecord
	lore        []storage.LoreRecord
	settings    map[string]storage.SettingsRecord
	pending     map[string]storage.PendingApprovalRecord
	pendingKeys []string
}

// New builds an empty store. A nil clock uses time.Now.
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		clock:      clock,
		worlds:     map[string]storage.WorldRecord{},
		scenes:     map[string]storage.SceneRecord{},
		characters: map[string]storage.CharacterRecord{},
		npcs:       map[string]storage.NPCRecord{},
		events:     map[string]*narrative.NarrativeEvent{},
		chains:     map[string]storage.ChainRecord{},
		challenges: map[string]challenge.Challenge{},
		skills:     map[string]storage.SkillRecord{},
		settings:   map[string]storage.SettingsRecord{},
		pending:    map[string]storage.PendingApprovalRecord{},
	}
}

// Close implements storage.Store.
func (s *Store) Close() error { return nil }

func key(worldID, id string) string {
	return worldID + "/" + id
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.Newf(apperrors.CodeInvalidInput, "%s is required", field)
	}
	return nil
}

func cloneWorld(w storage.WorldRecord) storage.WorldRecord {
	w.Flags = slices.Clone(w.Flags)
	return w
}

func cloneCharacter(c storage.CharacterRecord) storage.CharacterRecord {
	c.Stats = maps.Clone(c.Stats)
	c.Inventory = slices.Clone(c.Inventory)
	c.Conditions = slices.Clone(c.Conditions)
	return c
}

func cloneNPC(n storage.NPCRecord) storage.NPCRecord {
	n.Relationships = maps.Clone(n.Relationships)
	n.Opinions = maps.Clone(n.Opinions)
	return n
}

// GetWorld implements storage.WorldStore.
func (s *Store) GetWorld(_ context.Context, worldID string) (storage.WorldRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.worlds[worldID]
	if !ok {
		return storage.WorldRecord{}, storage.ErrNotFound
	}
	return cloneWorld(w), nil
}

// PutWorld implements storage.WorldStore.
func (s *Store) PutWorld(_ context.Context, world storage.WorldRecord) error {
	if err := required("world id", world.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worlds[world.ID] = cloneWorld(world)
	return nil
}

// GetScene implements storage.WorldStore.
func (s *Store) GetScene(_ context.Context, sceneID string) (storage.SceneRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[sceneID]
	if !ok {
		return storage.SceneRecord{}, storage.ErrNotFound
	}
	return scene, nil
}

// PutScene implements storage.WorldStore.
func (s *Store) PutScene(_ context.Context, scene storage.SceneRecord) error {
	if err := required("scene id", scene.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes[scene.ID] = scene
	return nil
}

// GetCharacter implements storage.CharacterStore.
func (s *Store) GetCharacter(_ context.Context, characterID string) (storage.CharacterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return storage.CharacterRecord{}, storage.ErrNotFound
	}
	return cloneCharacter(c), nil
}

// PutCharacter implements storage.CharacterStore.
func (s *Store) PutCharacter(_ context.Context, character storage.CharacterRecord) error {
	if err := required("character id", character.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[character.ID] = cloneCharacter(character)
	return nil
}

// GetNPC implements storage.NPCStore.
func (s *Store) GetNPC(_ context.Context, npcID string) (storage.NPCRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.npcs[npcID]
	if !ok {
		return storage.NPCRecord{}, storage.ErrNotFound
	}
	return cloneNPC(n), nil
}

// PutNPC implements storage.NPCStore.
func (s *Store) PutNPC(_ context.Context, npc storage.NPCRecord) error {
	if err := required("npc id", npc.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.npcs[npc.ID] = cloneNPC(npc)
	return nil
}

// ListNPCsInRegion implements storage.NPCStore.
func (s *Store) ListNPCsInRegion(_ context.Context, worldID, regionID string) ([]storage.NPCRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.NPCRecord
	for _, n := range s.npcs {
		if n.WorldID != worldID || (regionID != "" && n.RegionID != regionID) {
			continue
		}
		out = append(out, cloneNPC(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetEvent implements storage.EventStore.
func (s *Store) GetEvent(_ context.Context, worldID, eventID string) (*narrative.NarrativeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[key(worldID, eventID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e.Clone(), nil
}

// PutEvent implements storage.EventStore.
func (s *Store) PutEvent(_ context.Context, event *narrative.NarrativeEvent) error {
	if event == nil {
		return apperrors.New(apperrors.CodeInvalidInput, "event is required")
	}
	if err := required("event id", event.ID); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(event.WorldID, event.ID)
	if _, ok := s.events[k]; !ok {
		s.eventOrder = append(s.eventOrder, k)
	}
	s.events[k] = event.Clone()
	return nil
}

// CompleteEvent implements storage.EventStore.
func (s *Store) CompleteEvent(_ context.Context, worldID, eventID string, at time.Time, outcome string) (*narrative.NarrativeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[key(worldID, eventID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if err := e.Complete(at, outcome); err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

// SetEventActive implements storage.EventStore.
func (s *Store) SetEventActive(_ context.Context, worldID, eventID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[key(worldID, eventID)]
	if !ok {
		return storage.ErrNotFound
	}
	e.SetActive(active)
	return nil
}

// DeleteEvent implements storage.EventStore.
func (s *Store) DeleteEvent(_ context.Context, worldID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(worldID, eventID)
	if _, ok := s.events[k]; !ok {
		return storage.ErrNotFound
	}
	delete(s.events, k)
	s.eventOrder = slices.DeleteFunc(s.eventOrder, func(v string) bool { return v == k })
	return nil
}

// ListEvents implements storage.EventStore.
func (s *Store) ListEvents(_ context.Context, worldID, regionID string) ([]*narrative.NarrativeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*narrative.NarrativeEvent
	for _, k := range s.eventOrder {
		e := s.events[k]
		if e.WorldID != worldID {
			continue
		}
		if regionID != "" && e.RegionID != "" && e.RegionID != regionID {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

// GetChain implements storage.EventStore.
func (s *Store) GetChain(_ context.Context, worldID, chainID string) (storage.ChainRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[key(worldID, chainID)]
	if !ok {
		return storage.ChainRecord{}, storage.ErrNotFound
	}
	c.EventIDs = slices.Clone(c.EventIDs)
	return c, nil
}

// PutChain implements storage.EventStore.
func (s *Store) PutChain(_ context.Context, chain storage.ChainRecord) error {
	if err := required("chain id", chain.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chain.EventIDs = slices.Clone(chain.EventIDs)
	s.chains[key(chain.WorldID, chain.ID)] = chain
	return nil
}

// ListChains implements storage.EventStore.
func (s *Store) ListChains(_ context.Context, worldID string) ([]storage.ChainRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ChainRecord
	for _, c := range s.chains {
		if c.WorldID == worldID {
			c.EventIDs = slices.Clone(c.EventIDs)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetChallenge implements storage.ChallengeStore.
func (s *Store) GetChallenge(_ context.Context, worldID, challengeID string) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[key(worldID, challengeID)]
	if !ok {
		return challenge.Challenge{}, storage.ErrNotFound
	}
	return c, nil
}

// PutChallenge implements storage.ChallengeStore.
func (s *Store) PutChallenge(_ context.Context, c challenge.Challenge) error {
	if err := required("challenge id", c.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[key(c.WorldID, c.ID)] = c
	return nil
}

// ListChallenges implements storage.ChallengeStore.
func (s *Store) ListChallenges(_ context.Context, worldID string) ([]challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []challenge.Challenge
	for _, c := range s.challenges {
		if c.WorldID == worldID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSkill implements storage.ChallengeStore.
func (s *Store) GetSkill(_ context.Context, worldID, skillID string) (storage.SkillRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.skills[key(worldID, skillID)]
	if !ok {
		return storage.SkillRecord{}, storage.ErrNotFound
	}
	return sk, nil
}

// PutSkill implements storage.ChallengeStore.
func (s *Store) PutSkill(_ context.Context, skill storage.SkillRecord) error {
	if err := required("skill id", skill.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[key(skill.WorldID, skill.ID)] = skill
	return nil
}

// RecordEventCompletion implements storage.ProgressStore.
func (s *Store) RecordEventCompletion(_ context.Context, rec storage.EventCompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventDone = append(s.eventDone, rec)
	return nil
}

// ListEventCompletions implements storage.ProgressStore.
func (s *Store) ListEventCompletions(_ context.Context, worldID, characterID string) ([]storage.EventCompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.EventCompletionRecord
	for _, rec := range s.eventDone {
		if rec.WorldID == worldID && (characterID == "" || rec.CharacterID == characterID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// RecordChallengeCompletion implements storage.ProgressStore.
func (s *Store) RecordChallengeCompletion(_ context.Context, rec storage.ChallengeCompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challDone = append(s.challDone, rec)
	return nil
}

// ListChallengeCompletions implements storage.ProgressStore.
func (s *Store) ListChallengeCompletions(_ context.Context, worldID, characterID string) ([]storage.ChallengeCompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ChallengeCompletionRecord
	for _, rec := range s.challDone {
		if rec.WorldID == worldID && (characterID == "" || rec.CharacterID == characterID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListLore implements storage.LoreStore.
func (s *Store) ListLore(_ context.Context, worldID string) ([]storage.LoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.LoreRecord
	for _, rec := range s.lore {
		if rec.WorldID == worldID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetSettings implements storage.SettingsStore.
func (s *Store) GetSettings(_ context.Context, worldID string) (storage.SettingsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.settings[worldID]
	if !ok {
		return storage.SettingsRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// PutSettings implements storage.SettingsStore.
func (s *Store) PutSettings(_ context.Context, rec storage.SettingsRecord) error {
	if err := required("world id", rec.WorldID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[rec.WorldID] = rec
	return nil
}

// PutPendingApproval implements storage.PendingApprovalStore.
func (s *Store) PutPendingApproval(_ context.Context, rec storage.PendingApprovalRecord) error {
	if err := required("resolution id", rec.ResolutionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[rec.ResolutionID]; !ok {
		s.pendingKeys = append(s.pendingKeys, rec.ResolutionID)
	}
	rec.Payload = slices.Clone(rec.Payload)
	s.pending[rec.ResolutionID] = rec
	return nil
}

// DeletePendingApproval implements storage.PendingApprovalStore.
func (s *Store) DeletePendingApproval(_ context.Context, resolutionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[resolutionID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.pending, resolutionID)
	s.pendingKeys = slices.DeleteFunc(s.pendingKeys, func(v string) bool { return v == resolutionID })
	return nil
}

// ListPendingApprovals implements storage.PendingApprovalStore.
func (s *Store) ListPendingApprovals(_ context.Context, worldID, filterStr string) ([]storage.PendingApprovalRecord, error) {
	match, err := filter.CompilePendingMatcher(filterStr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid filter", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.PendingApprovalRecord
	for _, id := range s.pendingKeys {
		rec := s.pending[id]
		if worldID != "" && rec.WorldID != worldID {
			continue
		}
		if !match(filter.Fields{
			WorldID:     rec.WorldID,
			CharacterID: rec.CharacterID,
			Kind:        rec.Kind,
			State:       rec.State,
			CreateTime:  rec.CreatedAt,
			UpdateTime:  rec.UpdatedAt,
		}) {
			continue
		}
		rec.Payload = slices.Clone(rec.Payload)
		out = append(out, rec)
	}
	return out, nil
}

var _ outcome.WorldState = (*Store)(nil)
