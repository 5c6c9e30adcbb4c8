package narrative

import (
	"encoding/json"
	"fmt"
	"time"
)

type conditionJSON struct {
	ID          string          `json:"id"`
	Kind        ConditionKind   `json:"kind"`
	Required    bool            `json:"required,omitempty"`
	Description string          `json:"description,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
}

type outcomeJSON struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type eventJSON struct {
	ID              string          `json:"id"`
	WorldID         string          `json:"world_id"`
	RegionID        string          `json:"region_id,omitempty"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Conditions      []conditionJSON `json:"conditions"`
	Logic           LogicKind       `json:"logic"`
	MinMatches      int             `json:"min_matches,omitempty"`
	Outcomes        []outcomeJSON   `json:"outcomes,omitempty"`
	DelayTurns      int             `json:"delay_turns,omitempty"`
	ExpiryTurns     int             `json:"expiry_turns,omitempty"`
	ChainID         string          `json:"chain_id,omitempty"`
	Active          bool            `json:"active"`
	Repeatability   Repeatability   `json:"repeatability"`
	Priority        int32           `json:"priority,omitempty"`
	TriggerCount    int             `json:"trigger_count,omitempty"`
	Triggered       bool            `json:"triggered,omitempty"`
	TriggeredAt     *time.Time      `json:"triggered_at,omitempty"`
	SelectedOutcome string          `json:"selected_outcome,omitempty"`
}

// MarshalEvent encodes an event, lifecycle included, as JSON. Conditions are
// stored as kind-tagged envelopes.
func MarshalEvent(e *NarrativeEvent) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("event is required")
	}
	st := e.State()
	doc := eventJSON{
		ID:              e.ID,
		WorldID:         e.WorldID,
		RegionID:        e.RegionID,
		Name:            e.Name,
		Description:     e.Description,
		Conditions:      make([]conditionJSON, 0, len(e.Conditions)),
		Logic:           e.Logic.Kind,
		MinMatches:      e.Logic.Min,
		DelayTurns:      e.Timing.DelayTurns,
		ExpiryTurns:     e.Timing.ExpiryTurns,
		ChainID:         e.ChainID,
		Active:          st.Active,
		Repeatability:   st.Repeatability,
		Priority:        st.Priority,
		TriggerCount:    st.TriggerCount,
		Triggered:       st.Status.Triggered,
		SelectedOutcome: st.Status.SelectedOutcome,
	}
	if !st.Status.TriggeredAt.IsZero() {
		at := st.Status.TriggeredAt.UTC()
		doc.TriggeredAt = &at
	}
	for _, tc := range e.Conditions {
		if tc.Condition == nil {
			return nil, fmt.Errorf("condition %q has no predicate", tc.ID)
		}
		c := Deref(tc.Condition)
		args, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encode condition %q: %w", tc.ID, err)
		}
		doc.Conditions = append(doc.Conditions, conditionJSON{
			ID:          tc.ID,
			Kind:        c.Kind(),
			Required:    tc.Required,
			Description: tc.Description,
			Args:        args,
		})
	}
	for _, o := range e.Outcomes {
		doc.Outcomes = append(doc.Outcomes, outcomeJSON{Name: o.Name, Description: o.Description})
	}
	return json.Marshal(doc)
}

// UnmarshalEvent decodes the output of MarshalEvent.
func UnmarshalEvent(data []byte) (*NarrativeEvent, error) {
	var doc eventJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	logic, err := ParseLogic(string(doc.Logic), doc.MinMatches)
	if err != nil {
		return nil, fmt.Errorf("decode event %q: %w", doc.ID, err)
	}
	e := NewEvent(doc.ID, doc.WorldID, doc.Name)
	e.RegionID = doc.RegionID
	e.Description = doc.Description
	e.Logic = logic
	e.Timing = Timing{DelayTurns: doc.DelayTurns, ExpiryTurns: doc.ExpiryTurns}
	e.ChainID = doc.ChainID
	for _, cj := range doc.Conditions {
		c, err := DecodeCondition(cj.Kind, cj.Args)
		if err != nil {
			return nil, fmt.Errorf("decode event %q condition %q: %w", doc.ID, cj.ID, err)
		}
		e.Conditions = append(e.Conditions, TriggerCondition{
			ID:          cj.ID,
			Condition:   c,
			Required:    cj.Required,
			Description: cj.Description,
		})
	}
	for _, o := range doc.Outcomes {
		e.Outcomes = append(e.Outcomes, Outcome{Name: o.Name, Description: o.Description})
	}
	st := State{
		Active:        doc.Active,
		Repeatability: doc.Repeatability,
		Priority:      doc.Priority,
		TriggerCount:  doc.TriggerCount,
		Status: TriggerStatus{
			Triggered:       doc.Triggered,
			SelectedOutcome: doc.SelectedOutcome,
		},
	}
	if doc.TriggeredAt != nil {
		st.Status.TriggeredAt = doc.TriggeredAt.UTC()
	}
	e.Restore(st)
	return e, nil
}

// DecodeCondition decodes JSON arguments into the variant named by kind.
func DecodeCondition(kind ConditionKind, args []byte) (Condition, error) {
	c, ok := NewCondition(kind)
	if !ok {
		return nil, fmt.Errorf("unknown condition kind %q", kind)
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
	}
	return Deref(c), nil
}
