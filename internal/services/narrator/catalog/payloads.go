package catalog

import "gopkg.in/yaml.v3"

type catalogFile struct {
	World      string            `yaml:"world"`
	Scenes     []sceneRecord     `yaml:"scenes,omitempty"`
	Skills     []skillRecord     `yaml:"skills,omitempty"`
	Events     []eventRecord     `yaml:"events,omitempty"`
	Chains     []chainRecord     `yaml:"chains,omitempty"`
	Challenges []challengeRecord `yaml:"challenges,omitempty"`
}

type sceneRecord struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type skillRecord struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type conditionRecord struct {
	ID          string    `yaml:"id"`
	Kind        string    `yaml:"kind"`
	Required    bool      `yaml:"required,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Args        yaml.Node `yaml:"args,omitempty"`
}

type eventOutcomeRecord struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type eventRecord struct {
	ID          string               `yaml:"id"`
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Region      string               `yaml:"region,omitempty"`
	Logic       string               `yaml:"logic,omitempty"`
	MinMatches  int                  `yaml:"min_matches,omitempty"`
	Repeatable  bool                 `yaml:"repeatable,omitempty"`
	Priority    int32                `yaml:"priority,omitempty"`
	Active      *bool                `yaml:"active,omitempty"`
	DelayTurns  int                  `yaml:"delay_turns,omitempty"`
	ExpiryTurns int                  `yaml:"expiry_turns,omitempty"`
	Chain       string               `yaml:"chain,omitempty"`
	Conditions  []conditionRecord    `yaml:"conditions,omitempty"`
	Outcomes    []eventOutcomeRecord `yaml:"outcomes,omitempty"`
}

type chainRecord struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name,omitempty"`
	Events []string `yaml:"events"`
}

type triggerRecord struct {
	Kind string    `yaml:"kind"`
	Args yaml.Node `yaml:"args,omitempty"`
}

type challengeOutcomeRecord struct {
	Description string          `yaml:"description"`
	Triggers    []triggerRecord `yaml:"triggers,omitempty"`
}

type challengeOutcomesRecord struct {
	Success         challengeOutcomeRecord  `yaml:"success"`
	Failure         challengeOutcomeRecord  `yaml:"failure"`
	CriticalSuccess *challengeOutcomeRecord `yaml:"critical_success,omitempty"`
	CriticalFailure *challengeOutcomeRecord `yaml:"critical_failure,omitempty"`
}

type challengeRecord struct {
	ID          string                  `yaml:"id"`
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description,omitempty"`
	Skill       string                  `yaml:"skill"`
	DC          int                     `yaml:"dc"`
	Active      *bool                   `yaml:"active,omitempty"`
	Outcomes    challengeOutcomesRecord `yaml:"outcomes"`
}
