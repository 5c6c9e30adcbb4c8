package narrative

// TriggerEvaluation is the result of evaluating one event.
type TriggerEvaluation struct {
	IsTriggered  bool
	MatchedIDs   []string
	UnmatchedIDs []string
	Total        int
	MatchRatio   float64
}

// Evaluate decides whether event's conditions hold against ctx. It is
// deterministic and performs no I/O.
func Evaluate(event *NarrativeEvent, ctx *TriggerContext) TriggerEvaluation {
	if event == nil {
		return TriggerEvaluation{}
	}
	if ctx == nil {
		ctx = NewTriggerContext()
	}
	total := len(event.Conditions)
	result := TriggerEvaluation{Total: total}
	if total == 0 {
		return result
	}

	matched := make(map[string]bool, total)
	for _, tc := range event.Conditions {
		if ConditionMet(tc.Condition, ctx) {
			result.MatchedIDs = append(result.MatchedIDs, tc.ID)
			matched[tc.ID] = true
		} else {
			result.UnmatchedIDs = append(result.UnmatchedIDs, tc.ID)
		}
	}
	result.MatchRatio = float64(len(result.MatchedIDs)) / float64(total)

	combinator := combinatorGate(event.Logic, len(result.MatchedIDs), total)
	required := requiredGate(event.Conditions, matched)
	result.IsTriggered = combinator && required
	return result
}

func combinatorGate(logic TriggerLogic, matched, total int) bool {
	switch logic.Kind {
	case LogicAll:
		return matched == total
	case LogicAny:
		return matched > 0
	case LogicAtLeast:
		return matched >= logic.Min
	default:
		return false
	}
}

func requiredGate(conditions []TriggerCondition, matched map[string]bool) bool {
	for _, tc := range conditions {
		if tc.Required && !matched[tc.ID] {
			return false
		}
	}
	return true
}

// ConditionMet evaluates one condition against ctx.
func ConditionMet(c Condition, ctx *TriggerContext) bool {
	switch v := Deref(c).(type) {
	case FlagSet:
		return ctx.Flags[v.Flag]
	case FlagNotSet:
		return !ctx.Flags[v.Flag]
	case PlayerAtLocation:
		return v.LocationID != "" && ctx.CurrentLocationID == v.LocationID
	case HasItem:
		quantity := v.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		return ctx.ItemCount(v.Item) >= quantity
	case MissingItem:
		return ctx.ItemCount(v.Item) == 0
	case EventCompleted:
		done, ok := ctx.CompletedEvents[v.EventID]
		if !ok {
			return false
		}
		return v.Outcome == "" || done.Outcome == v.Outcome
	case TurnCount:
		return turnCountMet(v, ctx)
	case ChallengeCompleted:
		r, ok := ctx.CompletedChallenges[v.ChallengeID]
		switch {
		case !ok:
			return false
		case v.RequireSuccess == nil:
			return r.Succeeded || r.Failed
		case *v.RequireSuccess:
			return r.Succeeded
		default:
			return r.Failed
		}
	case DialogueTopic:
		for _, topic := range ctx.RecentTopics {
			if containsFold(topic, v.Keyword) {
				return true
			}
		}
		return false
	case TimeAtLocation:
		return v.LocationID != "" &&
			ctx.CurrentLocationID == v.LocationID &&
			equalFold(ctx.TimeOfDay, v.TimeOfDay)
	case NPCAction:
		for _, action := range ctx.RecentNPCActions {
			if containsFold(action, v.Keyword) {
				return true
			}
		}
		return false
	case RelationshipThreshold:
		sentiment, ok := ctx.Relationships[v.NPCID]
		if !ok {
			return false
		}
		return (v.Min == nil || sentiment >= *v.Min) && (v.Max == nil || sentiment <= *v.Max)
	case StatThreshold:
		value, ok := ctx.CharacterStats[v.Stat]
		if !ok {
			return false
		}
		return (v.Min == nil || value >= *v.Min) && (v.Max == nil || value <= *v.Max)
	case KnowsSpell:
		return listContainsFold(ctx.Compendium.KnownSpells, v.Spell)
	case HasFeat:
		return listContainsFold(ctx.Compendium.Feats, v.Feat)
	case HasClass:
		for class, level := range ctx.Compendium.ClassLevels {
			if equalFold(class, v.Class) {
				return v.MinLevel <= 0 || level >= v.MinLevel
			}
		}
		return false
	case HasOrigin:
		return ctx.Compendium.Origin != "" && equalFold(ctx.Compendium.Origin, v.Origin)
	case KnowsCreature:
		return listContainsFold(ctx.Compendium.KnownCreatures, v.Creature)
	case Custom:
		return ctx.CustomResults[v.Description]
	case CombatResult:
		// Combat outcomes are not part of the trigger context yet.
		return false
	default:
		return false
	}
}

func turnCountMet(c TurnCount, ctx *TriggerContext) bool {
	if c.SinceEvent == "" {
		return ctx.TurnCount >= c.Turns
	}
	done, ok := ctx.CompletedEvents[c.SinceEvent]
	if !ok {
		return false
	}
	return ctx.TurnCount-done.Turn >= c.Turns
}
