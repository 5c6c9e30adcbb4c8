package orchestrator

import "testing"

func TestCompendiumFromSheet(t *testing.T) {
	got := CompendiumFromSheet(`{
		"ancestry": {"name": "Dwarf"},
		"class_levels": {"Fighter": 3, "Rogue": 2},
		"spellcasting": {"spells": ["Light"]},
		"features": [{"name": "Darkvision"}],
		"bestiary": ["Goblin", "Owlbear"]
	}`)
	if got.Origin != "Dwarf" {
		t.Fatalf("origin = %q, want %q", got.Origin, "Dwarf")
	}
	if got.ClassLevels["Fighter"] != 3 || got.ClassLevels["Rogue"] != 2 {
		t.Fatalf("classes = %v", got.ClassLevels)
	}
	if len(got.KnownSpells) != 1 || got.KnownSpells[0] != "Light" {
		t.Fatalf("spells = %v", got.KnownSpells)
	}
	if len(got.Feats) != 1 || got.Feats[0] != "Darkvision" {
		t.Fatalf("feats = %v", got.Feats)
	}
	if len(got.KnownCreatures) != 2 {
		t.Fatalf("creatures = %v", got.KnownCreatures)
	}
}

func TestCompendiumFromSheetSingleClass(t *testing.T) {
	got := CompendiumFromSheet(`{"class":"Cleric","level":4}`)
	if got.ClassLevels["Cleric"] != 4 {
		t.Fatalf("classes = %v", got.ClassLevels)
	}
}

func TestCompendiumFromSheetInvalid(t *testing.T) {
	got := CompendiumFromSheet(`not json`)
	if got.Origin != "" || len(got.ClassLevels) != 0 {
		t.Fatalf("compendium = %+v, want empty", got)
	}
}
