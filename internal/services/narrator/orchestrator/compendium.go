package orchestrator

import (
	"strings"

	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/tidwall/gjson"
)

// Sheets come from several authoring tools, so each fact is read from the
// first path that is present.
var (
	originPaths   = []string{"origin", "race", "ancestry", "species"}
	classPaths    = []string{"classes", "class_levels"}
	spellPaths    = []string{"spells", "known_spells", "spellcasting.spells"}
	featPaths     = []string{"feats", "features"}
	creaturePaths = []string{"known_creatures", "bestiary", "creatures"}
)

// CompendiumFromSheet reads compendium facts from a free-form character sheet.
// Malformed or empty sheets yield an empty compendium.
func CompendiumFromSheet(sheet string) narrative.CompendiumContext {
	out := narrative.CompendiumContext{ClassLevels: map[string]int{}}
	if strings.TrimSpace(sheet) == "" || !gjson.Valid(sheet) {
		return out
	}
	doc := gjson.Parse(sheet)

	if v := first(doc, originPaths); v.Exists() {
		out.Origin = nameOf(v)
	}
	if v := first(doc, classPaths); v.Exists() {
		readClasses(v, out.ClassLevels)
	} else if class := doc.Get("class"); class.Exists() {
		level := int(doc.Get("level").Int())
		if level <= 0 {
			level = 1
		}
		out.ClassLevels[nameOf(class)] = level
	}
	out.KnownSpells = names(first(doc, spellPaths))
	out.Feats = names(first(doc, featPaths))
	out.KnownCreatures = names(first(doc, creaturePaths))
	return out
}

func first(doc gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// nameOf accepts either a bare string or an object with a name field.
func nameOf(v gjson.Result) string {
	if v.IsObject() {
		return strings.TrimSpace(v.Get("name").String())
	}
	return strings.TrimSpace(v.String())
}

func names(v gjson.Result) []string {
	if !v.IsArray() {
		if n := nameOf(v); n != "" && v.Exists() {
			return []string{n}
		}
		return nil
	}
	var out []string
	v.ForEach(func(_, item gjson.Result) bool {
		if n := nameOf(item); n != "" {
			out = append(out, n)
		}
		return true
	})
	return out
}

// readClasses accepts [{"name":"Wizard","level":3}] or {"Wizard":3}.
func readClasses(v gjson.Result, into map[string]int) {
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			name := nameOf(item)
			if name == "" {
				return true
			}
			level := int(item.Get("level").Int())
			if level <= 0 {
				level = 1
			}
			into[name] = level
			return true
		})
	case v.IsObject():
		v.ForEach(func(key, level gjson.Result) bool {
			into[key.String()] = int(level.Int())
			return true
		})
	}
}
