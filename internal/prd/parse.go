package prd

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse normalizes raw PRD content into a Document. Formats are attempted in
// order (JSON, YAML, markdown) and the first successful parse wins.
func Parse(raw string) (*Document, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("prd content is empty")
	}
	attempts := []struct {
		name string
		fn   func(string) (*Document, error)
	}{
		{"json", parseJSON},
		{"yaml", parseYAML},
		{"markdown", parseMarkdown},
	}
	var reasons []string
	for _, a := range attempts {
		doc, err := a.fn(raw)
		if err == nil {
			doc.applyDefaults()
			return doc, nil
		}
		reasons = append(reasons, fmt.Sprintf("%s: %v", a.name, err))
	}
	return nil, fmt.Errorf("unable to parse PRD in any supported format (%s)", strings.Join(reasons, "; "))
}

func parseJSON(raw string) (*Document, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return fromMap(m)
}

func parseYAML(raw string) (*Document, error) {
	var m map[string]any
	if err := yaml.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("document is empty")
	}
	return fromMap(m)
}

// fromMap maps a permissively shaped document onto the canonical form,
// accepting alternate field names (name/title, stories/userStories, ...).
func fromMap(m map[string]any) (*Document, error) {
	if _, ok := firstKey(m, "product", "features"); !ok {
		return nil, fmt.Errorf("no product or features section")
	}
	doc := &Document{}
	if product, ok := mapValue(m, "product"); ok {
		doc.Product = Product{
			Name:        stringKey(product, "name", "title"),
			Description: stringKey(product, "description"),
			Owner:       stringKey(product, "owner"),
			Version:     stringKey(product, "version"),
		}
	}
	for _, item := range sliceValue(m, "features") {
		fm, ok := item.(map[string]any)
		if !ok {
			// A bare string is a feature with just a name.
			if s, ok := item.(string); ok {
				doc.Features = append(doc.Features, Feature{Name: s})
			}
			continue
		}
		doc.Features = append(doc.Features, Feature{
			Name:               stringKey(fm, "name", "title"),
			Description:        stringKey(fm, "description"),
			Priority:           stringKey(fm, "priority"),
			UserStories:        storyStrings(sliceKey(fm, "userStories", "user_stories", "stories")),
			AcceptanceCriteria: stringSlice(sliceKey(fm, "acceptanceCriteria", "acceptance_criteria", "criteria")),
			Epic:               stringKey(fm, "epic"),
		})
	}
	if tech, ok := mapValue(m, "technical"); ok {
		doc.Technical.Environments = namedStrings(sliceKey(tech, "environments"))
		doc.Technical.Integrations = stringSlice(sliceKey(tech, "integrations"))
		doc.Technical.Security = stringKey(tech, "security")
		for _, item := range sliceKey(tech, "dataModel", "data_model", "entities") {
			doc.Technical.DataModel = append(doc.Technical.DataModel, entityFromAny(item))
		}
	}
	if proj, ok := firstKey(m, "project", "timeline"); ok {
		if pm, ok := proj.(map[string]any); ok {
			doc.Project = Timeline{
				DurationWeeks:       intKey(pm, "durationWeeks", "duration_weeks"),
				SprintCount:         intKey(pm, "sprintCount", "sprint_count", "sprints"),
				SprintDurationWeeks: intKey(pm, "sprintDurationWeeks", "sprint_duration_weeks"),
				Methodology:         stringKey(pm, "methodology"),
			}
		}
	}
	return doc, nil
}

func entityFromAny(item any) Entity {
	switch v := item.(type) {
	case string:
		return Entity{Name: v}
	case map[string]any:
		e := Entity{
			Name:         stringKey(v, "name", "title"),
			Description:  stringKey(v, "description"),
			ParentEntity: stringKey(v, "parentEntity", "parent_entity", "parent"),
		}
		for _, f := range sliceKey(v, "fields") {
			switch fv := f.(type) {
			case string:
				e.Fields = append(e.Fields, Field{Name: fv})
			case map[string]any:
				e.Fields = append(e.Fields, Field{
					Name: stringKey(fv, "name", "title"),
					Type: stringKey(fv, "type"),
				})
			}
		}
		return e
	default:
		return Entity{}
	}
}

// storyStrings flattens user stories declared either as plain strings or as
// objects carrying a title/description.
func storyStrings(items []any) []string {
	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if s := stringKey(v, "title", "name", "description"); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// namedStrings accepts either plain strings or objects with a name field.
func namedStrings(items []any) []string {
	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if s := stringKey(v, "name", "displayName", "display_name"); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func stringSlice(items []any) []string {
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapValue(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	mv, ok := v.(map[string]any)
	return mv, ok
}

func sliceValue(m map[string]any, key string) []any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	sv, _ := v.([]any)
	return sv
}

func sliceKey(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		if s := sliceValue(m, k); s != nil {
			return s
		}
	}
	return nil
}

func stringKey(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func intKey(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

func firstKey(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
