package prd

import (
	"fmt"
	"strings"
)

// parseMarkdown is the fallback parser for lightweight-markup PRDs. The
// top-level heading names the product, a second-level heading containing the
// word "feature" opens a new feature record, and list items under a feature
// are user stories (when phrased "As a ...") or acceptance criteria.
func parseMarkdown(raw string) (*Document, error) {
	doc := &Document{}
	var current *Feature
	descriptionOpen := false

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "# ") && !strings.HasPrefix(trimmed, "## "):
			if doc.Product.Name == "" {
				doc.Product.Name = strings.TrimSpace(trimmed[2:])
				descriptionOpen = true
			}
		case strings.HasPrefix(trimmed, "## "):
			descriptionOpen = false
			heading := strings.TrimSpace(trimmed[3:])
			if containsWord(heading, "feature") {
				doc.Features = append(doc.Features, Feature{Name: featureName(heading)})
				current = &doc.Features[len(doc.Features)-1]
			} else {
				// Any other section closes the current feature.
				current = nil
			}
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			if current == nil {
				continue
			}
			item := strings.TrimSpace(trimmed[2:])
			if item == "" {
				continue
			}
			if strings.Contains(item, "As a") {
				current.UserStories = append(current.UserStories, item)
			} else {
				current.AcceptanceCriteria = append(current.AcceptanceCriteria, item)
			}
		case trimmed != "":
			if descriptionOpen && doc.Product.Description == "" {
				doc.Product.Description = trimmed
			}
		}
	}

	if doc.Product.Name == "" && len(doc.Features) == 0 {
		return nil, fmt.Errorf("no top-level heading or feature sections found")
	}
	return doc, nil
}

func containsWord(s, word string) bool {
	return strings.Contains(strings.ToLower(s), word)
}

// featureName strips the "feature" keyword and separators from a heading,
// keeping the heading itself when nothing else remains.
func featureName(heading string) string {
	name := heading
	lower := strings.ToLower(name)
	for _, prefix := range []string{"features", "feature"} {
		if strings.HasPrefix(lower, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	name = strings.TrimSpace(strings.TrimLeft(name, ":-–"))
	if name == "" {
		return heading
	}
	return name
}
