package prd

import "fmt"

// Result reports every invariant violation found in a document, not just the
// first one.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks the canonical PRD invariants: a non-empty product name, at
// least one feature, and at least one user story per feature.
func Validate(doc *Document) Result {
	var errs []string
	if doc == nil {
		return Result{Valid: false, Errors: []string{"prd document is nil"}}
	}
	if doc.Product.Name == "" {
		errs = append(errs, "projectName is required (product.name is empty)")
	}
	if len(doc.Features) == 0 {
		errs = append(errs, "at least one feature is required")
	}
	for i, f := range doc.Features {
		if f.Name == "" {
			errs = append(errs, fmt.Sprintf("feature %d: name is required", i+1))
		}
		if len(f.UserStories) == 0 {
			errs = append(errs, fmt.Sprintf("feature %q: at least one user story is required", featureLabel(f, i)))
		}
	}
	if doc.Project.SprintCount < 0 {
		errs = append(errs, "project.sprint_count must not be negative")
	}
	if doc.Project.SprintDurationWeeks < 0 {
		errs = append(errs, "project.sprint_duration_weeks must not be negative")
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func featureLabel(f Feature, idx int) string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("#%d", idx+1)
}
