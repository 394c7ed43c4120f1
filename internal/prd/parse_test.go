package prd

import (
	"strings"
	"testing"
)

const jsonPRD = `{
  "product": {"name": "Order Hub", "description": "Order intake"},
  "features": [
    {"name": "Order Entry", "priority": "High", "user_stories": ["As a clerk, I want to create orders"]}
  ],
  "technical": {"environments": ["dev", "prod"]},
  "project": {"sprint_count": 4, "sprint_duration_weeks": 1}
}`

const yamlPRD = `
product:
  name: Order Hub
features:
  - name: Order Entry
    priority: High
    user_stories:
      - As a clerk, I want to create orders
technical:
  environments: [dev, prod]
`

const markdownPRD = `# Order Hub

Order intake for the sales team.

## Feature: Order Entry

- As a clerk, I want to create orders
- Orders must validate stock levels
`

func TestParseJSON(t *testing.T) {
	doc, err := Parse(jsonPRD)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Product.Name != "Order Hub" {
		t.Fatalf("product name = %q", doc.Product.Name)
	}
	if len(doc.Features) != 1 || doc.Features[0].Name != "Order Entry" {
		t.Fatalf("features = %+v", doc.Features)
	}
	if doc.Project.SprintCount != 4 || doc.Project.SprintDurationWeeks != 1 {
		t.Fatalf("timeline = %+v", doc.Project)
	}
	if doc.Project.DurationWeeks != 4 {
		t.Fatalf("duration weeks = %d, want sprint_count*sprint_duration", doc.Project.DurationWeeks)
	}
}

func TestParseYAML(t *testing.T) {
	doc, err := Parse(yamlPRD)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Product.Name != "Order Hub" {
		t.Fatalf("product name = %q", doc.Product.Name)
	}
	if len(doc.Technical.Environments) != 2 {
		t.Fatalf("environments = %v", doc.Technical.Environments)
	}
}

func TestParseMarkdown(t *testing.T) {
	doc, err := Parse(markdownPRD)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Product.Name != "Order Hub" {
		t.Fatalf("product name = %q", doc.Product.Name)
	}
	if doc.Product.Description == "" {
		t.Fatal("expected the first paragraph as description")
	}
	if len(doc.Features) != 1 {
		t.Fatalf("features = %+v", doc.Features)
	}
	f := doc.Features[0]
	if f.Name != "Order Entry" {
		t.Fatalf("feature name = %q", f.Name)
	}
	if len(f.UserStories) != 1 || len(f.AcceptanceCriteria) != 1 {
		t.Fatalf("stories=%v criteria=%v", f.UserStories, f.AcceptanceCriteria)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	doc, err := Parse(`{"product":{"name":"X"},"features":[{"name":"F","user_stories":["As a user, I want things"]}]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := doc.Technical.Environments; len(got) != 3 {
		t.Fatalf("default environments = %v", got)
	}
	if doc.Project.SprintCount != DefaultSprintCount {
		t.Fatalf("sprint count = %d", doc.Project.SprintCount)
	}
	if doc.Project.Methodology != DefaultMethodology {
		t.Fatalf("methodology = %q", doc.Project.Methodology)
	}
	if doc.Features[0].Priority != DefaultPriority {
		t.Fatalf("priority = %q", doc.Features[0].Priority)
	}
}

func TestParseUnparseable(t *testing.T) {
	_, err := Parse("just some words with no structure")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unable to parse PRD in any supported format") {
		t.Fatalf("error = %v", err)
	}
}

func TestParseJSONWinsOverYAML(t *testing.T) {
	// Valid JSON is also valid YAML; the JSON arm must handle it.
	doc, err := Parse(jsonPRD)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Product.Description != "Order intake" {
		t.Fatalf("description = %q", doc.Product.Description)
	}
}
