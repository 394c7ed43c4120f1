package prd

// Document is the canonical Project Requirements Document shape every input
// format is normalized into. It is immutable once validated.
type Document struct {
	Product   Product   `json:"product" yaml:"product"`
	Features  []Feature `json:"features" yaml:"features"`
	Technical Technical `json:"technical" yaml:"technical"`
	Project   Timeline  `json:"project" yaml:"project"`
}

type Product struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Owner       string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
}

type Feature struct {
	Name               string   `json:"name" yaml:"name"`
	Description        string   `json:"description,omitempty" yaml:"description,omitempty"`
	Priority           string   `json:"priority" yaml:"priority" enum:"High,Medium,Low"`
	UserStories        []string `json:"user_stories" yaml:"user_stories"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
	Epic               string   `json:"epic,omitempty" yaml:"epic,omitempty"`
}

type Technical struct {
	Environments []string `json:"environments" yaml:"environments"`
	DataModel    []Entity `json:"data_model,omitempty" yaml:"data_model,omitempty"`
	Integrations []string `json:"integrations,omitempty" yaml:"integrations,omitempty"`
	Security     string   `json:"security,omitempty" yaml:"security,omitempty"`
}

// Entity is one declared data-model table.
type Entity struct {
	Name         string  `json:"name" yaml:"name"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty"`
	Fields       []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
	ParentEntity string  `json:"parent_entity,omitempty" yaml:"parent_entity,omitempty"`
}

type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

type Timeline struct {
	DurationWeeks       int    `json:"duration_weeks" yaml:"duration_weeks"`
	SprintCount         int    `json:"sprint_count" yaml:"sprint_count"`
	SprintDurationWeeks int    `json:"sprint_duration_weeks" yaml:"sprint_duration_weeks"`
	Methodology         string `json:"methodology" yaml:"methodology"`
}

// Defaults applied during normalization when the input leaves them out.
const (
	DefaultSprintCount         = 6
	DefaultSprintDurationWeeks = 2
	DefaultMethodology         = "Agile"
	DefaultPriority            = "Medium"
)

// DefaultEnvironments returns the environment set assumed when a PRD declares
// none.
func DefaultEnvironments() []string {
	return []string{"dev", "test", "prod"}
}

// applyDefaults fills documented defaults on a freshly parsed document.
func (d *Document) applyDefaults() {
	if len(d.Technical.Environments) == 0 {
		d.Technical.Environments = DefaultEnvironments()
	}
	if d.Project.SprintCount == 0 {
		d.Project.SprintCount = DefaultSprintCount
	}
	if d.Project.SprintDurationWeeks == 0 {
		d.Project.SprintDurationWeeks = DefaultSprintDurationWeeks
	}
	if d.Project.DurationWeeks == 0 {
		d.Project.DurationWeeks = d.Project.SprintCount * d.Project.SprintDurationWeeks
	}
	if d.Project.Methodology == "" {
		d.Project.Methodology = DefaultMethodology
	}
	for i := range d.Features {
		if d.Features[i].Priority == "" {
			d.Features[i].Priority = DefaultPriority
		}
	}
}
