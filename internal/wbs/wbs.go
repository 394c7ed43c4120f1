// Package wbs derives a work breakdown structure (epics, features, user
// stories, synthetic technical stories, sprint allocation) from a canonical
// PRD. Generation is a pure function of its input and the reference time.
package wbs

import (
	"fmt"
	"sort"
	"time"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/prd"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/progress"
)

// Work item states used by the orchestrator. StatusNew is the initial state
// for every generated story; the completion phase moves eligible technical
// stories to StatusClosed.
const (
	StatusNew    = "New"
	StatusClosed = "Closed"
)

type Structure struct {
	Epics            []Epic           `json:"epics"`
	Features         []Feature        `json:"features"`
	UserStories      []UserStory      `json:"user_stories"`
	TechnicalStories []TechnicalStory `json:"technical_stories"`
	Sprints          []Sprint         `json:"sprints"`
}

type Epic struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	FeatureNames []string `json:"feature_names"`
}

type Feature struct {
	Name            string `json:"name"`
	EpicName        string `json:"epic_name"`
	Priority        string `json:"priority"`
	EstimatedPoints int    `json:"estimated_points"`
}

type UserStory struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	FeatureName        string   `json:"feature_name"`
	Priority           string   `json:"priority"`
	StoryPoints        int      `json:"story_points"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Status             string   `json:"status"`
}

type TechnicalStory struct {
	Title                 string `json:"title"`
	Description           string `json:"description"`
	StoryPoints           int    `json:"story_points"`
	AutoComplete          bool   `json:"auto_complete"`
	AutoCompleteCondition string `json:"auto_complete_condition,omitempty"`
	Status                string `json:"status"`
}

type Sprint struct {
	Number        int       `json:"number"`
	DurationWeeks int       `json:"duration_weeks"`
	StoryRefs     []string  `json:"story_refs"`
	TotalPoints   int       `json:"total_points"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

// Generate builds the full work breakdown for a PRD. The same document and
// reference time always produce the same structure.
func Generate(doc *prd.Document, now time.Time) *Structure {
	s := &Structure{}
	s.deriveEpics(doc)
	s.deriveStories(doc)
	s.synthesizeTechnicalStories(doc)
	s.allocateSprints(doc, now)
	return s
}

// deriveEpics assigns every feature to exactly one epic, honoring an explicit
// epic field before falling back to the keyword heuristic.
func (s *Structure) deriveEpics(doc *prd.Document) {
	index := map[string]int{}
	for _, f := range doc.Features {
		epicName := f.Epic
		epicDesc := ""
		if epicName == "" {
			cat := ClassifyFeature(f.Name)
			epicName = cat.DisplayName()
			epicDesc = cat.Description()
		} else {
			epicDesc = fmt.Sprintf("Features grouped under %s", epicName)
		}
		i, ok := index[epicName]
		if !ok {
			s.Epics = append(s.Epics, Epic{Name: epicName, Description: epicDesc})
			i = len(s.Epics) - 1
			index[epicName] = i
		}
		s.Epics[i].FeatureNames = append(s.Epics[i].FeatureNames, f.Name)
		s.Features = append(s.Features, Feature{
			Name:            f.Name,
			EpicName:        epicName,
			Priority:        f.Priority,
			EstimatedPoints: EstimateFeaturePoints(len(f.UserStories), f.Description),
		})
	}
}

func (s *Structure) deriveStories(doc *prd.Document) {
	for _, f := range doc.Features {
		for _, story := range f.UserStories {
			s.UserStories = append(s.UserStories, UserStory{
				Title:              story,
				Description:        story,
				FeatureName:        f.Name,
				Priority:           f.Priority,
				StoryPoints:        EstimateStoryPoints(story),
				AcceptanceCriteria: f.AcceptanceCriteria,
				Status:             StatusNew,
			})
		}
	}
}

// synthesizeTechnicalStories emits one story per declared environment, one
// per data-model entity, and the three fixed infrastructure stories. Each
// carries the progress condition that closes it automatically.
func (s *Structure) synthesizeTechnicalStories(doc *prd.Document) {
	for _, env := range doc.Technical.Environments {
		s.TechnicalStories = append(s.TechnicalStories, TechnicalStory{
			Title:                 fmt.Sprintf("Provision %s environment", env),
			Description:           fmt.Sprintf("Create the %s Power Platform environment with Dataverse", env),
			StoryPoints:           3,
			AutoComplete:          true,
			AutoCompleteCondition: progress.EnvironmentCreated(env),
			Status:                StatusNew,
		})
	}
	for _, entity := range doc.Technical.DataModel {
		s.TechnicalStories = append(s.TechnicalStories, TechnicalStory{
			Title:                 fmt.Sprintf("Create %s table", entity.Name),
			Description:           fmt.Sprintf("Create the %s Dataverse table and add it to the solution", entity.Name),
			StoryPoints:           2,
			AutoComplete:          true,
			AutoCompleteCondition: progress.EntityCreated(entity.Name),
			Status:                StatusNew,
		})
	}
	s.TechnicalStories = append(s.TechnicalStories,
		TechnicalStory{
			Title:                 "Create app registration",
			Description:           "Register the application in the identity provider and grant API permissions",
			StoryPoints:           2,
			AutoComplete:          true,
			AutoCompleteCondition: progress.AppRegistrationCreated,
			Status:                StatusNew,
		},
		TechnicalStory{
			Title:                 "Create solution publisher",
			Description:           "Create the Dataverse publisher that owns the customization prefix",
			StoryPoints:           1,
			AutoComplete:          true,
			AutoCompleteCondition: progress.PublisherCreated,
			Status:                StatusNew,
		},
		TechnicalStory{
			Title:                 "Create solution",
			Description:           "Create the unmanaged solution bound to the publisher",
			StoryPoints:           1,
			AutoComplete:          true,
			AutoCompleteCondition: progress.SolutionCreated,
			Status:                StatusNew,
		},
	)
}

type allocItem struct {
	ref    string
	points int
}

// allocateSprints orders technical stories first, then user stories by
// priority, and distributes them into sprintCount buckets preserving order.
// Uniform High priority for technical work is intentional even though it
// front-loads sprint 1 with infrastructure.
func (s *Structure) allocateSprints(doc *prd.Document, now time.Time) {
	sprintCount := doc.Project.SprintCount
	if sprintCount <= 0 {
		sprintCount = prd.DefaultSprintCount
	}
	durationWeeks := doc.Project.SprintDurationWeeks
	if durationWeeks <= 0 {
		durationWeeks = prd.DefaultSprintDurationWeeks
	}

	var items []allocItem
	for _, ts := range s.TechnicalStories {
		items = append(items, allocItem{ref: ts.Title, points: ts.StoryPoints})
	}
	ordered := make([]UserStory, len(s.UserStories))
	copy(ordered, s.UserStories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityRank(ordered[i].Priority) < priorityRank(ordered[j].Priority)
	})
	for _, us := range ordered {
		items = append(items, allocItem{ref: us.Title, points: us.StoryPoints})
	}

	perSprint := (len(items) + sprintCount - 1) / sprintCount
	if perSprint == 0 {
		perSprint = 1
	}
	start := now.UTC().Truncate(24 * time.Hour)
	for i := 0; i < sprintCount; i++ {
		lo := i * perSprint
		hi := lo + perSprint
		if lo > len(items) {
			lo = len(items)
		}
		if hi > len(items) {
			hi = len(items)
		}
		sprint := Sprint{
			Number:        i + 1,
			DurationWeeks: durationWeeks,
			StartDate:     start.AddDate(0, 0, i*durationWeeks*7),
			EndDate:       start.AddDate(0, 0, (i+1)*durationWeeks*7-1),
		}
		for _, item := range items[lo:hi] {
			sprint.StoryRefs = append(sprint.StoryRefs, item.ref)
			sprint.TotalPoints += item.points
		}
		s.Sprints = append(s.Sprints, sprint)
	}
}

func priorityRank(p string) int {
	switch p {
	case "High":
		return 0
	case "Medium":
		return 1
	case "Low":
		return 2
	default:
		return 1
	}
}
