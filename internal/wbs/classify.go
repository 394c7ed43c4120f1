package wbs

import (
	"math"
	"strings"
)

// EpicCategory is the result of the feature classification heuristic. Every
// feature lands in exactly one category; CoreFeatures is the fallback.
type EpicCategory int

const (
	CoreFeatures EpicCategory = iota
	UserManagement
	DataAnalytics
	Administration
)

// ClassifyFeature maps a feature name to an epic category by keyword. The
// check order is fixed so a name matching multiple groups classifies
// deterministically.
func ClassifyFeature(name string) EpicCategory {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "user", "auth", "profile"):
		return UserManagement
	case containsAny(lower, "data", "report", "analytics"):
		return DataAnalytics
	case containsAny(lower, "admin", "config", "setting"):
		return Administration
	default:
		return CoreFeatures
	}
}

func (c EpicCategory) DisplayName() string {
	switch c {
	case UserManagement:
		return "User Management"
	case DataAnalytics:
		return "Data & Analytics"
	case Administration:
		return "Administration"
	default:
		return "Core Features"
	}
}

func (c EpicCategory) Description() string {
	switch c {
	case UserManagement:
		return "User accounts, authentication and profiles"
	case DataAnalytics:
		return "Data management, reporting and analytics"
	case Administration:
		return "Administration, configuration and settings"
	default:
		return "Core product functionality"
	}
}

// EstimateStoryPoints applies the lexical sizing rule to a story text.
func EstimateStoryPoints(story string) int {
	lower := strings.ToLower(story)
	switch {
	case containsAny(lower, "create", "add"):
		return 3
	case containsAny(lower, "update", "edit"):
		return 2
	case containsAny(lower, "view", "list"):
		return 1
	default:
		return 2
	}
}

// EstimateFeaturePoints sizes a feature from its story count, scaled up for
// long descriptions.
func EstimateFeaturePoints(storyCount int, description string) int {
	points := float64(storyCount) * 2
	if len(description) > 200 {
		points *= 1.5
	}
	return int(math.Round(points))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
