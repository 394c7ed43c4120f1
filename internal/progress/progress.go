// Package progress defines the condition keys shared between work-breakdown
// generation (which stamps them onto technical stories) and the orchestrator
// (which flips them as infrastructure comes up). Both sides derive keys here
// so they cannot drift.
package progress

import "strings"

const (
	AppRegistrationCreated = "app_registration_created"
	PublisherCreated       = "publisher_created"
	SolutionCreated        = "solution_created"
)

// EnvironmentCreated returns the condition key for a named environment.
func EnvironmentCreated(name string) string {
	return "environment_" + slug(name) + "_created"
}

// EntityCreated returns the condition key for a named data-model entity.
func EntityCreated(name string) string {
	return "entity_" + slug(name) + "_created"
}

func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
