// Package clients defines the contracts for the three cloud collaborators
// the orchestrator drives: the identity provider, the work-tracking system
// and the low-code platform. Real REST implementations live outside this
// repository; the in-package Simulator backs dry runs and tests.
package clients

import (
	"context"
	"time"
)

// AppRegistrationRequest describes the identity registration scoped to one
// project.
type AppRegistrationRequest struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

type AppRegistration struct {
	AppID    string `json:"app_id"`
	ObjectID string `json:"object_id"`
}

type IdentityClient interface {
	CreateAppRegistration(ctx context.Context, req AppRegistrationRequest) (AppRegistration, error)
}

type ProjectRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	ProcessTemplate string `json:"process_template,omitempty"`
	Visibility      string `json:"visibility,omitempty"`
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// WorkItemRequest carries an optional parent link. A nil ParentID creates a
// flat work item.
type WorkItemRequest struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Project     string   `json:"project"`
	Priority    string   `json:"priority,omitempty"`
	ParentID    *int     `json:"parent_id,omitempty"`
	StoryPoints *int     `json:"story_points,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type WorkItem struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

type IterationRequest struct {
	Name       string    `json:"name"`
	StartDate  time.Time `json:"start_date"`
	FinishDate time.Time `json:"finish_date"`
	Project    string    `json:"project"`
}

type Iteration struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type WorkTrackingClient interface {
	CreateProject(ctx context.Context, req ProjectRequest) (Project, error)
	CreateWorkItem(ctx context.Context, req WorkItemRequest) (WorkItem, error)
	CreateIteration(ctx context.Context, req IterationRequest) (Iteration, error)
	UpdateWorkItem(ctx context.Context, id int, fields map[string]any) error
}

type EnvironmentRequest struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Region      string `json:"region,omitempty"`
	Dataverse   bool   `json:"dataverse"`
}

type Environment struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url,omitempty"`
}

type PublisherRequest struct {
	FriendlyName string `json:"friendly_name"`
	UniqueName   string `json:"unique_name"`
	Prefix       string `json:"prefix"`
}

type Publisher struct {
	ID         string `json:"id"`
	UniqueName string `json:"unique_name"`
	Prefix     string `json:"prefix"`
}

type SolutionRequest struct {
	FriendlyName string `json:"friendly_name"`
	UniqueName   string `json:"unique_name"`
	PublisherID  string `json:"publisher_id"`
}

type Solution struct {
	ID         string `json:"id"`
	UniqueName string `json:"unique_name"`
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type TableRequest struct {
	DisplayName string   `json:"display_name"`
	LogicalName string   `json:"logical_name"`
	SchemaName  string   `json:"schema_name"`
	Columns     []Column `json:"columns,omitempty"`
}

type RelationshipRequest struct {
	SchemaName       string `json:"schema_name"`
	ParentTable      string `json:"parent_table"`
	ChildTable       string `json:"child_table"`
	LookupSchemaName string `json:"lookup_schema_name"`
}

type PlatformClient interface {
	CreateEnvironment(ctx context.Context, req EnvironmentRequest) (Environment, error)
	CreatePublisher(ctx context.Context, req PublisherRequest) (Publisher, error)
	CreateSolution(ctx context.Context, req SolutionRequest) (Solution, error)
	CreateTable(ctx context.Context, req TableRequest) error
	CreateOneToManyRelationship(ctx context.Context, req RelationshipRequest) error
	CreateRecord(ctx context.Context, entitySet string, record map[string]any) (string, error)
	CreateMultipleRecords(ctx context.Context, entitySet string, records []map[string]any) ([]string, error)
	AddTableToSolution(ctx context.Context, tableLogicalName, solutionUniqueName string) error
}
