package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/clients"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/progress"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/schema"
)

// setupPlatform creates the environments, publisher, solution and data
// model. Like the work-tracking branch it is best-effort per step: one
// failed environment does not stop the rest, and every step's outcome is
// reflected in the progress flags this branch owns.
func (o Orchestrator) setupPlatform(ctx context.Context, state *ExecutionState) PhaseEntry {
	result := &PlatformResult{}
	state.Platform = result
	registry := schema.NewRegistry(o.Config.Publisher.Prefix)

	for _, envName := range state.PRD.Technical.Environments {
		env, err := o.Platform.CreateEnvironment(ctx, clients.EnvironmentRequest{
			DisplayName: fmt.Sprintf("%s - %s", state.ProjectName, envName),
			Name:        envSlug(state.ProjectName, envName),
			Type:        o.Config.Platform.EnvironmentType,
			Region:      o.Config.Platform.Region,
			Dataverse:   o.Config.Platform.Dataverse,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create environment %q: %v", envName, err))
			continue
		}
		result.Environments = append(result.Environments, env)
		state.SetProgress(progress.EnvironmentCreated(envName), true)
	}

	publisher, err := o.Platform.CreatePublisher(ctx, clients.PublisherRequest{
		FriendlyName: o.Config.Publisher.FriendlyName,
		UniqueName:   o.Config.Publisher.UniqueName,
		Prefix:       o.Config.Publisher.Prefix,
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("create publisher: %v", err))
	} else {
		result.Publisher = &publisher
		state.SetProgress(progress.PublisherCreated, true)
	}

	var solutionUniqueName string
	if result.Publisher != nil {
		solution, err := o.Platform.CreateSolution(ctx, clients.SolutionRequest{
			FriendlyName: state.ProjectName,
			UniqueName:   envSlug(o.Config.Publisher.Prefix, state.ProjectName),
			PublisherID:  result.Publisher.ID,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create solution: %v", err))
		} else {
			result.Solution = &solution
			solutionUniqueName = solution.UniqueName
			state.SetProgress(progress.SolutionCreated, true)
		}
	} else {
		result.Errors = append(result.Errors, "create solution: skipped, publisher was not created")
	}

	for _, entity := range state.PRD.Technical.DataModel {
		def := registry.RegisterTable(entity.Name)
		columns := make([]clients.Column, 0, len(entity.Fields))
		for _, f := range entity.Fields {
			columns = append(columns, clients.Column{Name: f.Name, Type: f.Type})
		}
		if err := o.Platform.CreateTable(ctx, clients.TableRequest{
			DisplayName: def.DisplayName,
			LogicalName: def.LogicalName,
			SchemaName:  def.SchemaName,
			Columns:     columns,
		}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create table %q: %v", entity.Name, err))
			continue
		}
		result.DataModel = append(result.DataModel, def)
		state.SetProgress(progress.EntityCreated(entity.Name), true)

		if solutionUniqueName != "" {
			if err := o.Platform.AddTableToSolution(ctx, def.LogicalName, solutionUniqueName); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("add table %q to solution: %v", entity.Name, err))
			}
		}
	}

	// Relationships come after all tables so a child declared before its
	// parent still resolves.
	for _, entity := range state.PRD.Technical.DataModel {
		if entity.ParentEntity == "" {
			continue
		}
		parentDef := registry.RegisterTable(entity.ParentEntity)
		childDef := registry.RegisterTable(entity.Name)
		rel, err := registry.CreateRelationship(parentDef.LogicalName, childDef.LogicalName, "")
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("register relationship %s -> %s: %v", entity.ParentEntity, entity.Name, err))
			continue
		}
		if err := o.Platform.CreateOneToManyRelationship(ctx, clients.RelationshipRequest{
			SchemaName:       rel.SchemaName,
			ParentTable:      rel.ParentTable,
			ChildTable:       rel.ChildTable,
			LookupSchemaName: rel.LookupSchemaName,
		}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create relationship %s: %v", rel.SchemaName, err))
		}
	}

	entry := PhaseEntry{Name: PhasePlatform, Status: PhaseCompleted, Result: result}
	if len(result.Errors) > 0 {
		entry.Status = PhaseFailed
		entry.Error = result.Errors[0]
	}
	return entry
}

func envSlug(parts ...string) string {
	joined := strings.Join(parts, "-")
	joined = strings.ToLower(joined)
	return strings.ReplaceAll(joined, " ", "-")
}
