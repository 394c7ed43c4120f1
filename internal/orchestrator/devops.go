package orchestrator

import (
	"context"
	"fmt"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/clients"
)

// setupWorkTracking creates the project container and one work item per
// epic, feature, user story and technical story, plus one iteration per
// sprint. Linkage is best-effort: a child whose parent creation failed is
// created without a parent link and counted as orphaned rather than
// aborting the subsystem.
func (o Orchestrator) setupWorkTracking(ctx context.Context, state *ExecutionState) PhaseEntry {
	result := &WorkTrackingResult{
		EpicIDs:      map[string]int{},
		FeatureIDs:   map[string]int{},
		StoryIDs:     map[string]int{},
		IterationIDs: map[string]string{},
	}
	state.WorkTracking = result

	processTemplate := o.Config.WorkTracking.ProcessTemplate
	if processTemplate == "" {
		processTemplate = "Agile"
	}
	visibility := o.Config.WorkTracking.Visibility
	if visibility == "" {
		visibility = "private"
	}

	project, err := o.Work.CreateProject(ctx, clients.ProjectRequest{
		Name:            state.ProjectName,
		Description:     state.PRD.Product.Description,
		ProcessTemplate: processTemplate,
		Visibility:      visibility,
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("create project: %v", err))
		return PhaseEntry{
			Name:   PhaseWorkTracking,
			Status: PhaseFailed,
			Result: result,
			Error:  result.Errors[0],
		}
	}
	result.Project = project

	wb := state.WorkBreakdown
	for _, epic := range wb.Epics {
		result.Epics.Attempted++
		item, err := o.Work.CreateWorkItem(ctx, clients.WorkItemRequest{
			Type:        "Epic",
			Title:       epic.Name,
			Description: epic.Description,
			Project:     project.Name,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create epic %q: %v", epic.Name, err))
			continue
		}
		result.Epics.Created++
		result.EpicIDs[epic.Name] = item.ID
	}

	for _, feature := range wb.Features {
		result.Features.Attempted++
		req := clients.WorkItemRequest{
			Type:     "Feature",
			Title:    feature.Name,
			Project:  project.Name,
			Priority: feature.Priority,
		}
		if parentID, ok := result.EpicIDs[feature.EpicName]; ok {
			req.ParentID = &parentID
		}
		item, err := o.Work.CreateWorkItem(ctx, req)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create feature %q: %v", feature.Name, err))
			continue
		}
		result.Features.Created++
		result.FeatureIDs[feature.Name] = item.ID
		if req.ParentID != nil {
			result.Features.Linked++
		} else {
			result.Features.Orphaned++
		}
	}

	for _, story := range wb.UserStories {
		result.Stories.Attempted++
		points := story.StoryPoints
		req := clients.WorkItemRequest{
			Type:        "User Story",
			Title:       story.Title,
			Description: story.Description,
			Project:     project.Name,
			Priority:    story.Priority,
			StoryPoints: &points,
		}
		if parentID, ok := result.FeatureIDs[story.FeatureName]; ok {
			req.ParentID = &parentID
		}
		item, err := o.Work.CreateWorkItem(ctx, req)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create user story %q: %v", story.Title, err))
			continue
		}
		result.Stories.Created++
		result.StoryIDs[story.Title] = item.ID
		if req.ParentID != nil {
			result.Stories.Linked++
		} else {
			result.Stories.Orphaned++
		}
	}

	for _, story := range wb.TechnicalStories {
		result.Technical.Attempted++
		points := story.StoryPoints
		item, err := o.Work.CreateWorkItem(ctx, clients.WorkItemRequest{
			Type:        "User Story",
			Title:       story.Title,
			Description: story.Description,
			Project:     project.Name,
			Priority:    "High",
			StoryPoints: &points,
			Tags:        []string{"technical", "auto-complete"},
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create technical story %q: %v", story.Title, err))
			continue
		}
		result.Technical.Created++
		result.StoryIDs[story.Title] = item.ID
	}

	for _, sprint := range wb.Sprints {
		result.Iterations.Attempted++
		name := fmt.Sprintf("Sprint %d", sprint.Number)
		iter, err := o.Work.CreateIteration(ctx, clients.IterationRequest{
			Name:       name,
			StartDate:  sprint.StartDate,
			FinishDate: sprint.EndDate,
			Project:    project.Name,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("create iteration %q: %v", name, err))
			continue
		}
		result.Iterations.Created++
		result.IterationIDs[name] = iter.ID
	}

	entry := PhaseEntry{Name: PhaseWorkTracking, Status: PhaseCompleted, Result: result}
	if len(result.Errors) > 0 {
		entry.Status = PhaseFailed
		entry.Error = result.Errors[0]
	}
	return entry
}
