package orchestrator

import (
	"context"
	"fmt"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/wbs"
)

// completion closes every auto-complete technical story whose progress
// condition has been satisfied. Stories whose condition is absent or false
// stay open. This phase reports its tally and never fails the run.
func (o Orchestrator) completion(ctx context.Context, state *ExecutionState, opts RunOptions) {
	state.Status = StatusCompletion

	closed, open := 0, 0
	var errs []string
	for i := range state.WorkBreakdown.TechnicalStories {
		story := &state.WorkBreakdown.TechnicalStories[i]
		if !story.AutoComplete {
			continue
		}
		if !state.ProgressTrue(story.AutoCompleteCondition) {
			open++
			continue
		}
		id, ok := o.workItemID(state, story.Title)
		if !ok {
			open++
			errs = append(errs, fmt.Sprintf("close %q: no work item was created for it", story.Title))
			continue
		}
		err := o.Work.UpdateWorkItem(ctx, id, map[string]any{
			"System.State":  wbs.StatusClosed,
			"System.Reason": fmt.Sprintf("Auto-closed: condition %s satisfied", story.AutoCompleteCondition),
		})
		if err != nil {
			open++
			errs = append(errs, fmt.Sprintf("close %q: %v", story.Title, err))
			continue
		}
		story.Status = wbs.StatusClosed
		closed++
	}

	o.record(state, opts, PhaseEntry{
		Name:   PhaseCompletion,
		Status: PhaseCompleted,
		Result: map[string]any{
			"closed": closed,
			"open":   open,
			"errors": errs,
		},
	})
}

func (o Orchestrator) workItemID(state *ExecutionState, title string) (int, bool) {
	if state.WorkTracking == nil {
		return 0, false
	}
	id, ok := state.WorkTracking.StoryIDs[title]
	return id, ok
}
