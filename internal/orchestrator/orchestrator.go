// Package orchestrator sequences one project bootstrap run: PRD
// normalization, work breakdown generation, foundation setup, the two
// parallel infrastructure branches, and condition-gated completion. The
// phase log on the returned ExecutionState describes the outcome of every
// phase; required-phase failures halt the run, parallel-branch failures do
// not.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/clients"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/config"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/prd"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/progress"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/wbs"
)

type Orchestrator struct {
	Identity clients.IdentityClient
	Work     clients.WorkTrackingClient
	Platform clients.PlatformClient
	Config   *config.Config
	Now      func() time.Time
	Logger   *log.Logger
}

func New(cfg *config.Config, identity clients.IdentityClient, work clients.WorkTrackingClient, platform clients.PlatformClient) Orchestrator {
	return Orchestrator{
		Identity: identity,
		Work:     work,
		Platform: platform,
		Config:   cfg,
		Now:      time.Now,
	}
}

func (o Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Orchestrator) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}

// RunOptions parameterizes one orchestration run. Either RawPRD or Document
// must be provided; a pre-parsed Document skips the parse step but is still
// validated.
type RunOptions struct {
	OperationID string
	ProjectName string
	Description string
	RawPRD      string
	Document    *prd.Document

	// OnPhase, when set, observes each phase entry as it is appended.
	OnPhase func(PhaseEntry)
}

// Run executes the full state machine and always returns a structured
// execution record; errors are recorded on the state rather than returned.
func (o Orchestrator) Run(ctx context.Context, opts RunOptions) *ExecutionState {
	state := newExecutionState(opts.OperationID, opts.ProjectName, o.now().UTC())

	if !o.processPRD(state, opts) {
		return o.finish(state)
	}
	o.generateWBS(state, opts)
	if !o.foundationSetup(ctx, state, opts) {
		return o.finish(state)
	}
	o.parallelInfraSetup(ctx, state, opts)
	o.completion(ctx, state, opts)

	return o.finish(state)
}

func (o Orchestrator) finish(state *ExecutionState) *ExecutionState {
	if state.Status != StatusFailed {
		state.Status = StatusCompleted
	}
	done := o.now().UTC()
	state.FinishedAt = &done
	return state
}

func (o Orchestrator) record(state *ExecutionState, opts RunOptions, entry PhaseEntry) {
	entry.Timestamp = o.now().UTC()
	state.appendPhase(entry)
	if entry.Status == PhaseFailed {
		o.logf("phase %s failed: %s", entry.Name, entry.Error)
	} else {
		o.logf("phase %s completed", entry.Name)
	}
	if opts.OnPhase != nil {
		opts.OnPhase(entry)
	}
}

func (o Orchestrator) processPRD(state *ExecutionState, opts RunOptions) bool {
	state.Status = StatusPRDProcessing
	doc := opts.Document
	if doc == nil {
		parsed, err := prd.Parse(opts.RawPRD)
		if err != nil {
			o.failRequired(state, opts, PhasePRDProcessing, err.Error())
			return false
		}
		doc = parsed
	}
	if opts.ProjectName != "" && doc.Product.Name == "" {
		doc.Product.Name = opts.ProjectName
	}
	if result := prd.Validate(doc); !result.Valid {
		o.failRequired(state, opts, PhasePRDProcessing, "invalid PRD: "+strings.Join(result.Errors, "; "))
		return false
	}
	state.PRD = doc
	if state.ProjectName == "" {
		state.ProjectName = doc.Product.Name
	}
	o.record(state, opts, PhaseEntry{
		Name:   PhasePRDProcessing,
		Status: PhaseCompleted,
		Result: map[string]any{
			"features":     len(doc.Features),
			"environments": len(doc.Technical.Environments),
			"entities":     len(doc.Technical.DataModel),
		},
	})
	return true
}

func (o Orchestrator) generateWBS(state *ExecutionState, opts RunOptions) {
	state.Status = StatusWBSGeneration
	state.WorkBreakdown = wbs.Generate(state.PRD, o.now())
	o.record(state, opts, PhaseEntry{
		Name:   PhaseWBSGeneration,
		Status: PhaseCompleted,
		Result: map[string]any{
			"epics":             len(state.WorkBreakdown.Epics),
			"features":          len(state.WorkBreakdown.Features),
			"user_stories":      len(state.WorkBreakdown.UserStories),
			"technical_stories": len(state.WorkBreakdown.TechnicalStories),
			"sprints":           len(state.WorkBreakdown.Sprints),
		},
	})
}

// foundationSetup provisions the identity registration every later phase
// depends on. Its failure halts the run.
func (o Orchestrator) foundationSetup(ctx context.Context, state *ExecutionState, opts RunOptions) bool {
	state.Status = StatusFoundationSetup
	reg, err := o.Identity.CreateAppRegistration(ctx, clients.AppRegistrationRequest{
		DisplayName: state.ProjectName,
		Description: fmt.Sprintf("App registration for project %s", state.ProjectName),
	})
	if err != nil {
		o.failRequired(state, opts, PhaseFoundation, fmt.Sprintf("create app registration: %v", err))
		return false
	}
	state.AppRegistration = &reg
	state.SetProgress(progress.AppRegistrationCreated, true)
	o.record(state, opts, PhaseEntry{
		Name:   PhaseFoundation,
		Status: PhaseCompleted,
		Result: map[string]any{"app_id": reg.AppID, "object_id": reg.ObjectID},
	})
	return true
}

// parallelInfraSetup fans out the two subsystem setups and joins them. The
// branches are independently failable: a failure in one never cancels the
// other, and neither fails the overall run.
func (o Orchestrator) parallelInfraSetup(ctx context.Context, state *ExecutionState, opts RunOptions) {
	state.Status = StatusParallelInfra

	var workEntry, platformEntry PhaseEntry
	g := new(errgroup.Group)
	g.Go(func() error {
		workEntry = o.setupWorkTracking(ctx, state)
		return nil
	})
	g.Go(func() error {
		platformEntry = o.setupPlatform(ctx, state)
		return nil
	})
	_ = g.Wait()

	// Appended after the join so the log order is deterministic.
	o.record(state, opts, workEntry)
	o.record(state, opts, platformEntry)
}

func (o Orchestrator) failRequired(state *ExecutionState, opts RunOptions, phase, msg string) {
	o.record(state, opts, PhaseEntry{Name: phase, Status: PhaseFailed, Error: msg})
	state.Status = StatusFailed
	state.Error = msg
}
