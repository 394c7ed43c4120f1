package orchestrator

import (
	"sync"
	"time"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/clients"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/prd"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/schema"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/wbs"
)

// Run statuses, in the order a run moves through them.
const (
	StatusPending           = "pending"
	StatusPRDProcessing     = "prd_processing"
	StatusWBSGeneration     = "wbs_generation"
	StatusFoundationSetup   = "foundation_setup"
	StatusParallelInfra     = "parallel_infra_setup"
	StatusCompletion        = "completion"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
)

// Phase log entry names.
const (
	PhasePRDProcessing   = "prd_processing"
	PhaseWBSGeneration   = "wbs_generation"
	PhaseFoundation      = "foundation_setup"
	PhaseWorkTracking    = "work_tracking_setup"
	PhasePlatform        = "platform_setup"
	PhaseCompletion      = "completion"
)

// Phase entry statuses.
const (
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// PhaseEntry is one ordered record in the phase log.
type PhaseEntry struct {
	Name      string    `json:"name"`
	Status    string    `json:"status" enum:"completed,failed"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CreationSummary reports best-effort creation counts for one work item
// kind. Orphaned items were created without a parent link because the parent
// creation had failed earlier.
type CreationSummary struct {
	Attempted int `json:"attempted"`
	Created   int `json:"created"`
	Linked    int `json:"linked,omitempty"`
	Orphaned  int `json:"orphaned,omitempty"`
}

// WorkTrackingResult accumulates the work-tracking subsystem's output.
type WorkTrackingResult struct {
	Project      clients.Project   `json:"project"`
	EpicIDs      map[string]int    `json:"epic_ids"`
	FeatureIDs   map[string]int    `json:"feature_ids"`
	StoryIDs     map[string]int    `json:"story_ids"`
	IterationIDs map[string]string `json:"iteration_ids"`

	Epics      CreationSummary `json:"epics"`
	Features   CreationSummary `json:"features"`
	Stories    CreationSummary `json:"stories"`
	Technical  CreationSummary `json:"technical"`
	Iterations CreationSummary `json:"iterations"`

	Errors []string `json:"errors,omitempty"`
}

// PlatformResult accumulates the low-code-platform subsystem's output.
type PlatformResult struct {
	Environments []clients.Environment    `json:"environments"`
	Publisher    *clients.Publisher       `json:"publisher,omitempty"`
	Solution     *clients.Solution        `json:"solution,omitempty"`
	DataModel    []schema.TableDefinition `json:"data_model,omitempty"`
	Errors       []string                 `json:"errors,omitempty"`
}

// ExecutionState is the per-run accumulator threaded through every phase.
// Concurrent runs get independent instances; the progress map is guarded
// because both parallel branches report through it (to disjoint keys).
type ExecutionState struct {
	OperationID string `json:"operation_id"`
	ProjectName string `json:"project_name"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`

	Phases []PhaseEntry `json:"phases"`

	PRD             *prd.Document            `json:"prd,omitempty"`
	WorkBreakdown   *wbs.Structure           `json:"work_breakdown,omitempty"`
	AppRegistration *clients.AppRegistration `json:"app_registration,omitempty"`
	WorkTracking    *WorkTrackingResult      `json:"work_tracking,omitempty"`
	Platform        *PlatformResult          `json:"platform,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Canceled   bool       `json:"canceled,omitempty"`

	mu       sync.Mutex
	progress map[string]bool
}

func newExecutionState(operationID, projectName string, started time.Time) *ExecutionState {
	return &ExecutionState{
		OperationID: operationID,
		ProjectName: projectName,
		Status:      StatusPending,
		StartedAt:   started,
		progress:    map[string]bool{},
	}
}

// SetProgress flips a condition flag. Each flag is owned by exactly one
// phase or branch.
func (s *ExecutionState) SetProgress(key string, value bool) {
	s.mu.Lock()
	s.progress[key] = value
	s.mu.Unlock()
}

// ProgressTrue reports whether a condition flag is set.
func (s *ExecutionState) ProgressTrue(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[key]
}

// Progress returns a copy of the condition flags.
func (s *ExecutionState) Progress() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.progress))
	for k, v := range s.progress {
		out[k] = v
	}
	return out
}

// Cancel records a cancellation request. It does not interrupt in-flight
// collaborator calls.
func (s *ExecutionState) Cancel() {
	s.mu.Lock()
	s.Canceled = true
	s.mu.Unlock()
}

func (s *ExecutionState) appendPhase(entry PhaseEntry) {
	s.mu.Lock()
	s.Phases = append(s.Phases, entry)
	s.mu.Unlock()
}
