// Package operations runs orchestrations asynchronously and persists their
// state. Start validates synchronously, queues the operation, and returns;
// the run itself happens on a background goroutine that writes phase log
// entries and events as it goes.
package operations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/clients"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/config"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/domain"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/events"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/orchestrator"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/prd"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/repo"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/templates"
)

// ClientSet bundles the three provisioning clients one run talks to.
type ClientSet struct {
	Identity clients.IdentityClient
	Work     clients.WorkTrackingClient
	Platform clients.PlatformClient
}

// SimulatorClients returns a ClientSet backed by a single in-memory
// simulator, the client stack used for dry runs.
func SimulatorClients() ClientSet {
	sim := clients.NewSimulator()
	return ClientSet{Identity: sim, Work: sim, Platform: sim}
}

// Service owns the operation lifecycle. NewClients is called once per run;
// when nil, every run gets a fresh simulator stack.
type Service struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Catalog    *templates.Catalog
	Config     *config.Config
	Logger     *log.Logger
	Now        func() time.Time
	NewClients func(dryRun bool) ClientSet

	wg sync.WaitGroup
}

func New(db *sql.DB, cfg *config.Config, catalog *templates.Catalog, logger *log.Logger) *Service {
	return &Service{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Catalog: catalog,
		Config:  cfg,
		Logger:  logger,
		Now:     time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// StartOptions parameterizes one new operation. Exactly one of RawPRD and
// Template drives the project definition; with neither, the configured
// default template is used.
type StartOptions struct {
	ProjectName string
	Description string
	Template    string
	RawPRD      string
	DryRun      bool
	ActorID     string
}

// Start validates the project definition, queues the operation, and kicks
// off the background run. Validation failures are returned synchronously
// and no operation row is written.
func (s *Service) Start(ctx context.Context, opts StartOptions) (domain.Operation, error) {
	doc, tmplName, err := s.resolveDocument(opts)
	if err != nil {
		return domain.Operation{}, err
	}
	if opts.ProjectName != "" {
		doc.Product.Name = opts.ProjectName
	}
	if result := prd.Validate(doc); !result.Valid {
		return domain.Operation{}, fmt.Errorf("invalid PRD: %s", strings.Join(result.Errors, "; "))
	}

	now := s.stamp()
	op := domain.Operation{
		ID:          uuid.NewString(),
		ProjectName: doc.Product.Name,
		Template:    tmplName,
		Status:      "queued",
		DryRun:      opts.DryRun,
		ActorID:     opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.Repo.InsertOperation(ctx, op); err != nil {
		return domain.Operation{}, fmt.Errorf("insert operation: %w", err)
	}
	s.appendEvent(ctx, "operation.queued", op.ID, actor(opts.ActorID), events.EventPayload{
		"project_name": op.ProjectName,
		"template":     op.Template,
		"dry_run":      op.DryRun,
	})

	s.wg.Add(1)
	go s.run(op, doc, opts)

	return op, nil
}

// resolveDocument produces the PRD a run will use. A raw PRD wins over a
// template; the template's PRD is deep-copied so the catalog stays pristine.
func (s *Service) resolveDocument(opts StartOptions) (*prd.Document, string, error) {
	if opts.RawPRD != "" {
		doc, err := prd.Parse(opts.RawPRD)
		if err != nil {
			return nil, "", err
		}
		return doc, "", nil
	}
	name := opts.Template
	if name == "" {
		name = s.Config.Project.DefaultTemplate
	}
	tmpl, err := s.Catalog.Get(name)
	if err != nil {
		return nil, "", err
	}
	doc, err := copyDocument(tmpl.PRD)
	if err != nil {
		return nil, "", err
	}
	return doc, name, nil
}

// run executes the orchestration on its own goroutine and persists the
// outcome. It never uses the request context; a finished HTTP request must
// not abort the run.
func (s *Service) run(op domain.Operation, doc *prd.Document, opts StartOptions) {
	defer s.wg.Done()
	ctx := context.Background()

	if err := s.Repo.UpdateOperationStatus(ctx, op.ID, "running", "", nil, s.stamp(), nil); err != nil {
		s.logf("operation %s: mark running: %v", op.ID, err)
	}
	s.appendEvent(ctx, "operation.started", op.ID, actor(opts.ActorID), events.EventPayload{"project_name": op.ProjectName})

	set := s.clientSet(op.DryRun)
	orch := orchestrator.New(s.Config, set.Identity, set.Work, set.Platform)
	orch.Now = s.Now
	orch.Logger = s.Logger

	seq := 0
	state := orch.Run(ctx, orchestrator.RunOptions{
		OperationID: op.ID,
		ProjectName: op.ProjectName,
		Description: opts.Description,
		Document:    doc,
		OnPhase: func(entry orchestrator.PhaseEntry) {
			seq++
			s.persistPhase(ctx, op.ID, seq, entry)
		},
	})

	resultJSON := marshalState(state)
	status := "completed"
	if state.Status == orchestrator.StatusFailed {
		status = "failed"
	}
	finished := s.stamp()
	if err := s.Repo.UpdateOperationStatus(ctx, op.ID, status, state.Error, &resultJSON, finished, &finished); err != nil {
		s.logf("operation %s: finalize: %v", op.ID, err)
	}
	s.appendEvent(ctx, "operation."+status, op.ID, "system", events.EventPayload{
		"status": status,
		"error":  state.Error,
	})
	s.logf("operation %s finished with status %s", op.ID, status)
}

func (s *Service) clientSet(dryRun bool) ClientSet {
	if s.NewClients != nil {
		return s.NewClients(dryRun)
	}
	return SimulatorClients()
}

func (s *Service) persistPhase(ctx context.Context, operationID string, seq int, entry orchestrator.PhaseEntry) {
	var resultJSON string
	if entry.Result != nil {
		if data, err := json.Marshal(entry.Result); err == nil {
			resultJSON = string(data)
		}
	}
	p := domain.Phase{
		OperationID: operationID,
		Seq:         seq,
		Name:        entry.Name,
		Status:      entry.Status,
		ResultJSON:  resultJSON,
		Error:       entry.Error,
		TS:          entry.Timestamp.Format(time.RFC3339),
	}
	if err := s.Repo.AppendPhase(ctx, p); err != nil {
		s.logf("operation %s: persist phase %s: %v", operationID, entry.Name, err)
	}
	s.appendEvent(ctx, "phase."+entry.Status, operationID, "system", events.EventPayload{
		"phase": entry.Name,
		"error": entry.Error,
	})
}

func (s *Service) appendEvent(ctx context.Context, evtType, operationID, actorID string, payload events.EventPayload) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		s.logf("operation %s: begin event tx: %v", operationID, err)
		return
	}
	defer tx.Rollback()
	if err := s.Events.Append(ctx, tx, evtType, operationID, "operation", operationID, actorID, payload); err != nil {
		s.logf("operation %s: append event %s: %v", operationID, evtType, err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.logf("operation %s: commit event %s: %v", operationID, evtType, err)
	}
}

// Get returns one operation with its phase log.
func (s *Service) Get(ctx context.Context, id string) (domain.Operation, []domain.Phase, error) {
	op, err := s.Repo.GetOperation(ctx, id)
	if err != nil {
		return domain.Operation{}, nil, err
	}
	phases, err := s.Repo.ListPhases(ctx, id)
	if err != nil {
		return domain.Operation{}, nil, err
	}
	return op, phases, nil
}

// List returns the most recent operations.
func (s *Service) List(ctx context.Context, limit int) ([]domain.Operation, error) {
	return s.Repo.ListOperations(ctx, limit)
}

// Cancel records a cancellation request. The run is not interrupted; in
// flight work completes and the flag is visible on the stored operation.
func (s *Service) Cancel(ctx context.Context, id, actorID string) error {
	if err := s.Repo.MarkOperationCanceled(ctx, id, s.stamp()); err != nil {
		return err
	}
	s.appendEvent(ctx, "operation.cancel_requested", id, actor(actorID), nil)
	return nil
}

// EventsAfter returns events past the given id, newest last.
func (s *Service) EventsAfter(ctx context.Context, limit int, after int64, operationID string) ([]domain.Event, error) {
	return s.Repo.EventsAfter(ctx, limit, after, operationID)
}

// Wait blocks until every in-flight run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func actor(id string) string {
	if id == "" {
		return "anonymous"
	}
	return id
}

func copyDocument(doc prd.Document) (*prd.Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out prd.Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func marshalState(state *orchestrator.ExecutionState) string {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Sprintf(`{"marshal_error":%q}`, err.Error())
	}
	return string(data)
}
