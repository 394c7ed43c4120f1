package clients

import (
	"context"
	"fmt"
	"sync"
)

// Operation names accepted by Simulator.FailOn. A failure can be scoped to
// one subject by appending ":<subject>" (for example
// "platform.create_environment:dev").
const (
	OpCreateAppRegistration = "identity.create_app_registration"
	OpCreateProject         = "work.create_project"
	OpCreateWorkItem        = "work.create_work_item"
	OpCreateIteration       = "work.create_iteration"
	OpUpdateWorkItem        = "work.update_work_item"
	OpCreateEnvironment     = "platform.create_environment"
	OpCreatePublisher       = "platform.create_publisher"
	OpCreateSolution        = "platform.create_solution"
	OpCreateTable           = "platform.create_table"
	OpCreateRelationship    = "platform.create_relationship"
	OpCreateRecord          = "platform.create_record"
	OpAddTableToSolution    = "platform.add_table_to_solution"
)

// Simulator is an in-memory implementation of all three collaborator
// contracts. It assigns sequential identifiers, remembers everything it
// created, and can be told to fail specific operations. Dry runs use it as
// the full client stack.
type Simulator struct {
	mu       sync.Mutex
	nextID   int
	failures map[string]error

	Registrations []AppRegistrationRequest
	Projects      []ProjectRequest
	WorkItems     []SimWorkItem
	Iterations    []IterationRequest
	Updates       map[int]map[string]any
	Environments  []EnvironmentRequest
	Publishers    []PublisherRequest
	Solutions     []SolutionRequest
	Tables        []TableRequest
	Relationships []RelationshipRequest
	Records       []SimRecord
}

type SimWorkItem struct {
	ID      int
	Request WorkItemRequest
}

type SimRecord struct {
	ID        string
	EntitySet string
	Record    map[string]any
}

func NewSimulator() *Simulator {
	return &Simulator{
		failures: map[string]error{},
		Updates:  map[int]map[string]any{},
	}
}

// FailOn makes the named operation return err. A nil err clears the failure.
func (s *Simulator) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Simulator) failFor(op, subject string) error {
	if subject != "" {
		if err, ok := s.failures[op+":"+subject]; ok {
			return err
		}
	}
	if err, ok := s.failures[op]; ok {
		return err
	}
	return nil
}

func (s *Simulator) nextInt() int {
	s.nextID++
	return s.nextID
}

func (s *Simulator) CreateAppRegistration(_ context.Context, req AppRegistrationRequest) (AppRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateAppRegistration, req.DisplayName); err != nil {
		return AppRegistration{}, err
	}
	s.Registrations = append(s.Registrations, req)
	n := s.nextInt()
	return AppRegistration{
		AppID:    fmt.Sprintf("app-%04d", n),
		ObjectID: fmt.Sprintf("obj-%04d", n),
	}, nil
}

func (s *Simulator) CreateProject(_ context.Context, req ProjectRequest) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateProject, req.Name); err != nil {
		return Project{}, err
	}
	s.Projects = append(s.Projects, req)
	return Project{
		ID:   fmt.Sprintf("proj-%04d", s.nextInt()),
		Name: req.Name,
		URL:  "https://dev.azure.invalid/" + req.Name,
	}, nil
}

func (s *Simulator) CreateWorkItem(_ context.Context, req WorkItemRequest) (WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateWorkItem, req.Title); err != nil {
		return WorkItem{}, err
	}
	item := SimWorkItem{ID: s.nextInt(), Request: req}
	s.WorkItems = append(s.WorkItems, item)
	return WorkItem{ID: item.ID, Type: req.Type, Title: req.Title}, nil
}

func (s *Simulator) CreateIteration(_ context.Context, req IterationRequest) (Iteration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateIteration, req.Name); err != nil {
		return Iteration{}, err
	}
	s.Iterations = append(s.Iterations, req)
	return Iteration{ID: fmt.Sprintf("iter-%04d", s.nextInt()), Name: req.Name}, nil
}

func (s *Simulator) UpdateWorkItem(_ context.Context, id int, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpUpdateWorkItem, fmt.Sprintf("%d", id)); err != nil {
		return err
	}
	merged, ok := s.Updates[id]
	if !ok {
		merged = map[string]any{}
		s.Updates[id] = merged
	}
	for k, v := range fields {
		merged[k] = v
	}
	return nil
}

func (s *Simulator) CreateEnvironment(_ context.Context, req EnvironmentRequest) (Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateEnvironment, req.Name); err != nil {
		return Environment{}, err
	}
	s.Environments = append(s.Environments, req)
	return Environment{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		URL:         fmt.Sprintf("https://%s.crm.invalid", req.Name),
	}, nil
}

func (s *Simulator) CreatePublisher(_ context.Context, req PublisherRequest) (Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreatePublisher, req.UniqueName); err != nil {
		return Publisher{}, err
	}
	s.Publishers = append(s.Publishers, req)
	return Publisher{
		ID:         fmt.Sprintf("pub-%04d", s.nextInt()),
		UniqueName: req.UniqueName,
		Prefix:     req.Prefix,
	}, nil
}

func (s *Simulator) CreateSolution(_ context.Context, req SolutionRequest) (Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateSolution, req.UniqueName); err != nil {
		return Solution{}, err
	}
	s.Solutions = append(s.Solutions, req)
	return Solution{
		ID:         fmt.Sprintf("sol-%04d", s.nextInt()),
		UniqueName: req.UniqueName,
	}, nil
}

func (s *Simulator) CreateTable(_ context.Context, req TableRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateTable, req.LogicalName); err != nil {
		return err
	}
	s.Tables = append(s.Tables, req)
	return nil
}

func (s *Simulator) CreateOneToManyRelationship(_ context.Context, req RelationshipRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateRelationship, req.SchemaName); err != nil {
		return err
	}
	s.Relationships = append(s.Relationships, req)
	return nil
}

func (s *Simulator) CreateRecord(_ context.Context, entitySet string, record map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpCreateRecord, entitySet); err != nil {
		return "", err
	}
	id := fmt.Sprintf("rec-%04d", s.nextInt())
	s.Records = append(s.Records, SimRecord{ID: id, EntitySet: entitySet, Record: record})
	return id, nil
}

func (s *Simulator) CreateMultipleRecords(ctx context.Context, entitySet string, records []map[string]any) ([]string, error) {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		id, err := s.CreateRecord(ctx, entitySet, record)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Simulator) AddTableToSolution(_ context.Context, tableLogicalName, solutionUniqueName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor(OpAddTableToSolution, tableLogicalName); err != nil {
		return err
	}
	_ = solutionUniqueName
	return nil
}

var (
	_ IdentityClient     = (*Simulator)(nil)
	_ WorkTrackingClient = (*Simulator)(nil)
	_ PlatformClient     = (*Simulator)(nil)
)
