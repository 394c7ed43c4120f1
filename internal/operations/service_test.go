package operations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/clients"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/config"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/db"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/migrate"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/repo"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/templates"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	d, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if err := migrate.Migrate(d); err != nil {
		t.Fatal(err)
	}
	logger := log.New(io.Discard, "", 0)
	return New(d, config.Default(), &templates.Catalog{}, logger)
}

const rawPRD = `{
  "product": {"name": "Inline Project"},
  "features": [
    {"name": "Core", "priority": "High", "userStories": ["As a user, I want to create records"]}
  ],
  "technical": {"environments": ["dev"]},
  "project": {"sprintCount": 2, "sprintDurationWeeks": 1}
}`

func TestStartRunsToCompletion(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	op, err := s.Start(ctx, StartOptions{RawPRD: rawPRD, DryRun: true, ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != "queued" || op.ProjectName != "Inline Project" || !op.DryRun {
		t.Fatalf("operation = %+v", op)
	}
	s.Wait()

	got, phases, err := s.Get(ctx, op.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" {
		t.Fatalf("operation = %+v", got)
	}
	if got.FinishedAt == nil || got.ResultJSON == nil {
		t.Fatalf("operation = %+v", got)
	}
	if len(phases) != 6 {
		t.Fatalf("phases = %+v", phases)
	}
	if phases[0].Name != "prd_processing" || phases[len(phases)-1].Name != "completion" {
		t.Fatalf("phases = %+v", phases)
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(*got.ResultJSON), &state); err != nil {
		t.Fatal(err)
	}
	if state["status"] != "completed" {
		t.Fatalf("result = %v", state["status"])
	}
}

func TestStartWithTemplate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	op, err := s.Start(ctx, StartOptions{Template: "minimal", ProjectName: "Renamed", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if op.Template != "minimal" || op.ProjectName != "Renamed" {
		t.Fatalf("operation = %+v", op)
	}
	s.Wait()

	// The catalog's copy must be untouched by the rename.
	tmpl, err := s.Catalog.Get("minimal")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.PRD.Product.Name != "Minimal Project" {
		t.Fatalf("catalog mutated: %q", tmpl.PRD.Product.Name)
	}
}

func TestStartDefaultTemplate(t *testing.T) {
	s := newTestService(t)
	op, err := s.Start(context.Background(), StartOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if op.Template != "standard-project" {
		t.Fatalf("template = %q", op.Template)
	}
	s.Wait()
}

func TestStartInvalidPRDFailsSynchronously(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Start(ctx, StartOptions{RawPRD: `{"product": {"name": "X"}, "features": []}`})
	if err == nil || !strings.Contains(err.Error(), "invalid PRD") {
		t.Fatalf("err = %v", err)
	}

	ops, err := s.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestStartUnknownTemplate(t *testing.T) {
	s := newTestService(t)
	_, err := s.Start(context.Background(), StartOptions{Template: "nope"})
	if err == nil || !strings.Contains(err.Error(), `unknown template "nope"`) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunFailureRecorded(t *testing.T) {
	s := newTestService(t)
	s.NewClients = func(bool) ClientSet {
		sim := clients.NewSimulator()
		sim.FailOn(clients.OpCreateAppRegistration, errors.New("tenant unavailable"))
		return ClientSet{Identity: sim, Work: sim, Platform: sim}
	}
	ctx := context.Background()

	op, err := s.Start(ctx, StartOptions{RawPRD: rawPRD})
	if err != nil {
		t.Fatal(err)
	}
	s.Wait()

	got, phases, err := s.Get(ctx, op.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "failed" || !strings.Contains(got.Error, "tenant unavailable") {
		t.Fatalf("operation = %+v", got)
	}
	last := phases[len(phases)-1]
	if last.Name != "foundation_setup" || last.Status != "failed" {
		t.Fatalf("phases = %+v", phases)
	}
}

func TestCancelIsAFlag(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	op, err := s.Start(ctx, StartOptions{RawPRD: rawPRD})
	if err != nil {
		t.Fatal(err)
	}
	s.Wait()
	if err := s.Cancel(ctx, op.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	got, _, err := s.Get(ctx, op.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Canceled {
		t.Fatalf("operation = %+v", got)
	}
	// Cancellation only flags the operation; the finished run stands.
	if got.Status != "completed" {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestCancelUnknownOperation(t *testing.T) {
	s := newTestService(t)
	if err := s.Cancel(context.Background(), "nope", ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestEventStreamCoversLifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	op, err := s.Start(ctx, StartOptions{RawPRD: rawPRD, ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	s.Wait()

	evts, err := s.EventsAfter(ctx, 100, 0, op.ID)
	if err != nil {
		t.Fatal(err)
	}
	types := map[string]int{}
	for _, e := range evts {
		types[e.Type]++
	}
	if types["operation.queued"] != 1 || types["operation.started"] != 1 || types["operation.completed"] != 1 {
		t.Fatalf("types = %v", types)
	}
	if types["phase.completed"] != 6 {
		t.Fatalf("types = %v", types)
	}
	if evts[0].Type != "operation.queued" || evts[0].ActorID != "alice" {
		t.Fatalf("first = %+v", evts[0])
	}
}
