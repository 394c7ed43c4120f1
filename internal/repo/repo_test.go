package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/db"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/domain"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/events"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/migrate"
)

func newTestRepo(t *testing.T) (Repo, *sql.DB) {
	t.Helper()
	d, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if err := migrate.Migrate(d); err != nil {
		t.Fatal(err)
	}
	return Repo{DB: d}, d
}

func queuedOperation(id, createdAt string) domain.Operation {
	return domain.Operation{
		ID:          id,
		ProjectName: "Contoso Portal",
		Template:    "standard-project",
		Status:      "queued",
		ActorID:     "alice",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestOperationLifecycle(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	op := queuedOperation("op-1", "2026-03-02T10:00:00Z")
	if err := r.InsertOperation(ctx, op); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "queued" || got.Template != "standard-project" || got.ActorID != "alice" {
		t.Fatalf("operation = %+v", got)
	}
	if got.DryRun || got.Canceled || got.FinishedAt != nil {
		t.Fatalf("operation = %+v", got)
	}

	if err := r.UpdateOperationStatus(ctx, "op-1", "running", "", nil, "2026-03-02T10:00:01Z", nil); err != nil {
		t.Fatal(err)
	}
	result := `{"status":"completed"}`
	finished := "2026-03-02T10:00:05Z"
	if err := r.UpdateOperationStatus(ctx, "op-1", "completed", "", &result, finished, &finished); err != nil {
		t.Fatal(err)
	}

	got, err = r.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" || got.ResultJSON == nil || *got.ResultJSON != result {
		t.Fatalf("operation = %+v", got)
	}
	if got.FinishedAt == nil || *got.FinishedAt != finished {
		t.Fatalf("finished_at = %v", got.FinishedAt)
	}
}

func TestUpdateStatusKeepsResultWhenNil(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	if err := r.InsertOperation(ctx, queuedOperation("op-1", "2026-03-02T10:00:00Z")); err != nil {
		t.Fatal(err)
	}
	result := `{"n":1}`
	if err := r.UpdateOperationStatus(ctx, "op-1", "completed", "", &result, "2026-03-02T10:00:01Z", nil); err != nil {
		t.Fatal(err)
	}
	// A later update with nil result must not clear the stored one.
	if err := r.UpdateOperationStatus(ctx, "op-1", "completed", "", nil, "2026-03-02T10:00:02Z", nil); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ResultJSON == nil || *got.ResultJSON != result {
		t.Fatalf("result = %v", got.ResultJSON)
	}
}

func TestGetOperationNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.GetOperation(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := r.MarkOperationCanceled(context.Background(), "nope", "2026-03-02T10:00:00Z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMarkOperationCanceled(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	if err := r.InsertOperation(ctx, queuedOperation("op-1", "2026-03-02T10:00:00Z")); err != nil {
		t.Fatal(err)
	}
	if err := r.MarkOperationCanceled(ctx, "op-1", "2026-03-02T10:00:01Z"); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Canceled || got.UpdatedAt != "2026-03-02T10:00:01Z" {
		t.Fatalf("operation = %+v", got)
	}
}

func TestListOperationsNewestFirst(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	for i, ts := range []string{"2026-03-02T10:00:00Z", "2026-03-02T11:00:00Z", "2026-03-02T12:00:00Z"} {
		op := queuedOperation("op-"+string(rune('a'+i)), ts)
		if err := r.InsertOperation(ctx, op); err != nil {
			t.Fatal(err)
		}
	}

	ops, err := r.ListOperations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 || ops[0].ID != "op-c" || ops[1].ID != "op-b" {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestPhaseLog(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	if err := r.InsertOperation(ctx, queuedOperation("op-1", "2026-03-02T10:00:00Z")); err != nil {
		t.Fatal(err)
	}
	entries := []domain.Phase{
		{OperationID: "op-1", Seq: 1, Name: "prd_processing", Status: "completed", ResultJSON: `{"features":1}`, TS: "2026-03-02T10:00:01Z"},
		{OperationID: "op-1", Seq: 2, Name: "wbs_generation", Status: "completed", TS: "2026-03-02T10:00:02Z"},
		{OperationID: "op-1", Seq: 3, Name: "foundation_setup", Status: "failed", Error: "tenant unavailable", TS: "2026-03-02T10:00:03Z"},
	}
	for _, p := range entries {
		if err := r.AppendPhase(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	phases, err := r.ListPhases(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(phases) != 3 {
		t.Fatalf("phases = %+v", phases)
	}
	for i, p := range phases {
		if p.Seq != i+1 {
			t.Fatalf("phase order = %+v", phases)
		}
	}
	if phases[2].Error != "tenant unavailable" || phases[0].ResultJSON != `{"features":1}` {
		t.Fatalf("phases = %+v", phases)
	}
}

func TestEventStream(t *testing.T) {
	r, d := newTestRepo(t)
	ctx := context.Background()
	w := events.Writer{DB: d}

	if err := r.InsertOperation(ctx, queuedOperation("op-1", "2026-03-02T10:00:00Z")); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertOperation(ctx, queuedOperation("op-2", "2026-03-02T10:00:00Z")); err != nil {
		t.Fatal(err)
	}
	emit := func(evtType, opID string) {
		t.Helper()
		tx, err := d.BeginTx(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Append(ctx, tx, evtType, opID, "operation", opID, "alice", events.EventPayload{"k": "v"}); err != nil {
			t.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	emit("operation.queued", "op-1")
	emit("operation.queued", "op-2")
	emit("operation.started", "op-1")

	all, err := r.EventsAfter(ctx, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("events = %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("not ascending: %+v", all)
		}
	}

	scoped, err := r.EventsAfter(ctx, 10, 0, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 2 || scoped[1].Type != "operation.started" {
		t.Fatalf("scoped = %+v", scoped)
	}

	after, err := r.EventsAfter(ctx, 10, all[0].ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 {
		t.Fatalf("after = %+v", after)
	}

	latest, err := r.LatestEventID(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if latest != all[2].ID {
		t.Fatalf("latest = %d", latest)
	}
	latestScoped, err := r.LatestEventID(ctx, "op-2")
	if err != nil {
		t.Fatal(err)
	}
	if latestScoped != all[1].ID {
		t.Fatalf("latest scoped = %d", latestScoped)
	}
}

func TestLatestEventIDEmpty(t *testing.T) {
	r, _ := newTestRepo(t)
	id, err := r.LatestEventID(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Fatalf("id = %d", id)
	}
}
