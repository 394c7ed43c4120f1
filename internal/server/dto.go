package server

import (
	"encoding/json"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/domain"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/templates"
)

// Request payloads

type CreateProjectRequest struct {
	ProjectName string  `json:"project_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Template    *string `json:"template,omitempty"`
	PRD         string  `json:"prd,omitempty"`
	DryRun      bool    `json:"dry_run,omitempty"`
}

type ValidatePRDRequest struct {
	PRD string `json:"prd"`
}

// Response payloads

type OperationResponse struct {
	ID          string  `json:"id"`
	ProjectName string  `json:"project_name"`
	Template    string  `json:"template,omitempty"`
	Status      string  `json:"status" enum:"queued,running,completed,failed"`
	DryRun      bool    `json:"dry_run"`
	Canceled    bool    `json:"canceled"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	FinishedAt  *string `json:"finished_at,omitempty" format:"date-time"`
}

type PhaseResponse struct {
	Seq    int            `json:"seq"`
	Name   string         `json:"name"`
	Status string         `json:"status" enum:"completed,failed"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	TS     string         `json:"ts" format:"date-time"`
}

type OperationDetailResponse struct {
	OperationResponse
	Phases []PhaseResponse `json:"phases"`
	Result map[string]any  `json:"result,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type TemplateSummary struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
}

// Conversion helpers

func operationResponse(op domain.Operation) OperationResponse {
	return OperationResponse{
		ID:          op.ID,
		ProjectName: op.ProjectName,
		Template:    op.Template,
		Status:      op.Status,
		DryRun:      op.DryRun,
		Canceled:    op.Canceled,
		Error:       op.Error,
		CreatedAt:   op.CreatedAt,
		UpdatedAt:   op.UpdatedAt,
		FinishedAt:  op.FinishedAt,
	}
}

func operationDetailResponse(op domain.Operation, phases []domain.Phase) OperationDetailResponse {
	res := OperationDetailResponse{
		OperationResponse: operationResponse(op),
		Phases:            []PhaseResponse{},
	}
	for _, p := range phases {
		res.Phases = append(res.Phases, PhaseResponse{
			Seq:    p.Seq,
			Name:   p.Name,
			Status: p.Status,
			Result: decodeJSONMap(p.ResultJSON),
			Error:  p.Error,
			TS:     p.TS,
		})
	}
	if op.ResultJSON != nil {
		res.Result = decodeJSONMap(*op.ResultJSON)
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func templateSummary(t templates.Template) TemplateSummary {
	return TemplateSummary{
		Name:        t.Name,
		DisplayName: t.DisplayName,
		Description: t.Description,
		Category:    t.Category,
		Tags:        t.Tags,
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
