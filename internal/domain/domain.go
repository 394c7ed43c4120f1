package domain

// Operation is one asynchronous orchestration run as stored in the
// operation store. Timestamps are RFC3339 strings.
type Operation struct {
	ID          string  `json:"id"`
	ProjectName string  `json:"project_name"`
	Template    string  `json:"template,omitempty"`
	Status      string  `json:"status" enum:"queued,running,completed,failed"`
	DryRun      bool    `json:"dry_run"`
	Canceled    bool    `json:"canceled"`
	Error       string  `json:"error,omitempty"`
	ResultJSON  *string `json:"result_json,omitempty"`
	ActorID     string  `json:"actor_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	FinishedAt  *string `json:"finished_at,omitempty" format:"date-time"`
}

// Phase is one persisted phase log entry of an operation.
type Phase struct {
	ID          int64  `json:"id"`
	OperationID string `json:"operation_id"`
	Seq         int    `json:"seq"`
	Name        string `json:"name"`
	Status      string `json:"status" enum:"completed,failed"`
	ResultJSON  string `json:"result_json,omitempty"`
	Error       string `json:"error,omitempty"`
	TS          string `json:"ts" format:"date-time"`
}

// Event is one row of the operation event stream.
type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	OperationID string `json:"operation_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}
