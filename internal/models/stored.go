package models

import "time"

// FieldDefinition is one field inside a stored record-type schema. Reference
// fields carry the key of the record type they point at.
type FieldDefinition struct {
	Name            string  `json:"name"`
	FieldType       string  `json:"fieldType"`
	Required        bool    `json:"required"`
	ReferenceTarget *string `json:"referenceTarget,omitempty"`
}

// SLAConfig is the SLA policy persisted on a record type.
type SLAConfig struct {
	DurationMinutes int `json:"durationMinutes"`
}

// AssignmentConfig is the assignment strategy persisted on a record type.
type AssignmentConfig struct {
	StrategyType string `json:"strategyType"`
}

// RecordType is the stored form of a tenant record type. Key is unique within
// the tenant; BaseType, if set, holds another record type's key.
type RecordType struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenantId"`
	ProjectID  string            `json:"projectId"`
	Key        string            `json:"key"`
	BaseType   *string           `json:"baseType,omitempty"`
	Status     string            `json:"status"`
	Version    int               `json:"version"`
	Fields     []FieldDefinition `json:"fields"`
	SLA        *SLAConfig        `json:"sla,omitempty"`
	Assignment *AssignmentConfig `json:"assignment,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// WorkflowStep is one ordered step of a stored workflow definition.
type WorkflowStep struct {
	Name     string `json:"name"`
	StepType string `json:"stepType"`
	Ordering int    `json:"ordering"`
}

// WorkflowDefinition is a stored workflow. The engine only creates
// definitions; execution lives elsewhere.
type WorkflowDefinition struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	ProjectID string         `json:"projectId"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Steps     []WorkflowStep `json:"steps"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Trigger types recognized by the registry builder.
const TriggerTypeRecordEvent = "record_event"

// WorkflowTrigger binds a stored workflow definition to a record type event.
type WorkflowTrigger struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	WorkflowID    string    `json:"workflowId"`
	TriggerType   string    `json:"triggerType"`
	RecordTypeKey string    `json:"recordTypeKey"`
	EventName     string    `json:"eventName"`
	CreatedAt     time.Time `json:"createdAt"`
}
