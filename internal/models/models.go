// Package models contains the shared data model for the graph package
// installation and environment promotion engine.
package models

import (
	"time"
)

// RecordTypeNode is a record type as it appears in a graph snapshot. Key is the
// stable, tenant-unique identifier used by packages; ID is storage-assigned
// except for projected nodes, which carry a synthetic "pkg-<key>" id.
type RecordTypeNode struct {
	ID        string  `json:"id"`
	Key       string  `json:"key"`
	BaseType  *string `json:"baseType,omitempty"`
	Status    string  `json:"status"`
	ProjectID string  `json:"projectId"`
	Version   int     `json:"version"`
}

// FieldDefinitionNode is a single field under a record type. The pair
// (RecordTypeKey, Name) is unique within a valid snapshot.
type FieldDefinitionNode struct {
	RecordTypeKey string `json:"recordTypeKey"`
	Name          string `json:"name"`
	FieldType     string `json:"fieldType"`
	Required      bool   `json:"required"`
}

// EdgeKind distinguishes derived snapshot edges.
type EdgeKind string

const (
	EdgeKindInherits   EdgeKind = "inherits"
	EdgeKindReferences EdgeKind = "references"
)

// EdgeDefinition is a derived edge between two record-type keys. It is never
// persisted separately; the registry builder recomputes edges on every build.
type EdgeDefinition struct {
	Kind        EdgeKind `json:"kind"`
	FromKey     string   `json:"fromKey"`
	ToKey       string   `json:"toKey"`
	Cardinality string   `json:"cardinality,omitempty"`
}

// WorkflowBinding ties a workflow definition to a record type via a trigger.
type WorkflowBinding struct {
	WorkflowID    string `json:"workflowId"`
	WorkflowName  string `json:"workflowName"`
	RecordTypeKey string `json:"recordTypeKey"`
	TriggerType   string `json:"triggerType"`
}

// SLABinding is an SLA policy attached to a record type.
type SLABinding struct {
	RecordTypeKey   string `json:"recordTypeKey"`
	DurationMinutes int    `json:"durationMinutes"`
}

// AssignmentBinding is an assignment strategy attached to a record type.
type AssignmentBinding struct {
	RecordTypeKey string `json:"recordTypeKey"`
	StrategyType  string `json:"strategyType"`
}

// GraphSnapshot is a derived, point-in-time view of a tenant's configuration.
// It is rebuilt on every operation and never persisted.
type GraphSnapshot struct {
	TenantID    string                `json:"tenantId"`
	BuiltAt     time.Time             `json:"builtAt"`
	Nodes       []RecordTypeNode      `json:"nodes"`
	Fields      []FieldDefinitionNode `json:"fields"`
	Edges       []EdgeDefinition      `json:"edges"`
	Workflows   []WorkflowBinding     `json:"workflows"`
	SLAs        []SLABinding          `json:"slas"`
	Assignments []AssignmentBinding   `json:"assignments"`
}

// ValidationError is a structured, non-fatal validation finding. Validators
// collect these instead of returning Go errors.
type ValidationError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RecordTypeKey string `json:"recordTypeKey,omitempty"`
	Field         string `json:"field,omitempty"`
	PackageKey    string `json:"packageKey,omitempty"`
}

// GraphPackage is the unit of installation and promotion: a declarative bundle
// of record types, SLA policies, assignment rules and workflow definitions.
type GraphPackage struct {
	PackageKey      string                  `json:"packageKey" validate:"required"`
	Version         string                  `json:"version" validate:"required"`
	DependsOn       []string                `json:"dependsOn,omitempty"`
	RecordTypes     []PackageRecordType     `json:"recordTypes" validate:"required,min=1,dive"`
	SLAPolicies     []PackageSLAPolicy      `json:"slaPolicies,omitempty"`
	AssignmentRules []PackageAssignmentRule `json:"assignmentRules,omitempty"`
	Workflows       []PackageWorkflow       `json:"workflows,omitempty"`
}

// PackageRecordType declares one record type inside a package.
type PackageRecordType struct {
	Key      string         `json:"key" validate:"required"`
	BaseType *string        `json:"baseType,omitempty"`
	Fields   []PackageField `json:"fields"`
}

type PackageField struct {
	Name      string `json:"name" validate:"required"`
	FieldType string `json:"fieldType" validate:"required"`
	Required  bool   `json:"required"`
}

type PackageSLAPolicy struct {
	RecordTypeKey   string `json:"recordTypeKey"`
	DurationMinutes int    `json:"durationMinutes"`
}

type PackageAssignmentRule struct {
	RecordTypeKey string `json:"recordTypeKey"`
	StrategyType  string `json:"strategyType"`
}

// PackageWorkflow declares a workflow definition plus the record-event trigger
// binding it to a record type. TriggerEvent defaults to "record_created".
type PackageWorkflow struct {
	Key           string                `json:"key"`
	Name          string                `json:"name"`
	RecordTypeKey string                `json:"recordTypeKey"`
	TriggerEvent  string                `json:"triggerEvent,omitempty"`
	Steps         []PackageWorkflowStep `json:"steps"`
}

type PackageWorkflowStep struct {
	Name     string `json:"name"`
	StepType string `json:"stepType"`
	Ordering int    `json:"ordering"`
}

// FieldDiff describes one field inside a diff entry.
type FieldDiff struct {
	Name      string `json:"name"`
	FieldType string `json:"fieldType"`
	Required  bool   `json:"required"`
}

// FieldTypeChange records a field whose type changed between two snapshots.
type FieldTypeChange struct {
	Name       string `json:"name"`
	BeforeType string `json:"beforeType"`
	AfterType  string `json:"afterType"`
}

// AddedRecordType is a record type present only in the "after" snapshot.
type AddedRecordType struct {
	Key      string      `json:"key"`
	BaseType *string     `json:"baseType,omitempty"`
	Fields   []FieldDiff `json:"fields"`
}

// ModifiedRecordType lists field-level changes for a record type present in
// both snapshots.
type ModifiedRecordType struct {
	Key           string            `json:"key"`
	AddedFields   []FieldDiff       `json:"addedFields,omitempty"`
	RemovedFields []FieldDiff       `json:"removedFields,omitempty"`
	ChangedFields []FieldTypeChange `json:"changedFields,omitempty"`
}

// BaseTypeChange records a base-type reassignment.
type BaseTypeChange struct {
	Key    string  `json:"key"`
	Before *string `json:"before,omitempty"`
	After  *string `json:"after,omitempty"`
}

// BindingChanges groups binding-level diff entries, each compared by natural
// key rather than identity.
type BindingChanges struct {
	AddedWorkflows     []WorkflowBinding   `json:"addedWorkflows,omitempty"`
	RemovedWorkflows   []WorkflowBinding   `json:"removedWorkflows,omitempty"`
	AddedSLAs          []SLABinding        `json:"addedSlas,omitempty"`
	RemovedSLAs        []SLABinding        `json:"removedSlas,omitempty"`
	AddedAssignments   []AssignmentBinding `json:"addedAssignments,omitempty"`
	RemovedAssignments []AssignmentBinding `json:"removedAssignments,omitempty"`
}

// GraphDiffResult is a deterministic structural diff between two snapshots.
// All lists are sorted by record-type key, then field name, so that equal
// inputs always produce byte-identical serialized diffs.
type GraphDiffResult struct {
	AddedRecordTypes    []AddedRecordType    `json:"addedRecordTypes"`
	RemovedRecordTypes  []string             `json:"removedRecordTypes"`
	ModifiedRecordTypes []ModifiedRecordType `json:"modifiedRecordTypes"`
	BaseTypeChanges     []BaseTypeChange     `json:"baseTypeChanges"`
	BindingChanges      BindingChanges       `json:"bindingChanges"`
}

// Empty reports whether the diff contains no changes in any category.
func (d GraphDiffResult) Empty() bool {
	b := d.BindingChanges
	return len(d.AddedRecordTypes) == 0 &&
		len(d.RemovedRecordTypes) == 0 &&
		len(d.ModifiedRecordTypes) == 0 &&
		len(d.BaseTypeChanges) == 0 &&
		len(b.AddedWorkflows) == 0 && len(b.RemovedWorkflows) == 0 &&
		len(b.AddedSLAs) == 0 && len(b.RemovedSLAs) == 0 &&
		len(b.AddedAssignments) == 0 && len(b.RemovedAssignments) == 0
}

// InstallResult is the outcome of a single package install. Business-level
// failures (noop, downgrade rejection, ownership conflicts, structural
// validation errors) are encoded here, never raised as Go errors.
type InstallResult struct {
	PackageKey       string            `json:"packageKey"`
	Version          string            `json:"version"`
	Checksum         string            `json:"checksum"`
	Success          bool              `json:"success"`
	Noop             bool              `json:"noop,omitempty"`
	Rejected         bool              `json:"rejected,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	Preview          bool              `json:"preview,omitempty"`
	Diff             GraphDiffResult   `json:"diff"`
	Errors           []ValidationError `json:"errors,omitempty"`
	MutationsApplied int               `json:"mutationsApplied"`
}

// InstallSource tags environment-ledger rows with how the package arrived.
const (
	InstallSourceInstall = "install"
	InstallSourcePromote = "promote"
)

// PackageInstallRecord is one row of the append-only global install ledger,
// keyed by (projectId, packageKey). The stored package contents are used later
// to reconstruct packages for promotion and for ownership resolution.
type PackageInstallRecord struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	ProjectID       string          `json:"projectId"`
	PackageKey      string          `json:"packageKey"`
	Version         string          `json:"version"`
	Checksum        string          `json:"checksum"`
	Diff            GraphDiffResult `json:"diff"`
	PackageContents GraphPackage    `json:"packageContents"`
	InstalledBy     string          `json:"installedBy"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// EnvironmentInstallRecord is one row of the append-only environment ledger.
// The latest row per packageKey is the authoritative installed state of the
// environment.
type EnvironmentInstallRecord struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	EnvironmentID   string          `json:"environmentId"`
	ProjectID       string          `json:"projectId"`
	PackageKey      string          `json:"packageKey"`
	Version         string          `json:"version"`
	Checksum        string          `json:"checksum"`
	Diff            GraphDiffResult `json:"diff"`
	PackageContents GraphPackage    `json:"packageContents"`
	Source          string          `json:"source"`
	InstalledBy     string          `json:"installedBy"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// EnvironmentPackageState summarizes the latest installed state of one package
// in one environment.
type EnvironmentPackageState struct {
	PackageKey  string    `json:"packageKey"`
	Version     string    `json:"version"`
	Checksum    string    `json:"checksum"`
	InstalledAt time.Time `json:"installedAt"`
	Source      string    `json:"source"`
}

// Delta statuses produced by environment comparison.
const (
	DeltaMissing  = "missing"
	DeltaOutdated = "outdated"
	DeltaSame     = "same"
)

// EnvironmentDelta describes one package's state difference between a source
// and a target environment. Packages present only in the target are never
// reported; promotion flows one way.
type EnvironmentDelta struct {
	PackageKey   string `json:"packageKey"`
	Status       string `json:"status"`
	FromVersion  string `json:"fromVersion"`
	FromChecksum string `json:"fromChecksum"`
	ToVersion    string `json:"toVersion,omitempty"`
	ToChecksum   string `json:"toChecksum,omitempty"`
}

// EnvironmentDiff is the full comparison of two environments.
type EnvironmentDiff struct {
	FromEnvironmentID string             `json:"fromEnvironmentId"`
	ToEnvironmentID   string             `json:"toEnvironmentId"`
	Deltas            []EnvironmentDelta `json:"deltas"`
}

// PromotedPackage records one successful promotion inside a PromotionResult.
type PromotedPackage struct {
	PackageKey string `json:"packageKey"`
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
}

// FailedPromotion records the first (and only) failure of a promotion run.
type FailedPromotion struct {
	PackageKey string            `json:"packageKey"`
	Reason     string            `json:"reason"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

// PromotionResult is the outcome of promoting the actionable deltas between
// two environments. Promotion stops at the first failing package; anything
// already promoted stays promoted.
type PromotionResult struct {
	FromEnvironmentID string            `json:"fromEnvironmentId"`
	ToEnvironmentID   string            `json:"toEnvironmentId"`
	Preview           bool              `json:"preview,omitempty"`
	Promoted          []PromotedPackage `json:"promoted"`
	Skipped           []string          `json:"skipped"`
	Failed            *FailedPromotion  `json:"failed,omitempty"`
}

// Promotion intent statuses. Terminal states are executed and rejected.
const (
	IntentStatusDraft     = "draft"
	IntentStatusPreviewed = "previewed"
	IntentStatusApproved  = "approved"
	IntentStatusExecuted  = "executed"
	IntentStatusRejected  = "rejected"
)

// Notification outcomes recorded on promotion intents. Notification is
// advisory; it never gates a status transition.
const (
	NotificationStatusSent   = "sent"
	NotificationStatusFailed = "failed"
)

// PromotionIntent is an auditable, human-gated request to promote packages
// between two environments.
type PromotionIntent struct {
	ID                        string           `json:"id"`
	TenantID                  string           `json:"tenantId"`
	ProjectID                 string           `json:"projectId"`
	FromEnvironmentID         string           `json:"fromEnvironmentId"`
	ToEnvironmentID           string           `json:"toEnvironmentId"`
	Status                    string           `json:"status"`
	CreatedBy                 string           `json:"createdBy"`
	ApprovedBy                *string          `json:"approvedBy,omitempty"`
	ApprovedAt                *time.Time       `json:"approvedAt,omitempty"`
	Diff                      *EnvironmentDiff `json:"diff,omitempty"`
	Result                    *PromotionResult `json:"result,omitempty"`
	NotificationStatus        *string          `json:"notificationStatus,omitempty"`
	NotificationLastError     *string          `json:"notificationLastError,omitempty"`
	NotificationLastAttemptAt *time.Time       `json:"notificationLastAttemptAt,omitempty"`
	CreatedAt                 time.Time        `json:"createdAt"`
	UpdatedAt                 time.Time        `json:"updatedAt"`
}

// Project scopes record types and install ledgers.
type Project struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Environment is a promotion target (dev, staging, prod). Environments flagged
// RequiresPromotionApproval with a webhook URL get best-effort notifications
// during the intent lifecycle.
type Environment struct {
	ID                        string    `json:"id"`
	TenantID                  string    `json:"tenantId"`
	Name                      string    `json:"name"`
	RequiresPromotionApproval bool      `json:"requiresPromotionApproval"`
	PromotionWebhookURL       *string   `json:"promotionWebhookUrl,omitempty"`
	CreatedAt                 time.Time `json:"createdAt"`
}
