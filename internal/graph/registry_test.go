package graph_test

import (
	"context"
	"testing"

	"github.com/Schredly/packgraph/internal/graph"
	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/store"
)

func strPtr(s string) *string { return &s }

func TestBuildSnapshotProjectsState(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()

	mem.SeedRecordType(models.RecordType{
		TenantID:  "t1",
		ProjectID: "p1",
		Key:       "ticket",
		Version:   1,
		Fields: []models.FieldDefinition{
			{Name: "title", FieldType: "text", Required: true},
		},
		SLA: &models.SLAConfig{DurationMinutes: 60},
	})
	mem.SeedRecordType(models.RecordType{
		TenantID:  "t1",
		ProjectID: "p1",
		Key:       "incident",
		BaseType:  strPtr("ticket"),
		Version:   2,
		Fields: []models.FieldDefinition{
			{Name: "severity", FieldType: "number"},
			{Name: "parent", FieldType: "reference", ReferenceTarget: strPtr("ticket")},
		},
		Assignment: &models.AssignmentConfig{StrategyType: "round_robin"},
	})

	wf, err := mem.CreateWorkflowDefinition(ctx, store.WorkflowDefinitionInput{
		TenantID: "t1", ProjectID: "p1", Name: "escalate",
		Steps: []models.WorkflowStep{{Name: "notify", StepType: "notification", Ordering: 1}},
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	if _, err := mem.CreateWorkflowTrigger(ctx, store.WorkflowTriggerInput{
		TenantID: "t1", WorkflowID: wf.ID,
		TriggerType: models.TriggerTypeRecordEvent, RecordTypeKey: "incident", EventName: "record_created",
	}); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	// Trigger pointing at a missing workflow definition must be dropped.
	if _, err := mem.CreateWorkflowTrigger(ctx, store.WorkflowTriggerInput{
		TenantID: "t1", WorkflowID: "missing",
		TriggerType: models.TriggerTypeRecordEvent, RecordTypeKey: "incident", EventName: "record_created",
	}); err != nil {
		t.Fatalf("create dangling trigger: %v", err)
	}

	snap, err := graph.BuildSnapshot(ctx, mem, "t1")
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	if len(snap.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(snap.Nodes))
	}
	if len(snap.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(snap.Fields))
	}

	var inherits, references int
	for _, e := range snap.Edges {
		switch e.Kind {
		case models.EdgeKindInherits:
			inherits++
		case models.EdgeKindReferences:
			references++
		}
	}
	if inherits != 1 || references != 1 {
		t.Fatalf("expected 1 inherits and 1 references edge, got %d/%d", inherits, references)
	}

	if len(snap.SLAs) != 1 || snap.SLAs[0].RecordTypeKey != "ticket" || snap.SLAs[0].DurationMinutes != 60 {
		t.Fatalf("unexpected SLA bindings: %#v", snap.SLAs)
	}
	if len(snap.Assignments) != 1 || snap.Assignments[0].StrategyType != "round_robin" {
		t.Fatalf("unexpected assignment bindings: %#v", snap.Assignments)
	}
	if len(snap.Workflows) != 1 {
		t.Fatalf("expected 1 workflow binding, got %d", len(snap.Workflows))
	}
	if snap.Workflows[0].WorkflowName != "escalate" || snap.Workflows[0].RecordTypeKey != "incident" {
		t.Fatalf("unexpected workflow binding: %#v", snap.Workflows[0])
	}
}

func TestBuildSnapshotCarriesMalformedState(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()

	// Orphan base type: the registry builder must not validate, only project.
	mem.SeedRecordType(models.RecordType{
		TenantID: "t1", ProjectID: "p1", Key: "child", BaseType: strPtr("gone"),
	})

	snap, err := graph.BuildSnapshot(ctx, mem, "t1")
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].BaseType == nil || *snap.Nodes[0].BaseType != "gone" {
		t.Fatalf("expected orphan base type carried through, got %#v", snap.Nodes)
	}
	if len(snap.Edges) != 1 || snap.Edges[0].ToKey != "gone" {
		t.Fatalf("expected inherits edge to orphan target, got %#v", snap.Edges)
	}
}
