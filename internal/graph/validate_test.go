package graph_test

import (
	"testing"

	"github.com/Schredly/packgraph/internal/graph"
	"github.com/Schredly/packgraph/internal/models"
)

func codes(errs []models.ValidationError) map[string]int {
	out := map[string]int{}
	for _, e := range errs {
		out[e.Code]++
	}
	return out
}

func TestValidateSnapshotCleanSnapshot(t *testing.T) {
	snap := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{
			{Key: "ticket", ProjectID: "p1"},
			{Key: "incident", BaseType: strPtr("ticket"), ProjectID: "p1"},
		},
		Fields: []models.FieldDefinitionNode{
			{RecordTypeKey: "ticket", Name: "title", FieldType: "text"},
			{RecordTypeKey: "incident", Name: "severity", FieldType: "number"},
		},
		SLAs: []models.SLABinding{{RecordTypeKey: "incident", DurationMinutes: 240}},
	}
	if errs := graph.ValidateSnapshot(snap); len(errs) != 0 {
		t.Fatalf("expected no errors, got %#v", errs)
	}
}

func TestOrphanBaseType(t *testing.T) {
	snap := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{{Key: "incident", BaseType: strPtr("gone"), ProjectID: "p1"}},
	}
	errs := graph.CheckOrphanBaseTypes(snap)
	if len(errs) != 1 || errs[0].Code != graph.CodeOrphanBaseType || errs[0].RecordTypeKey != "incident" {
		t.Fatalf("unexpected errors: %#v", errs)
	}
}

func TestInheritanceCycleDetected(t *testing.T) {
	snap := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{
			{Key: "a", BaseType: strPtr("b"), ProjectID: "p1"},
			{Key: "b", BaseType: strPtr("c"), ProjectID: "p1"},
			{Key: "c", BaseType: strPtr("a"), ProjectID: "p1"},
		},
	}
	errs := graph.CheckInheritanceCycles(snap)
	if len(errs) != 3 {
		t.Fatalf("expected a cycle error per participating node, got %#v", errs)
	}
	for _, e := range errs {
		if e.Code != graph.CodeInheritanceCycle {
			t.Fatalf("unexpected code %q", e.Code)
		}
	}
}

func TestInheritanceSelfCycleTerminates(t *testing.T) {
	snap := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{{Key: "a", BaseType: strPtr("a"), ProjectID: "p1"}},
	}
	errs := graph.CheckInheritanceCycles(snap)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %#v", errs)
	}
}

func TestCrossProjectBaseType(t *testing.T) {
	snap := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{
			{Key: "ticket", ProjectID: "p1"},
			{Key: "incident", BaseType: strPtr("ticket"), ProjectID: "p2"},
		},
	}
	errs := graph.CheckCrossProjectBaseTypes(snap)
	if len(errs) != 1 || errs[0].Code != graph.CodeCrossProjectBaseType {
		t.Fatalf("unexpected errors: %#v", errs)
	}
}

func TestDuplicateField(t *testing.T) {
	snap := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{{Key: "ticket", ProjectID: "p1"}},
		Fields: []models.FieldDefinitionNode{
			{RecordTypeKey: "ticket", Name: "title", FieldType: "text"},
			{RecordTypeKey: "ticket", Name: "title", FieldType: "number"},
		},
	}
	errs := graph.CheckDuplicateFields(snap)
	if len(errs) != 1 || errs[0].Field != "title" {
		t.Fatalf("unexpected errors: %#v", errs)
	}
}

func TestDanglingBindingTargets(t *testing.T) {
	snap := models.GraphSnapshot{
		Nodes:       []models.RecordTypeNode{{Key: "ticket", ProjectID: "p1"}},
		Workflows:   []models.WorkflowBinding{{WorkflowName: "escalate", RecordTypeKey: "gone"}},
		SLAs:        []models.SLABinding{{RecordTypeKey: "gone"}},
		Assignments: []models.AssignmentBinding{{RecordTypeKey: "ticket"}},
	}
	errs := graph.CheckDanglingBindings(snap)
	if len(errs) != 2 {
		t.Fatalf("expected 2 dangling binding errors, got %#v", errs)
	}
}

func TestValidateSnapshotCollectsAllErrors(t *testing.T) {
	snap := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{
			{Key: "a", BaseType: strPtr("b"), ProjectID: "p1"},
			{Key: "b", BaseType: strPtr("a"), ProjectID: "p2"},
		},
		Fields: []models.FieldDefinitionNode{
			{RecordTypeKey: "a", Name: "x", FieldType: "text"},
			{RecordTypeKey: "a", Name: "x", FieldType: "text"},
		},
		SLAs: []models.SLABinding{{RecordTypeKey: "nope"}},
	}
	got := codes(graph.ValidateSnapshot(snap))
	if got[graph.CodeInheritanceCycle] == 0 ||
		got[graph.CodeCrossProjectBaseType] == 0 ||
		got[graph.CodeDuplicateField] == 0 ||
		got[graph.CodeDanglingBinding] == 0 {
		t.Fatalf("expected all applicable error classes, got %#v", got)
	}
}
