package graph_test

import (
	"reflect"
	"testing"

	"github.com/Schredly/packgraph/internal/graph"
	"github.com/Schredly/packgraph/internal/models"
)

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	snap := baseSnapshot()
	snap.SLAs = []models.SLABinding{{RecordTypeKey: "ticket", DurationMinutes: 60}}
	snap.Workflows = []models.WorkflowBinding{{WorkflowID: "wf-1", WorkflowName: "escalate", RecordTypeKey: "ticket", TriggerType: "record_event"}}

	diff := graph.DiffSnapshots(snap, snap)
	if !diff.Empty() {
		t.Fatalf("expected empty diff, got %#v", diff)
	}
}

func TestDiffDetectsStructuralChanges(t *testing.T) {
	before := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{
			{Key: "ticket", ProjectID: "p1"},
			{Key: "legacy", ProjectID: "p1"},
		},
		Fields: []models.FieldDefinitionNode{
			{RecordTypeKey: "ticket", Name: "title", FieldType: "text"},
			{RecordTypeKey: "ticket", Name: "age", FieldType: "number"},
		},
	}
	after := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{
			{Key: "ticket", BaseType: strPtr("base"), ProjectID: "p1"},
			{Key: "incident", ProjectID: "p1"},
			{Key: "base", ProjectID: "p1"},
		},
		Fields: []models.FieldDefinitionNode{
			{RecordTypeKey: "ticket", Name: "title", FieldType: "richtext"},
			{RecordTypeKey: "ticket", Name: "priority", FieldType: "select"},
			{RecordTypeKey: "incident", Name: "severity", FieldType: "number"},
		},
	}

	diff := graph.DiffSnapshots(before, after)

	addedKeys := make([]string, 0, len(diff.AddedRecordTypes))
	for _, a := range diff.AddedRecordTypes {
		addedKeys = append(addedKeys, a.Key)
	}
	if !reflect.DeepEqual(addedKeys, []string{"base", "incident"}) {
		t.Fatalf("unexpected added keys: %v", addedKeys)
	}
	if !reflect.DeepEqual(diff.RemovedRecordTypes, []string{"legacy"}) {
		t.Fatalf("unexpected removed keys: %v", diff.RemovedRecordTypes)
	}
	if len(diff.BaseTypeChanges) != 1 || diff.BaseTypeChanges[0].Key != "ticket" {
		t.Fatalf("unexpected base type changes: %#v", diff.BaseTypeChanges)
	}

	if len(diff.ModifiedRecordTypes) != 1 {
		t.Fatalf("expected one modified type, got %#v", diff.ModifiedRecordTypes)
	}
	mod := diff.ModifiedRecordTypes[0]
	if mod.Key != "ticket" {
		t.Fatalf("unexpected modified key %q", mod.Key)
	}
	if len(mod.AddedFields) != 1 || mod.AddedFields[0].Name != "priority" {
		t.Fatalf("unexpected added fields: %#v", mod.AddedFields)
	}
	if len(mod.RemovedFields) != 1 || mod.RemovedFields[0].Name != "age" {
		t.Fatalf("unexpected removed fields: %#v", mod.RemovedFields)
	}
	if len(mod.ChangedFields) != 1 || mod.ChangedFields[0].BeforeType != "text" || mod.ChangedFields[0].AfterType != "richtext" {
		t.Fatalf("unexpected changed fields: %#v", mod.ChangedFields)
	}
}

func TestDiffIsDeterministicUnderReordering(t *testing.T) {
	after := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{
			{Key: "b", ProjectID: "p1"},
			{Key: "a", ProjectID: "p1"},
			{Key: "c", ProjectID: "p1"},
		},
		Fields: []models.FieldDefinitionNode{
			{RecordTypeKey: "a", Name: "z", FieldType: "text"},
			{RecordTypeKey: "a", Name: "y", FieldType: "text"},
		},
	}
	reordered := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{
			{Key: "c", ProjectID: "p1"},
			{Key: "a", ProjectID: "p1"},
			{Key: "b", ProjectID: "p1"},
		},
		Fields: []models.FieldDefinitionNode{
			{RecordTypeKey: "a", Name: "y", FieldType: "text"},
			{RecordTypeKey: "a", Name: "z", FieldType: "text"},
		},
	}

	empty := models.GraphSnapshot{}
	d1 := graph.DiffSnapshots(empty, after)
	d2 := graph.DiffSnapshots(empty, reordered)
	if !reflect.DeepEqual(d1, d2) {
		t.Fatalf("diffs differ under input reordering:\n%#v\n%#v", d1, d2)
	}

	wantOrder := []string{"a", "b", "c"}
	gotOrder := make([]string, 0, 3)
	for _, a := range d1.AddedRecordTypes {
		gotOrder = append(gotOrder, a.Key)
	}
	if !reflect.DeepEqual(gotOrder, wantOrder) {
		t.Fatalf("added types not sorted: %v", gotOrder)
	}
	if d1.AddedRecordTypes[0].Fields[0].Name != "y" {
		t.Fatalf("fields not sorted by name: %#v", d1.AddedRecordTypes[0].Fields)
	}
}

func TestDiffBindingsByNaturalKey(t *testing.T) {
	before := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{{Key: "incident", ProjectID: "p1"}},
		SLAs:  []models.SLABinding{{RecordTypeKey: "incident", DurationMinutes: 60}},
		Workflows: []models.WorkflowBinding{
			{WorkflowID: "wf-old", WorkflowName: "escalate", RecordTypeKey: "incident", TriggerType: "record_event"},
		},
	}
	after := models.GraphSnapshot{
		Nodes: []models.RecordTypeNode{{Key: "incident", ProjectID: "p1"}},
		SLAs:  []models.SLABinding{{RecordTypeKey: "incident", DurationMinutes: 240}},
		Workflows: []models.WorkflowBinding{
			// Same natural key, different storage id: not a change.
			{WorkflowID: "pkg-wf-esc", WorkflowName: "escalate", RecordTypeKey: "incident", TriggerType: "record_event"},
		},
		Assignments: []models.AssignmentBinding{{RecordTypeKey: "incident", StrategyType: "load_balanced"}},
	}

	diff := graph.DiffSnapshots(before, after)
	changes := diff.BindingChanges

	if len(changes.AddedWorkflows) != 0 || len(changes.RemovedWorkflows) != 0 {
		t.Fatalf("workflow identity change must not produce diff entries: %#v", changes)
	}
	if len(changes.AddedSLAs) != 1 || changes.AddedSLAs[0].DurationMinutes != 240 {
		t.Fatalf("unexpected SLA additions: %#v", changes.AddedSLAs)
	}
	if len(changes.RemovedSLAs) != 1 || changes.RemovedSLAs[0].DurationMinutes != 60 {
		t.Fatalf("unexpected SLA removals: %#v", changes.RemovedSLAs)
	}
	if len(changes.AddedAssignments) != 1 {
		t.Fatalf("unexpected assignment additions: %#v", changes.AddedAssignments)
	}
}
