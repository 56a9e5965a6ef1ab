// Package graph holds the snapshot registry builder and the pure
// projection, validation and diff functions over snapshots.
package graph

import (
	"context"
	"time"

	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/store"
)

// BuildSnapshot materializes the tenant's current configuration as a
// GraphSnapshot. It is a lossless, read-only projection: no validation
// happens here, malformed state is carried through for the validator to
// report.
func BuildSnapshot(ctx context.Context, st store.Store, tenantID string) (models.GraphSnapshot, error) {
	snap := models.GraphSnapshot{
		TenantID: tenantID,
		BuiltAt:  time.Now().UTC(),
	}

	recordTypes, err := st.ListRecordTypes(ctx, tenantID)
	if err != nil {
		return models.GraphSnapshot{}, err
	}

	known := make(map[string]bool, len(recordTypes))
	for _, rt := range recordTypes {
		known[rt.Key] = true
	}

	for _, rt := range recordTypes {
		snap.Nodes = append(snap.Nodes, models.RecordTypeNode{
			ID:        rt.ID,
			Key:       rt.Key,
			BaseType:  rt.BaseType,
			Status:    rt.Status,
			ProjectID: rt.ProjectID,
			Version:   rt.Version,
		})

		for _, f := range rt.Fields {
			snap.Fields = append(snap.Fields, models.FieldDefinitionNode{
				RecordTypeKey: rt.Key,
				Name:          f.Name,
				FieldType:     f.FieldType,
				Required:      f.Required,
			})
			if f.FieldType == "reference" && f.ReferenceTarget != nil && known[*f.ReferenceTarget] {
				snap.Edges = append(snap.Edges, models.EdgeDefinition{
					Kind:        models.EdgeKindReferences,
					FromKey:     rt.Key,
					ToKey:       *f.ReferenceTarget,
					Cardinality: "many-to-one",
				})
			}
		}

		if rt.BaseType != nil {
			snap.Edges = append(snap.Edges, models.EdgeDefinition{
				Kind:    models.EdgeKindInherits,
				FromKey: rt.Key,
				ToKey:   *rt.BaseType,
			})
		}

		if rt.SLA != nil {
			snap.SLAs = append(snap.SLAs, models.SLABinding{
				RecordTypeKey:   rt.Key,
				DurationMinutes: rt.SLA.DurationMinutes,
			})
		}
		if rt.Assignment != nil {
			snap.Assignments = append(snap.Assignments, models.AssignmentBinding{
				RecordTypeKey: rt.Key,
				StrategyType:  rt.Assignment.StrategyType,
			})
		}
	}

	workflows, err := st.ListWorkflowDefinitions(ctx, tenantID)
	if err != nil {
		return models.GraphSnapshot{}, err
	}
	byID := make(map[string]models.WorkflowDefinition, len(workflows))
	for _, wf := range workflows {
		byID[wf.ID] = wf
	}

	triggers, err := st.ListWorkflowTriggers(ctx, tenantID)
	if err != nil {
		return models.GraphSnapshot{}, err
	}
	for _, tr := range triggers {
		if tr.TriggerType != models.TriggerTypeRecordEvent {
			continue
		}
		wf, ok := byID[tr.WorkflowID]
		if !ok {
			continue
		}
		snap.Workflows = append(snap.Workflows, models.WorkflowBinding{
			WorkflowID:    wf.ID,
			WorkflowName:  wf.Name,
			RecordTypeKey: tr.RecordTypeKey,
			TriggerType:   tr.TriggerType,
		})
	}

	return snap, nil
}
