package graph

import (
	"github.com/Schredly/packgraph/internal/models"
)

// ProjectPackage merges a candidate package onto a base snapshot without any
// I/O. The projection is additive and idempotent: existing fields are never
// overwritten or retyped, bindings are only added when no equivalent binding
// exists, and repeated projection of the same package is a no-op.
//
// Projected nodes carry synthetic "pkg-<key>" ids and projected workflow
// bindings "pkg-wf-<key>" ids. Storage-assigned ids only exist after an
// actual apply.
func ProjectPackage(snap models.GraphSnapshot, pkg models.GraphPackage, projectID, tenantID string) models.GraphSnapshot {
	out := models.GraphSnapshot{
		TenantID:    tenantID,
		BuiltAt:     snap.BuiltAt,
		Nodes:       append([]models.RecordTypeNode(nil), snap.Nodes...),
		Fields:      append([]models.FieldDefinitionNode(nil), snap.Fields...),
		Edges:       append([]models.EdgeDefinition(nil), snap.Edges...),
		Workflows:   append([]models.WorkflowBinding(nil), snap.Workflows...),
		SLAs:        append([]models.SLABinding(nil), snap.SLAs...),
		Assignments: append([]models.AssignmentBinding(nil), snap.Assignments...),
	}

	nodeByKey := make(map[string]int, len(out.Nodes))
	for i, n := range out.Nodes {
		nodeByKey[n.Key] = i
	}
	fieldSet := make(map[string]bool, len(out.Fields))
	for _, f := range out.Fields {
		fieldSet[f.RecordTypeKey+"\x00"+f.Name] = true
	}

	for _, rt := range pkg.RecordTypes {
		if _, exists := nodeByKey[rt.Key]; !exists {
			out.Nodes = append(out.Nodes, models.RecordTypeNode{
				ID:        "pkg-" + rt.Key,
				Key:       rt.Key,
				BaseType:  rt.BaseType,
				Status:    "active",
				ProjectID: projectID,
				Version:   1,
			})
			nodeByKey[rt.Key] = len(out.Nodes) - 1
			if rt.BaseType != nil {
				out.Edges = append(out.Edges, models.EdgeDefinition{
					Kind:    models.EdgeKindInherits,
					FromKey: rt.Key,
					ToKey:   *rt.BaseType,
				})
			}
		}
		for _, f := range rt.Fields {
			fk := rt.Key + "\x00" + f.Name
			if fieldSet[fk] {
				continue
			}
			fieldSet[fk] = true
			out.Fields = append(out.Fields, models.FieldDefinitionNode{
				RecordTypeKey: rt.Key,
				Name:          f.Name,
				FieldType:     f.FieldType,
				Required:      f.Required,
			})
		}
	}

	for _, sla := range pkg.SLAPolicies {
		if hasSLABinding(out.SLAs, sla.RecordTypeKey) {
			continue
		}
		out.SLAs = append(out.SLAs, models.SLABinding{
			RecordTypeKey:   sla.RecordTypeKey,
			DurationMinutes: sla.DurationMinutes,
		})
	}

	for _, rule := range pkg.AssignmentRules {
		if hasAssignmentBinding(out.Assignments, rule.RecordTypeKey) {
			continue
		}
		out.Assignments = append(out.Assignments, models.AssignmentBinding{
			RecordTypeKey: rule.RecordTypeKey,
			StrategyType:  rule.StrategyType,
		})
	}

	for _, wf := range pkg.Workflows {
		if hasWorkflowBinding(out.Workflows, wf.Name, wf.RecordTypeKey) {
			continue
		}
		out.Workflows = append(out.Workflows, models.WorkflowBinding{
			WorkflowID:    "pkg-wf-" + wf.Key,
			WorkflowName:  wf.Name,
			RecordTypeKey: wf.RecordTypeKey,
			TriggerType:   models.TriggerTypeRecordEvent,
		})
	}

	return out
}

func hasSLABinding(slas []models.SLABinding, recordTypeKey string) bool {
	for _, b := range slas {
		if b.RecordTypeKey == recordTypeKey {
			return true
		}
	}
	return false
}

func hasAssignmentBinding(rules []models.AssignmentBinding, recordTypeKey string) bool {
	for _, b := range rules {
		if b.RecordTypeKey == recordTypeKey {
			return true
		}
	}
	return false
}

func hasWorkflowBinding(bindings []models.WorkflowBinding, name, recordTypeKey string) bool {
	for _, b := range bindings {
		if b.WorkflowName == name && b.RecordTypeKey == recordTypeKey {
			return true
		}
	}
	return false
}
