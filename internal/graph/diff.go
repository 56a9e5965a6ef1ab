package graph

import (
	"sort"

	"github.com/Schredly/packgraph/internal/models"
)

// DiffSnapshots computes the structural diff between two snapshots. Output
// lists are sorted by record-type key, then field name, so equal inputs
// always serialize identically. Diffs are hashed and shown to humans
// approving promotions; ordering drift would break both.
func DiffSnapshots(before, after models.GraphSnapshot) models.GraphDiffResult {
	var result models.GraphDiffResult

	beforeNodes := nodesByKey(before)
	afterNodes := nodesByKey(after)
	beforeFields := fieldsByType(before)
	afterFields := fieldsByType(after)

	for _, key := range sortedKeys(afterNodes) {
		node := afterNodes[key]
		if _, existed := beforeNodes[key]; existed {
			continue
		}
		result.AddedRecordTypes = append(result.AddedRecordTypes, models.AddedRecordType{
			Key:      key,
			BaseType: node.BaseType,
			Fields:   sortedFieldDiffs(afterFields[key]),
		})
	}

	for _, key := range sortedKeys(beforeNodes) {
		if _, exists := afterNodes[key]; !exists {
			result.RemovedRecordTypes = append(result.RemovedRecordTypes, key)
		}
	}

	for _, key := range sortedKeys(beforeNodes) {
		afterNode, exists := afterNodes[key]
		if !exists {
			continue
		}
		beforeNode := beforeNodes[key]

		if !equalBaseType(beforeNode.BaseType, afterNode.BaseType) {
			result.BaseTypeChanges = append(result.BaseTypeChanges, models.BaseTypeChange{
				Key:    key,
				Before: beforeNode.BaseType,
				After:  afterNode.BaseType,
			})
		}

		mod := diffFields(key, beforeFields[key], afterFields[key])
		if len(mod.AddedFields) > 0 || len(mod.RemovedFields) > 0 || len(mod.ChangedFields) > 0 {
			result.ModifiedRecordTypes = append(result.ModifiedRecordTypes, mod)
		}
	}

	result.BindingChanges = diffBindings(before, after)
	return result
}

func diffFields(key string, before, after map[string]models.FieldDefinitionNode) models.ModifiedRecordType {
	mod := models.ModifiedRecordType{Key: key}

	for _, name := range sortedFieldNames(after) {
		f := after[name]
		prev, existed := before[name]
		if !existed {
			mod.AddedFields = append(mod.AddedFields, models.FieldDiff{Name: f.Name, FieldType: f.FieldType, Required: f.Required})
			continue
		}
		if prev.FieldType != f.FieldType {
			mod.ChangedFields = append(mod.ChangedFields, models.FieldTypeChange{
				Name:       name,
				BeforeType: prev.FieldType,
				AfterType:  f.FieldType,
			})
		}
	}
	for _, name := range sortedFieldNames(before) {
		if _, exists := after[name]; !exists {
			f := before[name]
			mod.RemovedFields = append(mod.RemovedFields, models.FieldDiff{Name: f.Name, FieldType: f.FieldType, Required: f.Required})
		}
	}
	return mod
}

func diffBindings(before, after models.GraphSnapshot) models.BindingChanges {
	var changes models.BindingChanges

	beforeWf := map[string]models.WorkflowBinding{}
	for _, b := range before.Workflows {
		beforeWf[workflowNaturalKey(b)] = b
	}
	afterWf := map[string]models.WorkflowBinding{}
	for _, b := range after.Workflows {
		afterWf[workflowNaturalKey(b)] = b
	}
	for _, k := range sortedKeys(afterWf) {
		if _, ok := beforeWf[k]; !ok {
			changes.AddedWorkflows = append(changes.AddedWorkflows, afterWf[k])
		}
	}
	for _, k := range sortedKeys(beforeWf) {
		if _, ok := afterWf[k]; !ok {
			changes.RemovedWorkflows = append(changes.RemovedWorkflows, beforeWf[k])
		}
	}

	beforeSLA := map[string]models.SLABinding{}
	for _, b := range before.SLAs {
		beforeSLA[b.RecordTypeKey] = b
	}
	afterSLA := map[string]models.SLABinding{}
	for _, b := range after.SLAs {
		afterSLA[b.RecordTypeKey] = b
	}
	for _, k := range sortedKeys(afterSLA) {
		if prev, ok := beforeSLA[k]; !ok || prev != afterSLA[k] {
			changes.AddedSLAs = append(changes.AddedSLAs, afterSLA[k])
		}
	}
	for _, k := range sortedKeys(beforeSLA) {
		if next, ok := afterSLA[k]; !ok || next != beforeSLA[k] {
			changes.RemovedSLAs = append(changes.RemovedSLAs, beforeSLA[k])
		}
	}

	beforeAsg := map[string]models.AssignmentBinding{}
	for _, b := range before.Assignments {
		beforeAsg[b.RecordTypeKey] = b
	}
	afterAsg := map[string]models.AssignmentBinding{}
	for _, b := range after.Assignments {
		afterAsg[b.RecordTypeKey] = b
	}
	for _, k := range sortedKeys(afterAsg) {
		if prev, ok := beforeAsg[k]; !ok || prev != afterAsg[k] {
			changes.AddedAssignments = append(changes.AddedAssignments, afterAsg[k])
		}
	}
	for _, k := range sortedKeys(beforeAsg) {
		if next, ok := afterAsg[k]; !ok || next != beforeAsg[k] {
			changes.RemovedAssignments = append(changes.RemovedAssignments, beforeAsg[k])
		}
	}

	return changes
}

func workflowNaturalKey(b models.WorkflowBinding) string {
	return b.WorkflowName + "\x00" + b.RecordTypeKey + "\x00" + b.TriggerType
}

func nodesByKey(snap models.GraphSnapshot) map[string]models.RecordTypeNode {
	out := make(map[string]models.RecordTypeNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		out[n.Key] = n
	}
	return out
}

func fieldsByType(snap models.GraphSnapshot) map[string]map[string]models.FieldDefinitionNode {
	out := map[string]map[string]models.FieldDefinitionNode{}
	for _, f := range snap.Fields {
		m, ok := out[f.RecordTypeKey]
		if !ok {
			m = map[string]models.FieldDefinitionNode{}
			out[f.RecordTypeKey] = m
		}
		m[f.Name] = f
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFieldNames(m map[string]models.FieldDefinitionNode) []string {
	return sortedKeys(m)
}

func sortedFieldDiffs(m map[string]models.FieldDefinitionNode) []models.FieldDiff {
	out := make([]models.FieldDiff, 0, len(m))
	for _, name := range sortedFieldNames(m) {
		f := m[name]
		out = append(out, models.FieldDiff{Name: f.Name, FieldType: f.FieldType, Required: f.Required})
	}
	return out
}

func equalBaseType(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
