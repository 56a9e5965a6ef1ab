package graph

import (
	"fmt"

	"github.com/Schredly/packgraph/internal/models"
)

// Validation error codes.
const (
	CodeOrphanBaseType       = "ORPHAN_BASE_TYPE"
	CodeInheritanceCycle     = "INHERITANCE_CYCLE"
	CodeCrossProjectBaseType = "CROSS_PROJECT_BASE_TYPE"
	CodeDuplicateField       = "DUPLICATE_FIELD"
	CodeDanglingBinding      = "DANGLING_BINDING_TARGET"
)

// ValidateSnapshot runs all structural checks and concatenates their
// findings. An empty result means the snapshot is structurally valid. The
// checks never mutate the snapshot and never stop early.
func ValidateSnapshot(snap models.GraphSnapshot) []models.ValidationError {
	var errs []models.ValidationError
	errs = append(errs, CheckOrphanBaseTypes(snap)...)
	errs = append(errs, CheckInheritanceCycles(snap)...)
	errs = append(errs, CheckCrossProjectBaseTypes(snap)...)
	errs = append(errs, CheckDuplicateFields(snap)...)
	errs = append(errs, CheckDanglingBindings(snap)...)
	return errs
}

// CheckOrphanBaseTypes reports base-type references that do not resolve to an
// existing node key.
func CheckOrphanBaseTypes(snap models.GraphSnapshot) []models.ValidationError {
	known := nodeKeySet(snap)
	var errs []models.ValidationError
	for _, n := range snap.Nodes {
		if n.BaseType == nil {
			continue
		}
		if !known[*n.BaseType] {
			errs = append(errs, models.ValidationError{
				Code:          CodeOrphanBaseType,
				Message:       fmt.Sprintf("record type %q extends unknown base type %q", n.Key, *n.BaseType),
				RecordTypeKey: n.Key,
			})
		}
	}
	return errs
}

// CheckInheritanceCycles walks each node's baseType chain and reports chains
// that revisit a node before terminating. Termination is bounded by the
// visited set, so malformed chains cannot loop forever.
func CheckInheritanceCycles(snap models.GraphSnapshot) []models.ValidationError {
	byKey := make(map[string]models.RecordTypeNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byKey[n.Key] = n
	}

	var errs []models.ValidationError
	for _, start := range snap.Nodes {
		visited := map[string]bool{}
		current := start
		for current.BaseType != nil {
			if visited[current.Key] {
				errs = append(errs, models.ValidationError{
					Code:          CodeInheritanceCycle,
					Message:       fmt.Sprintf("record type %q participates in an inheritance cycle", start.Key),
					RecordTypeKey: start.Key,
				})
				break
			}
			visited[current.Key] = true
			next, ok := byKey[*current.BaseType]
			if !ok {
				// Orphan base types are reported by their own check.
				break
			}
			current = next
		}
	}
	return errs
}

// CheckCrossProjectBaseTypes reports inheritance across project boundaries.
func CheckCrossProjectBaseTypes(snap models.GraphSnapshot) []models.ValidationError {
	byKey := make(map[string]models.RecordTypeNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byKey[n.Key] = n
	}

	var errs []models.ValidationError
	for _, n := range snap.Nodes {
		if n.BaseType == nil {
			continue
		}
		base, ok := byKey[*n.BaseType]
		if !ok {
			continue
		}
		if base.ProjectID != n.ProjectID {
			errs = append(errs, models.ValidationError{
				Code:          CodeCrossProjectBaseType,
				Message:       fmt.Sprintf("record type %q cannot extend %q from a different project", n.Key, base.Key),
				RecordTypeKey: n.Key,
			})
		}
	}
	return errs
}

// CheckDuplicateFields reports repeated (recordTypeKey, name) field pairs.
func CheckDuplicateFields(snap models.GraphSnapshot) []models.ValidationError {
	seen := map[string]bool{}
	var errs []models.ValidationError
	for _, f := range snap.Fields {
		k := f.RecordTypeKey + "\x00" + f.Name
		if seen[k] {
			errs = append(errs, models.ValidationError{
				Code:          CodeDuplicateField,
				Message:       fmt.Sprintf("record type %q declares field %q more than once", f.RecordTypeKey, f.Name),
				RecordTypeKey: f.RecordTypeKey,
				Field:         f.Name,
			})
			continue
		}
		seen[k] = true
	}
	return errs
}

// CheckDanglingBindings reports workflow, SLA and assignment bindings whose
// record-type key does not resolve to an existing node.
func CheckDanglingBindings(snap models.GraphSnapshot) []models.ValidationError {
	known := nodeKeySet(snap)
	var errs []models.ValidationError
	for _, b := range snap.Workflows {
		if !known[b.RecordTypeKey] {
			errs = append(errs, models.ValidationError{
				Code:          CodeDanglingBinding,
				Message:       fmt.Sprintf("workflow %q is bound to unknown record type %q", b.WorkflowName, b.RecordTypeKey),
				RecordTypeKey: b.RecordTypeKey,
			})
		}
	}
	for _, b := range snap.SLAs {
		if !known[b.RecordTypeKey] {
			errs = append(errs, models.ValidationError{
				Code:          CodeDanglingBinding,
				Message:       fmt.Sprintf("SLA policy is bound to unknown record type %q", b.RecordTypeKey),
				RecordTypeKey: b.RecordTypeKey,
			})
		}
	}
	for _, b := range snap.Assignments {
		if !known[b.RecordTypeKey] {
			errs = append(errs, models.ValidationError{
				Code:          CodeDanglingBinding,
				Message:       fmt.Sprintf("assignment rule is bound to unknown record type %q", b.RecordTypeKey),
				RecordTypeKey: b.RecordTypeKey,
			})
		}
	}
	return errs
}

func nodeKeySet(snap models.GraphSnapshot) map[string]bool {
	known := make(map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		known[n.Key] = true
	}
	return known
}
