// Package install implements the package install engine: canonical
// checksums, semver ordering, dependency sorting, and the orchestrated
// install algorithm.
package install

import (
	"sort"

	"github.com/Schredly/packgraph/internal/canonical"
	"github.com/Schredly/packgraph/internal/models"
)

// Canonical package shapes. Optional inputs are normalized to explicit
// defaults before hashing so that author formatting never shifts the digest.
type canonicalField struct {
	Name      string `json:"name"`
	FieldType string `json:"fieldType"`
	Required  bool   `json:"required"`
}

type canonicalRecordType struct {
	Key      string           `json:"key"`
	BaseType *string          `json:"baseType"`
	Fields   []canonicalField `json:"fields"`
}

type canonicalSLAPolicy struct {
	RecordTypeKey   string `json:"recordTypeKey"`
	DurationMinutes int    `json:"durationMinutes"`
}

type canonicalAssignmentRule struct {
	RecordTypeKey string `json:"recordTypeKey"`
	StrategyType  string `json:"strategyType"`
}

type canonicalWorkflowStep struct {
	Name     string `json:"name"`
	StepType string `json:"stepType"`
	Ordering int    `json:"ordering"`
}

type canonicalWorkflow struct {
	Key           string                  `json:"key"`
	Name          string                  `json:"name"`
	RecordTypeKey string                  `json:"recordTypeKey"`
	TriggerEvent  string                  `json:"triggerEvent"`
	Steps         []canonicalWorkflowStep `json:"steps"`
}

type canonicalPackage struct {
	RecordTypes     []canonicalRecordType     `json:"recordTypes"`
	SLAPolicies     []canonicalSLAPolicy      `json:"slaPolicies"`
	AssignmentRules []canonicalAssignmentRule `json:"assignmentRules"`
	Workflows       []canonicalWorkflow       `json:"workflows"`
}

// ComputeChecksum returns a hex digest of the package content that is stable
// under reordering of record types, fields, SLA/assignment entries, workflows
// and steps.
//
// Packages that carry no SLA policies, assignment rules or workflows are
// hashed over the record-types array alone. That matches the digest format
// that predates those sections, so adding new package sections never changes
// the checksum of packages that do not use them.
func ComputeChecksum(pkg models.GraphPackage) (string, error) {
	types := canonicalizeRecordTypes(pkg.RecordTypes)

	if len(pkg.SLAPolicies) == 0 && len(pkg.AssignmentRules) == 0 && len(pkg.Workflows) == 0 {
		return canonical.SHA256Hex(types)
	}

	return canonical.SHA256Hex(canonicalPackage{
		RecordTypes:     types,
		SLAPolicies:     canonicalizeSLAPolicies(pkg.SLAPolicies),
		AssignmentRules: canonicalizeAssignmentRules(pkg.AssignmentRules),
		Workflows:       canonicalizeWorkflows(pkg.Workflows),
	})
}

func canonicalizeRecordTypes(in []models.PackageRecordType) []canonicalRecordType {
	out := make([]canonicalRecordType, 0, len(in))
	for _, rt := range in {
		fields := make([]canonicalField, 0, len(rt.Fields))
		for _, f := range rt.Fields {
			fields = append(fields, canonicalField{Name: f.Name, FieldType: f.FieldType, Required: f.Required})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		out = append(out, canonicalRecordType{Key: rt.Key, BaseType: rt.BaseType, Fields: fields})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func canonicalizeSLAPolicies(in []models.PackageSLAPolicy) []canonicalSLAPolicy {
	out := make([]canonicalSLAPolicy, 0, len(in))
	for _, p := range in {
		out = append(out, canonicalSLAPolicy{RecordTypeKey: p.RecordTypeKey, DurationMinutes: p.DurationMinutes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordTypeKey < out[j].RecordTypeKey })
	return out
}

func canonicalizeAssignmentRules(in []models.PackageAssignmentRule) []canonicalAssignmentRule {
	out := make([]canonicalAssignmentRule, 0, len(in))
	for _, r := range in {
		out = append(out, canonicalAssignmentRule{RecordTypeKey: r.RecordTypeKey, StrategyType: r.StrategyType})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordTypeKey < out[j].RecordTypeKey })
	return out
}

func canonicalizeWorkflows(in []models.PackageWorkflow) []canonicalWorkflow {
	out := make([]canonicalWorkflow, 0, len(in))
	for _, wf := range in {
		trigger := wf.TriggerEvent
		if trigger == "" {
			trigger = "record_created"
		}
		steps := make([]canonicalWorkflowStep, 0, len(wf.Steps))
		for _, s := range wf.Steps {
			steps = append(steps, canonicalWorkflowStep{Name: s.Name, StepType: s.StepType, Ordering: s.Ordering})
		}
		sort.Slice(steps, func(i, j int) bool { return steps[i].Ordering < steps[j].Ordering })
		out = append(out, canonicalWorkflow{
			Key:           wf.Key,
			Name:          wf.Name,
			RecordTypeKey: wf.RecordTypeKey,
			TriggerEvent:  trigger,
			Steps:         steps,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
