package install_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Schredly/packgraph/internal/events"
	"github.com/Schredly/packgraph/internal/install"
	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/recordtypes"
	"github.com/Schredly/packgraph/internal/store"
)

const testTenant = "tenant-1"
const testProject = "project-1"

func newEngine(st *store.MemoryStore) *install.Engine {
	return install.NewEngine(st, recordtypes.NewCreator(st), events.NoopEmitter{}, nil, zerolog.Nop())
}

func itsmLitePackage() models.GraphPackage {
	return models.GraphPackage{
		PackageKey: "itsm.lite",
		Version:    "1.0.0",
		RecordTypes: []models.PackageRecordType{
			{Key: "task", Fields: []models.PackageField{
				{Name: "title", FieldType: "text", Required: true},
				{Name: "status", FieldType: "select"},
			}},
			{Key: "incident", BaseType: strPtr("task"), Fields: []models.PackageField{
				{Name: "severity", FieldType: "select", Required: true},
			}},
			{Key: "problem", BaseType: strPtr("task"), Fields: []models.PackageField{
				{Name: "rootCause", FieldType: "richtext"},
			}},
			{Key: "change", BaseType: strPtr("task"), Fields: []models.PackageField{
				{Name: "risk", FieldType: "select"},
			}},
		},
		SLAPolicies: []models.PackageSLAPolicy{
			{RecordTypeKey: "incident", DurationMinutes: 240},
		},
		AssignmentRules: []models.PackageAssignmentRule{
			{RecordTypeKey: "incident", StrategyType: "round_robin"},
		},
		Workflows: []models.PackageWorkflow{
			{
				Key:           "incident-triage",
				Name:          "Incident Triage",
				RecordTypeKey: "incident",
				Steps: []models.PackageWorkflowStep{
					{Name: "Notify", StepType: "notification", Ordering: 2},
					{Name: "Assign", StepType: "assignment", Ordering: 1},
				},
			},
		},
	}
}

func TestInstallPackageEndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	res, err := eng.InstallPackage(ctx, testTenant, testProject, itsmLitePackage(), install.Options{
		EnvironmentID: "env-dev",
		InstalledBy:   "tester",
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !res.Success || res.Noop || res.Rejected {
		t.Fatalf("unexpected result: %+v", res)
	}
	// 4 type creations + 1 SLA + 1 assignment + workflow definition + trigger.
	if res.MutationsApplied != 8 {
		t.Fatalf("mutations = %d, want 8", res.MutationsApplied)
	}

	types, err := st.ListRecordTypes(ctx, testTenant)
	if err != nil {
		t.Fatalf("list types: %v", err)
	}
	if len(types) != 4 {
		t.Fatalf("record types = %d, want 4", len(types))
	}
	var incident *models.RecordType
	for i := range types {
		if types[i].Key == "incident" {
			incident = &types[i]
		}
	}
	if incident == nil {
		t.Fatal("incident type not created")
	}
	if incident.SLA == nil || incident.SLA.DurationMinutes != 240 {
		t.Fatalf("incident SLA = %+v, want 240 minutes", incident.SLA)
	}
	if incident.Assignment == nil || incident.Assignment.StrategyType != "round_robin" {
		t.Fatalf("incident assignment = %+v", incident.Assignment)
	}

	wfs, err := st.ListWorkflowDefinitions(ctx, testTenant)
	if err != nil {
		t.Fatalf("list workflows: %v", err)
	}
	if len(wfs) != 1 || len(wfs[0].Steps) != 2 {
		t.Fatalf("workflows = %+v", wfs)
	}
	if wfs[0].Steps[0].Name != "Assign" || wfs[0].Steps[1].Name != "Notify" {
		t.Fatalf("steps not ordered: %+v", wfs[0].Steps)
	}
	triggers, err := st.ListWorkflowTriggers(ctx, testTenant)
	if err != nil {
		t.Fatalf("list triggers: %v", err)
	}
	if len(triggers) != 1 || triggers[0].EventName != "record_created" || triggers[0].RecordTypeKey != "incident" {
		t.Fatalf("triggers = %+v", triggers)
	}

	global, _ := st.ListPackageInstalls(ctx, testTenant, testProject)
	if len(global) != 1 {
		t.Fatalf("global ledger rows = %d, want 1", len(global))
	}
	env, _ := st.ListEnvironmentInstalls(ctx, testTenant, "env-dev")
	if len(env) != 1 {
		t.Fatalf("environment ledger rows = %d, want 1", len(env))
	}
	if global[0].Checksum != env[0].Checksum || global[0].Checksum != res.Checksum {
		t.Fatal("checksum mismatch between ledgers and result")
	}
	if env[0].Source != models.InstallSourceInstall {
		t.Fatalf("env ledger source = %q", env[0].Source)
	}
}

func TestInstallPackageIdempotentNoop(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	if _, err := eng.InstallPackage(ctx, testTenant, testProject, itsmLitePackage(), install.Options{}); err != nil {
		t.Fatalf("first install: %v", err)
	}
	res, err := eng.InstallPackage(ctx, testTenant, testProject, itsmLitePackage(), install.Options{})
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if !res.Success || !res.Noop {
		t.Fatalf("second install should be a noop: %+v", res)
	}
	if res.MutationsApplied != 0 {
		t.Fatalf("noop applied %d mutations", res.MutationsApplied)
	}
	global, _ := st.ListPackageInstalls(ctx, testTenant, testProject)
	if len(global) != 1 {
		t.Fatalf("noop wrote a ledger row: %d rows", len(global))
	}
}

func TestInstallPackageDowngradeRejected(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	v2 := itsmLitePackage()
	v2.Version = "2.0.0"
	if _, err := eng.InstallPackage(ctx, testTenant, testProject, v2, install.Options{}); err != nil {
		t.Fatalf("install v2: %v", err)
	}

	v1 := itsmLitePackage()
	res, err := eng.InstallPackage(ctx, testTenant, testProject, v1, install.Options{})
	if err != nil {
		t.Fatalf("install v1: %v", err)
	}
	if res.Success || !res.Rejected {
		t.Fatalf("downgrade not rejected: %+v", res)
	}
	want := "Version 1.0.0 is lower than installed 2.0.0. Pass allowDowngrade to override."
	if res.Reason != want {
		t.Fatalf("reason = %q, want %q", res.Reason, want)
	}

	forced, err := eng.InstallPackage(ctx, testTenant, testProject, v1, install.Options{AllowDowngrade: true})
	if err != nil {
		t.Fatalf("forced downgrade: %v", err)
	}
	if !forced.Success || forced.Rejected {
		t.Fatalf("allowDowngrade did not override: %+v", forced)
	}
}

func TestInstallPackageOwnershipConflict(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	pkgA := models.GraphPackage{
		PackageKey: "pkg.a",
		Version:    "1.0.0",
		RecordTypes: []models.PackageRecordType{
			{Key: "order", Fields: []models.PackageField{{Name: "number", FieldType: "text"}}},
		},
	}
	if _, err := eng.InstallPackage(ctx, testTenant, testProject, pkgA, install.Options{}); err != nil {
		t.Fatalf("install pkg.a: %v", err)
	}

	pkgB := models.GraphPackage{
		PackageKey: "pkg.b",
		Version:    "1.0.0",
		RecordTypes: []models.PackageRecordType{
			{Key: "order", Fields: []models.PackageField{{Name: "priority", FieldType: "select"}}},
		},
		SLAPolicies: []models.PackageSLAPolicy{{RecordTypeKey: "order", DurationMinutes: 60}},
	}
	res, err := eng.InstallPackage(ctx, testTenant, testProject, pkgB, install.Options{})
	if err != nil {
		t.Fatalf("install pkg.b: %v", err)
	}
	if res.Success {
		t.Fatalf("conflicting install succeeded: %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %+v, want one ownership conflict", res.Errors)
	}
	if res.Errors[0].Code != install.CodeOwnershipConflict {
		t.Fatalf("code = %q", res.Errors[0].Code)
	}
	if res.Errors[0].PackageKey != "pkg.a" || res.Errors[0].RecordTypeKey != "order" {
		t.Fatalf("conflict detail = %+v", res.Errors[0])
	}
	if res.MutationsApplied != 0 {
		t.Fatal("conflicting install mutated state")
	}

	// The owning package itself can keep evolving its type.
	pkgA2 := pkgA
	pkgA2.Version = "1.1.0"
	pkgA2.RecordTypes = []models.PackageRecordType{
		{Key: "order", Fields: []models.PackageField{
			{Name: "number", FieldType: "text"},
			{Name: "total", FieldType: "number"},
		}},
	}
	res2, err := eng.InstallPackage(ctx, testTenant, testProject, pkgA2, install.Options{})
	if err != nil {
		t.Fatalf("upgrade pkg.a: %v", err)
	}
	if !res2.Success {
		t.Fatalf("owner upgrade failed: %+v", res2)
	}

	// Override for deliberate cross-package extension.
	forced, err := eng.InstallPackage(ctx, testTenant, testProject, pkgB, install.Options{AllowForeignTypeMutation: true})
	if err != nil {
		t.Fatalf("forced pkg.b: %v", err)
	}
	if !forced.Success {
		t.Fatalf("allowForeignTypeMutation did not override: %+v", forced)
	}
}

func TestInstallPackageBindingOwnershipConflict(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	pkgA := models.GraphPackage{
		PackageKey: "pkg.a",
		Version:    "1.0.0",
		RecordTypes: []models.PackageRecordType{
			{Key: "ticket", Fields: []models.PackageField{{Name: "subject", FieldType: "text"}}},
		},
	}
	if _, err := eng.InstallPackage(ctx, testTenant, testProject, pkgA, install.Options{}); err != nil {
		t.Fatalf("install pkg.a: %v", err)
	}

	pkgB := models.GraphPackage{
		PackageKey: "pkg.b",
		Version:    "1.0.0",
		RecordTypes: []models.PackageRecordType{
			{Key: "asset", Fields: []models.PackageField{{Name: "tag", FieldType: "text"}}},
		},
		SLAPolicies: []models.PackageSLAPolicy{{RecordTypeKey: "ticket", DurationMinutes: 30}},
	}
	res, err := eng.InstallPackage(ctx, testTenant, testProject, pkgB, install.Options{})
	if err != nil {
		t.Fatalf("install pkg.b: %v", err)
	}
	if res.Success {
		t.Fatalf("binding conflict not detected: %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != install.CodeBindingOwnershipConflict {
		t.Fatalf("errors = %+v", res.Errors)
	}
}

func TestInstallPackagePreviewMutatesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	res, err := eng.InstallPackage(ctx, testTenant, testProject, itsmLitePackage(), install.Options{PreviewOnly: true})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !res.Success || !res.Preview {
		t.Fatalf("preview result: %+v", res)
	}
	if res.MutationsApplied != 0 {
		t.Fatalf("preview applied %d mutations", res.MutationsApplied)
	}
	if len(res.Diff.AddedRecordTypes) != 4 {
		t.Fatalf("preview diff added = %d, want 4", len(res.Diff.AddedRecordTypes))
	}
	types, _ := st.ListRecordTypes(ctx, testTenant)
	if len(types) != 0 {
		t.Fatal("preview created record types")
	}
	global, _ := st.ListPackageInstalls(ctx, testTenant, testProject)
	if len(global) != 0 {
		t.Fatal("preview wrote a ledger row")
	}
}

func TestInstallPackageValidationFailure(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	pkg := models.GraphPackage{
		PackageKey: "pkg.broken",
		Version:    "1.0.0",
		RecordTypes: []models.PackageRecordType{
			{Key: "widget", BaseType: strPtr("gadget"), Fields: []models.PackageField{
				{Name: "color", FieldType: "select"},
			}},
		},
	}
	res, err := eng.InstallPackage(ctx, testTenant, testProject, pkg, install.Options{})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if res.Success {
		t.Fatalf("install with orphan base type succeeded: %+v", res)
	}
	if len(res.Errors) == 0 || res.Errors[0].Code != "ORPHAN_BASE_TYPE" {
		t.Fatalf("errors = %+v", res.Errors)
	}
	types, _ := st.ListRecordTypes(ctx, testTenant)
	if len(types) != 0 {
		t.Fatal("failed validation still mutated state")
	}
}

func TestInstallPackagesDependencyOrderAndStop(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	base := models.GraphPackage{
		PackageKey: "core",
		Version:    "1.0.0",
		RecordTypes: []models.PackageRecordType{
			{Key: "task", Fields: []models.PackageField{{Name: "title", FieldType: "text"}}},
		},
	}
	ext := models.GraphPackage{
		PackageKey: "ext",
		Version:    "1.0.0",
		DependsOn:  []string{"core"},
		RecordTypes: []models.PackageRecordType{
			{Key: "subtask", BaseType: strPtr("task"), Fields: []models.PackageField{
				{Name: "notes", FieldType: "richtext"},
			}},
		},
	}
	broken := models.GraphPackage{
		PackageKey: "aaa.broken",
		Version:    "1.0.0",
		DependsOn:  []string{"ext"},
		RecordTypes: []models.PackageRecordType{
			{Key: "thing", BaseType: strPtr("missing"), Fields: nil},
		},
	}

	// Provided out of order; dependsOn must drive application order and the
	// failure must stop the batch after the successes.
	results, err := eng.InstallPackages(ctx, testTenant, testProject, []models.GraphPackage{broken, ext, base}, install.Options{})
	if err != nil {
		t.Fatalf("install batch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].PackageKey != "core" || !results[0].Success {
		t.Fatalf("first result = %+v", results[0])
	}
	if results[1].PackageKey != "ext" || !results[1].Success {
		t.Fatalf("second result = %+v", results[1])
	}
	if results[2].PackageKey != "aaa.broken" || results[2].Success {
		t.Fatalf("third result = %+v", results[2])
	}

	// Earlier successes stay applied.
	types, _ := st.ListRecordTypes(ctx, testTenant)
	if len(types) != 2 {
		t.Fatalf("record types = %d, want 2", len(types))
	}
}

func TestInstallPackageMergesNewFieldsOnly(t *testing.T) {
	st := store.NewMemoryStore()
	eng := newEngine(st)
	ctx := context.Background()

	st.SeedRecordType(models.RecordType{
		TenantID:  testTenant,
		ProjectID: testProject,
		Key:       "task",
		Status:    "active",
		Fields: []models.FieldDefinition{
			{Name: "title", FieldType: "text", Required: true},
		},
	})

	pkg := models.GraphPackage{
		PackageKey: "pkg.ext",
		Version:    "1.0.0",
		RecordTypes: []models.PackageRecordType{
			{Key: "task", Fields: []models.PackageField{
				{Name: "title", FieldType: "number"}, // must not retype
				{Name: "dueDate", FieldType: "date"},
			}},
		},
	}
	res, err := eng.InstallPackage(ctx, testTenant, testProject, pkg, install.Options{AllowForeignTypeMutation: true})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !res.Success || res.MutationsApplied != 1 {
		t.Fatalf("result = %+v", res)
	}

	rt, err := st.GetRecordTypeByKey(ctx, testTenant, "task")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if len(rt.Fields) != 2 {
		t.Fatalf("fields = %+v", rt.Fields)
	}
	if rt.Fields[0].FieldType != "text" {
		t.Fatalf("existing field retyped: %+v", rt.Fields[0])
	}
	if rt.Fields[1].Name != "dueDate" || rt.Fields[1].FieldType != "date" {
		t.Fatalf("new field not merged: %+v", rt.Fields[1])
	}
}

func strPtr(s string) *string { return &s }
