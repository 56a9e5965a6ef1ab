package install

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Schredly/packgraph/internal/archive"
	"github.com/Schredly/packgraph/internal/events"
	"github.com/Schredly/packgraph/internal/graph"
	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/recordtypes"
	"github.com/Schredly/packgraph/internal/store"
)

// Ownership conflict codes.
const (
	CodeOwnershipConflict        = "PACKAGE_OWNERSHIP_CONFLICT"
	CodeBindingOwnershipConflict = "PACKAGE_BINDING_OWNERSHIP_CONFLICT"
)

// Options controls a single package install.
type Options struct {
	// PreviewOnly computes checksum, diff and validation without mutating
	// anything. Every caller that needs a dry run uses this.
	PreviewOnly bool

	// AllowDowngrade permits installing a version lower than the latest
	// installed one.
	AllowDowngrade bool

	// AllowForeignTypeMutation skips the ownership check.
	AllowForeignTypeMutation bool

	// EnvironmentID, when set, also writes an environment-ledger row.
	EnvironmentID string

	// Source tags the environment-ledger row; defaults to "install".
	Source string

	// InstalledBy is the identity recorded on ledger rows.
	InstalledBy string
}

// Engine orchestrates package installation: idempotency and version checks,
// ownership resolution, projection/validation/diff, ordered apply, and ledger
// writes. Business failures are reported in InstallResult; only collaborator
// failures surface as errors.
type Engine struct {
	store    store.Store
	creator  *recordtypes.Creator
	events   events.Emitter
	archiver archive.Archiver
	log      zerolog.Logger
}

func NewEngine(st store.Store, creator *recordtypes.Creator, emitter events.Emitter, archiver archive.Archiver, log zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		creator:  creator,
		events:   emitter,
		archiver: archiver,
		log:      log,
	}
}

// InstallPackage installs one package into a project, optionally recording it
// against an environment.
func (e *Engine) InstallPackage(ctx context.Context, tenantID, projectID string, pkg models.GraphPackage, opts Options) (models.InstallResult, error) {
	result := models.InstallResult{
		PackageKey: pkg.PackageKey,
		Version:    pkg.Version,
		Preview:    opts.PreviewOnly,
	}

	checksum, err := ComputeChecksum(pkg)
	if err != nil {
		return result, fmt.Errorf("compute checksum: %w", err)
	}
	result.Checksum = checksum

	ledger, err := e.store.ListPackageInstalls(ctx, tenantID, projectID)
	if err != nil {
		return result, fmt.Errorf("read install ledger: %w", err)
	}

	// The ledger is newest-first; the first row for this key is the latest
	// install attempt.
	var latest *models.PackageInstallRecord
	for i := range ledger {
		if ledger[i].PackageKey == pkg.PackageKey {
			latest = &ledger[i]
			break
		}
	}

	if latest != nil && latest.Checksum == checksum {
		result.Success = true
		result.Noop = true
		// The graph and global ledger are already at this content, but the
		// target environment may not have recorded it yet (promotion replays
		// content that by construction matches the latest global row).
		if !opts.PreviewOnly && opts.EnvironmentID != "" {
			if err := e.recordEnvironmentArrival(ctx, tenantID, projectID, pkg, checksum, opts); err != nil {
				return result, err
			}
		}
		e.events.Emit(ctx, events.TypePackageInstallNoop, tenantID, installEventPayload(projectID, result, opts))
		return result, nil
	}

	if latest != nil && CompareSemver(pkg.Version, latest.Version) < 0 && !opts.AllowDowngrade {
		result.Rejected = true
		result.Reason = fmt.Sprintf("Version %s is lower than installed %s. Pass allowDowngrade to override.", pkg.Version, latest.Version)
		e.events.Emit(ctx, events.TypePackageInstallRejected, tenantID, installEventPayload(projectID, result, opts))
		return result, nil
	}

	if !opts.AllowForeignTypeMutation {
		conflicts := ownershipConflicts(ledger, pkg)
		if len(conflicts) > 0 {
			result.Errors = conflicts
			return result, nil
		}
	}

	snapshot, err := graph.BuildSnapshot(ctx, e.store, tenantID)
	if err != nil {
		return result, fmt.Errorf("build snapshot: %w", err)
	}
	projected := graph.ProjectPackage(snapshot, pkg, projectID, tenantID)
	validationErrs := graph.ValidateSnapshot(projected)
	result.Diff = graph.DiffSnapshots(snapshot, projected)

	if len(validationErrs) > 0 {
		result.Errors = validationErrs
		return result, nil
	}
	if opts.PreviewOnly {
		result.Success = true
		return result, nil
	}

	mutations, err := e.apply(ctx, tenantID, projectID, pkg)
	if err != nil {
		return result, err
	}
	result.MutationsApplied = mutations

	rec, err := e.store.AppendPackageInstall(ctx, store.PackageInstallInput{
		TenantID:        tenantID,
		ProjectID:       projectID,
		PackageKey:      pkg.PackageKey,
		Version:         pkg.Version,
		Checksum:        checksum,
		Diff:            result.Diff,
		PackageContents: pkg,
		InstalledBy:     opts.InstalledBy,
	})
	if err != nil {
		return result, fmt.Errorf("write install ledger: %w", err)
	}

	if opts.EnvironmentID != "" {
		source := opts.Source
		if source == "" {
			source = models.InstallSourceInstall
		}
		if _, err := e.store.AppendEnvironmentInstall(ctx, store.EnvironmentInstallInput{
			TenantID:        tenantID,
			EnvironmentID:   opts.EnvironmentID,
			ProjectID:       projectID,
			PackageKey:      pkg.PackageKey,
			Version:         pkg.Version,
			Checksum:        checksum,
			Diff:            result.Diff,
			PackageContents: pkg,
			Source:          source,
			InstalledBy:     opts.InstalledBy,
		}); err != nil {
			return result, fmt.Errorf("write environment ledger: %w", err)
		}
	}

	if e.archiver != nil {
		if err := e.archiver.ArchiveInstall(ctx, rec); err != nil {
			e.log.Warn().Err(err).Str("packageKey", pkg.PackageKey).Msg("ledger archival failed")
		}
	}

	result.Success = true
	e.events.Emit(ctx, events.TypePackageInstallCompleted, tenantID, installEventPayload(projectID, result, opts))
	return result, nil
}

// recordEnvironmentArrival writes an environment-ledger row for content the
// project already holds, unless the environment's own latest row for this key
// is already at the same checksum.
func (e *Engine) recordEnvironmentArrival(ctx context.Context, tenantID, projectID string, pkg models.GraphPackage, checksum string, opts Options) error {
	rows, err := e.store.ListEnvironmentInstalls(ctx, tenantID, opts.EnvironmentID)
	if err != nil {
		return fmt.Errorf("read environment ledger: %w", err)
	}
	for _, row := range rows {
		if row.PackageKey != pkg.PackageKey {
			continue
		}
		if row.Checksum == checksum {
			return nil
		}
		break
	}

	source := opts.Source
	if source == "" {
		source = models.InstallSourceInstall
	}
	if _, err := e.store.AppendEnvironmentInstall(ctx, store.EnvironmentInstallInput{
		TenantID:        tenantID,
		EnvironmentID:   opts.EnvironmentID,
		ProjectID:       projectID,
		PackageKey:      pkg.PackageKey,
		Version:         pkg.Version,
		Checksum:        checksum,
		PackageContents: pkg,
		Source:          source,
		InstalledBy:     opts.InstalledBy,
	}); err != nil {
		return fmt.Errorf("write environment ledger: %w", err)
	}
	return nil
}

// InstallPackages installs a set of packages in dependency order, stopping at
// the first non-success result. Packages applied before the failure stay
// applied; there is no rollback.
func (e *Engine) InstallPackages(ctx context.Context, tenantID, projectID string, pkgs []models.GraphPackage, opts Options) ([]models.InstallResult, error) {
	ordered := SortPackages(pkgs)
	results := make([]models.InstallResult, 0, len(ordered))
	for _, pkg := range ordered {
		res, err := e.InstallPackage(ctx, tenantID, projectID, pkg, opts)
		results = append(results, res)
		if err != nil {
			return results, err
		}
		if !res.Success {
			break
		}
	}
	return results, nil
}

// ownershipConflicts folds the ledger oldest-first into a map of record-type
// key to the package that first introduced it, then reports every key the
// candidate touches that belongs to a different package.
func ownershipConflicts(ledger []models.PackageInstallRecord, pkg models.GraphPackage) []models.ValidationError {
	owners := map[string]string{}
	for i := len(ledger) - 1; i >= 0; i-- {
		rec := ledger[i]
		for _, rt := range rec.PackageContents.RecordTypes {
			if _, claimed := owners[rt.Key]; !claimed {
				owners[rt.Key] = rec.PackageKey
			}
		}
	}

	var conflicts []models.ValidationError
	seen := map[string]bool{}

	report := func(code, key string) {
		owner, claimed := owners[key]
		if !claimed || owner == pkg.PackageKey {
			return
		}
		dedup := code + "\x00" + key
		if seen[dedup] {
			return
		}
		seen[dedup] = true
		conflicts = append(conflicts, models.ValidationError{
			Code:          code,
			Message:       fmt.Sprintf("record type %q is owned by package %q", key, owner),
			RecordTypeKey: key,
			PackageKey:    owner,
		})
	}

	ownTypes := map[string]bool{}
	for _, rt := range pkg.RecordTypes {
		ownTypes[rt.Key] = true
		report(CodeOwnershipConflict, rt.Key)
	}
	for _, sla := range pkg.SLAPolicies {
		if !ownTypes[sla.RecordTypeKey] {
			report(CodeBindingOwnershipConflict, sla.RecordTypeKey)
		}
	}
	for _, rule := range pkg.AssignmentRules {
		if !ownTypes[rule.RecordTypeKey] {
			report(CodeBindingOwnershipConflict, rule.RecordTypeKey)
		}
	}
	for _, wf := range pkg.Workflows {
		if !ownTypes[wf.RecordTypeKey] {
			report(CodeBindingOwnershipConflict, wf.RecordTypeKey)
		}
	}
	return conflicts
}

// apply mutates stored state in dependency order. Record types are created
// through the creation collaborator (which re-validates schemas); existing
// types only gain fields they do not already have. Workflows are idempotent
// by name.
func (e *Engine) apply(ctx context.Context, tenantID, projectID string, pkg models.GraphPackage) (int, error) {
	mutations := 0

	for _, rt := range SortTypes(pkg.RecordTypes) {
		existing, err := e.store.GetRecordTypeByKey(ctx, tenantID, rt.Key)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return mutations, fmt.Errorf("lookup record type %q: %w", rt.Key, err)
			}
			if _, err := e.creator.Create(ctx, recordtypes.CreateRequest{
				TenantID:  tenantID,
				ProjectID: projectID,
				Key:       rt.Key,
				BaseType:  rt.BaseType,
				Fields:    packageFields(rt.Fields),
			}); err != nil {
				return mutations, fmt.Errorf("create record type %q: %w", rt.Key, err)
			}
			mutations++
			continue
		}

		merged, added := mergeFields(existing.Fields, rt.Fields)
		if added == 0 {
			continue
		}
		if _, err := e.store.UpdateRecordTypeFields(ctx, tenantID, rt.Key, merged); err != nil {
			return mutations, fmt.Errorf("merge fields into %q: %w", rt.Key, err)
		}
		mutations++
	}

	for _, sla := range pkg.SLAPolicies {
		if err := e.store.UpdateRecordTypeSLAConfig(ctx, tenantID, sla.RecordTypeKey, models.SLAConfig{
			DurationMinutes: sla.DurationMinutes,
		}); err != nil {
			return mutations, fmt.Errorf("apply SLA config on %q: %w", sla.RecordTypeKey, err)
		}
		mutations++
	}

	for _, rule := range pkg.AssignmentRules {
		if err := e.store.UpdateRecordTypeAssignmentConfig(ctx, tenantID, rule.RecordTypeKey, models.AssignmentConfig{
			StrategyType: rule.StrategyType,
		}); err != nil {
			return mutations, fmt.Errorf("apply assignment config on %q: %w", rule.RecordTypeKey, err)
		}
		mutations++
	}

	if len(pkg.Workflows) > 0 {
		existing, err := e.store.ListWorkflowDefinitions(ctx, tenantID)
		if err != nil {
			return mutations, fmt.Errorf("list workflow definitions: %w", err)
		}
		names := make(map[string]bool, len(existing))
		for _, wf := range existing {
			names[wf.Name] = true
		}

		for _, wf := range pkg.Workflows {
			if names[wf.Name] {
				continue
			}
			steps := make([]models.WorkflowStep, 0, len(wf.Steps))
			for _, s := range wf.Steps {
				steps = append(steps, models.WorkflowStep{Name: s.Name, StepType: s.StepType, Ordering: s.Ordering})
			}
			sort.Slice(steps, func(i, j int) bool { return steps[i].Ordering < steps[j].Ordering })

			def, err := e.store.CreateWorkflowDefinition(ctx, store.WorkflowDefinitionInput{
				TenantID:  tenantID,
				ProjectID: projectID,
				Name:      wf.Name,
				Status:    "active",
				Steps:     steps,
			})
			if err != nil {
				return mutations, fmt.Errorf("create workflow %q: %w", wf.Name, err)
			}
			mutations++

			event := wf.TriggerEvent
			if event == "" {
				event = "record_created"
			}
			if _, err := e.store.CreateWorkflowTrigger(ctx, store.WorkflowTriggerInput{
				TenantID:      tenantID,
				WorkflowID:    def.ID,
				TriggerType:   models.TriggerTypeRecordEvent,
				RecordTypeKey: wf.RecordTypeKey,
				EventName:     event,
			}); err != nil {
				return mutations, fmt.Errorf("create trigger for workflow %q: %w", wf.Name, err)
			}
			mutations++
			names[wf.Name] = true
		}
	}

	return mutations, nil
}

func packageFields(in []models.PackageField) []models.FieldDefinition {
	out := make([]models.FieldDefinition, 0, len(in))
	for _, f := range in {
		out = append(out, models.FieldDefinition{Name: f.Name, FieldType: f.FieldType, Required: f.Required})
	}
	return out
}

// mergeFields appends package fields whose names are not already present.
// Existing fields are never overwritten or retyped.
func mergeFields(existing []models.FieldDefinition, candidate []models.PackageField) ([]models.FieldDefinition, int) {
	names := make(map[string]bool, len(existing))
	for _, f := range existing {
		names[f.Name] = true
	}
	merged := append([]models.FieldDefinition(nil), existing...)
	added := 0
	for _, f := range candidate {
		if names[f.Name] {
			continue
		}
		names[f.Name] = true
		merged = append(merged, models.FieldDefinition{Name: f.Name, FieldType: f.FieldType, Required: f.Required})
		added++
	}
	return merged, added
}

func installEventPayload(projectID string, result models.InstallResult, opts Options) map[string]interface{} {
	payload := map[string]interface{}{
		"projectId":  projectID,
		"packageKey": result.PackageKey,
		"version":    result.Version,
		"checksum":   result.Checksum,
		"noop":       result.Noop,
		"rejected":   result.Rejected,
		"diff":       result.Diff,
	}
	if result.Reason != "" {
		payload["reason"] = result.Reason
	}
	if opts.EnvironmentID != "" {
		payload["environmentId"] = opts.EnvironmentID
	}
	return payload
}
