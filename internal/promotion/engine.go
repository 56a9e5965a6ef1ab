// Package promotion compares per-environment package state and replays
// packages from one environment's ledger into another via the install engine,
// wrapped by a human-gated intent lifecycle.
package promotion

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Schredly/packgraph/internal/events"
	"github.com/Schredly/packgraph/internal/install"
	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/store"
)

// Engine promotes packages between environments.
type Engine struct {
	store    store.Store
	installs *install.Engine
	events   events.Emitter
	log      zerolog.Logger
}

func NewEngine(st store.Store, installs *install.Engine, emitter events.Emitter, log zerolog.Logger) *Engine {
	return &Engine{store: st, installs: installs, events: emitter, log: log}
}

// PromoteOptions controls one promotion run.
type PromoteOptions struct {
	PreviewOnly bool
	PromotedBy  string
}

// EnvironmentPackageState materializes the authoritative installed state of an
// environment from its ledger: one entry per packageKey, the most recent row
// wins. Entries come back sorted by packageKey.
func (e *Engine) EnvironmentPackageState(ctx context.Context, tenantID, environmentID string) ([]models.EnvironmentPackageState, error) {
	rows, err := e.store.ListEnvironmentInstalls(ctx, tenantID, environmentID)
	if err != nil {
		return nil, fmt.Errorf("read environment ledger: %w", err)
	}

	// Rows are newest-first; keep the first occurrence per key.
	seen := map[string]bool{}
	out := make([]models.EnvironmentPackageState, 0, len(rows))
	for _, row := range rows {
		if seen[row.PackageKey] {
			continue
		}
		seen[row.PackageKey] = true
		out = append(out, models.EnvironmentPackageState{
			PackageKey:  row.PackageKey,
			Version:     row.Version,
			Checksum:    row.Checksum,
			InstalledAt: row.CreatedAt,
			Source:      row.Source,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageKey < out[j].PackageKey })
	return out, nil
}

// DiffEnvironments compares the source environment against the target. Every
// package in the source yields a delta: missing if absent from the target,
// outdated if the checksums differ, same otherwise. Packages present only in
// the target are not reported; promotion flows one way.
func (e *Engine) DiffEnvironments(ctx context.Context, tenantID, fromEnvironmentID, toEnvironmentID string) (models.EnvironmentDiff, error) {
	diff := models.EnvironmentDiff{
		FromEnvironmentID: fromEnvironmentID,
		ToEnvironmentID:   toEnvironmentID,
		Deltas:            []models.EnvironmentDelta{},
	}

	if _, err := e.store.GetEnvironment(ctx, tenantID, fromEnvironmentID); err != nil {
		return diff, fmt.Errorf("source environment %q: %w", fromEnvironmentID, err)
	}
	if _, err := e.store.GetEnvironment(ctx, tenantID, toEnvironmentID); err != nil {
		return diff, fmt.Errorf("target environment %q: %w", toEnvironmentID, err)
	}

	fromState, err := e.EnvironmentPackageState(ctx, tenantID, fromEnvironmentID)
	if err != nil {
		return diff, err
	}
	toState, err := e.EnvironmentPackageState(ctx, tenantID, toEnvironmentID)
	if err != nil {
		return diff, err
	}

	toByKey := make(map[string]models.EnvironmentPackageState, len(toState))
	for _, s := range toState {
		toByKey[s.PackageKey] = s
	}

	for _, from := range fromState {
		delta := models.EnvironmentDelta{
			PackageKey:   from.PackageKey,
			FromVersion:  from.Version,
			FromChecksum: from.Checksum,
		}
		to, present := toByKey[from.PackageKey]
		switch {
		case !present:
			delta.Status = models.DeltaMissing
		case to.Checksum != from.Checksum:
			delta.Status = models.DeltaOutdated
			delta.ToVersion = to.Version
			delta.ToChecksum = to.Checksum
		default:
			delta.Status = models.DeltaSame
			delta.ToVersion = to.Version
			delta.ToChecksum = to.Checksum
		}
		diff.Deltas = append(diff.Deltas, delta)
	}
	return diff, nil
}

// PromotePackages replays the actionable deltas (missing or outdated) from the
// source environment into the target. Each package is reconstructed from the
// source ledger's stored contents, then installed in dependency order with
// source=promote and downgrades disallowed. The run stops at the first failing
// package; earlier promotions stay applied. Packages already at the same
// checksum land in Skipped and are never re-installed.
func (e *Engine) PromotePackages(ctx context.Context, tenantID, projectID, fromEnvironmentID, toEnvironmentID string, opts PromoteOptions) (models.PromotionResult, error) {
	result := models.PromotionResult{
		FromEnvironmentID: fromEnvironmentID,
		ToEnvironmentID:   toEnvironmentID,
		Preview:           opts.PreviewOnly,
		Promoted:          []models.PromotedPackage{},
		Skipped:           []string{},
	}

	diff, err := e.DiffEnvironments(ctx, tenantID, fromEnvironmentID, toEnvironmentID)
	if err != nil {
		return result, err
	}

	actionable := map[string]bool{}
	for _, delta := range diff.Deltas {
		switch delta.Status {
		case models.DeltaSame:
			result.Skipped = append(result.Skipped, delta.PackageKey)
		case models.DeltaMissing, models.DeltaOutdated:
			actionable[delta.PackageKey] = true
		}
	}
	if len(actionable) == 0 {
		return result, nil
	}

	pkgs, err := e.materializePackages(ctx, tenantID, fromEnvironmentID, actionable)
	if err != nil {
		return result, err
	}

	for _, pkg := range install.SortPackages(pkgs) {
		res, err := e.installs.InstallPackage(ctx, tenantID, projectID, pkg, install.Options{
			PreviewOnly:    opts.PreviewOnly,
			AllowDowngrade: false,
			EnvironmentID:  toEnvironmentID,
			Source:         models.InstallSourcePromote,
			InstalledBy:    opts.PromotedBy,
		})
		if err != nil {
			return result, err
		}
		if !res.Success {
			reason := res.Reason
			if reason == "" {
				reason = "install failed"
			}
			result.Failed = &models.FailedPromotion{
				PackageKey: pkg.PackageKey,
				Reason:     reason,
				Errors:     res.Errors,
			}
			return result, nil
		}
		result.Promoted = append(result.Promoted, models.PromotedPackage{
			PackageKey: pkg.PackageKey,
			Version:    pkg.Version,
			Checksum:   res.Checksum,
		})
		if !opts.PreviewOnly {
			e.events.Emit(ctx, events.TypePackagePromoted, tenantID, map[string]interface{}{
				"projectId":         projectID,
				"packageKey":        pkg.PackageKey,
				"version":           pkg.Version,
				"checksum":          res.Checksum,
				"fromEnvironmentId": fromEnvironmentID,
				"toEnvironmentId":   toEnvironmentID,
			})
		}
	}
	return result, nil
}

// materializePackages reads the source environment ledger and rebuilds the
// requested packages from the newest stored contents per key. This is a replay
// of ledger history, not a cache.
func (e *Engine) materializePackages(ctx context.Context, tenantID, environmentID string, keys map[string]bool) ([]models.GraphPackage, error) {
	rows, err := e.store.ListEnvironmentInstalls(ctx, tenantID, environmentID)
	if err != nil {
		return nil, fmt.Errorf("read environment ledger: %w", err)
	}
	pkgs := make([]models.GraphPackage, 0, len(keys))
	seen := map[string]bool{}
	for _, row := range rows {
		if !keys[row.PackageKey] || seen[row.PackageKey] {
			continue
		}
		seen[row.PackageKey] = true
		pkgs = append(pkgs, row.PackageContents)
	}
	for key := range keys {
		if !seen[key] {
			return nil, fmt.Errorf("package %q has no ledger row in environment %q", key, environmentID)
		}
	}
	return pkgs, nil
}
