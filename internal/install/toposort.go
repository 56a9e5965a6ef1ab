package install

import (
	"sort"

	"github.com/Schredly/packgraph/internal/models"
)

// SortTypes orders a package's record types so that a type appears only after
// its in-package base type. Base types declared outside the package are
// assumed to already exist and do not constrain the order. The output is
// deterministic: ready types are emitted in key order. If the declarations
// form a cycle the remaining types are appended in key order so the caller
// still gets a defined sequence; the validator reports the cycle separately.
func SortTypes(types []models.PackageRecordType) []models.PackageRecordType {
	byKey := make(map[string]models.PackageRecordType, len(types))
	for _, rt := range types {
		byKey[rt.Key] = rt
	}

	deps := make(map[string]string, len(types))
	for _, rt := range types {
		if rt.BaseType != nil {
			if _, inPackage := byKey[*rt.BaseType]; inPackage {
				deps[rt.Key] = *rt.BaseType
			}
		}
	}

	// Duplicate declarations collapse to the last one, so the loop is driven
	// by the unique key set rather than the input length.
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	emitted := make(map[string]bool, len(keys))
	out := make([]models.PackageRecordType, 0, len(keys))
	for len(out) < len(keys) {
		progressed := false
		for _, key := range keys {
			if emitted[key] {
				continue
			}
			if base, has := deps[key]; has && !emitted[base] {
				continue
			}
			emitted[key] = true
			out = append(out, byKey[key])
			progressed = true
		}
		if !progressed {
			// Cycle: emit the rest in key order.
			for _, key := range keys {
				if !emitted[key] {
					emitted[key] = true
					out = append(out, byKey[key])
				}
			}
		}
	}
	return out
}

// SortPackages orders packages so that a package appears only after every
// package it declares in dependsOn, ignoring dependencies outside the given
// set. Deterministic and cycle tolerant in the same way as SortTypes.
func SortPackages(pkgs []models.GraphPackage) []models.GraphPackage {
	byKey := make(map[string]models.GraphPackage, len(pkgs))
	for _, p := range pkgs {
		byKey[p.PackageKey] = p
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	emitted := make(map[string]bool, len(keys))
	out := make([]models.GraphPackage, 0, len(keys))
	for len(out) < len(keys) {
		progressed := false
		for _, key := range keys {
			if emitted[key] {
				continue
			}
			ready := true
			for _, dep := range byKey[key].DependsOn {
				if _, inSet := byKey[dep]; inSet && !emitted[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			emitted[key] = true
			out = append(out, byKey[key])
			progressed = true
		}
		if !progressed {
			for _, key := range keys {
				if !emitted[key] {
					emitted[key] = true
					out = append(out, byKey[key])
				}
			}
		}
	}
	return out
}
