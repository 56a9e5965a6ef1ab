// Package recordtypes creates record types on behalf of the install engine,
// enforcing the field-type whitelist and base-type existence.
package recordtypes

import (
	"context"
	"errors"
	"fmt"

	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/store"
)

// Field types a record-type schema may use.
var allowedFieldTypes = map[string]bool{
	"text":      true,
	"richtext":  true,
	"number":    true,
	"boolean":   true,
	"date":      true,
	"datetime":  true,
	"select":    true,
	"reference": true,
	"user":      true,
}

// AllowedFieldType reports whether the given field type is accepted.
func AllowedFieldType(t string) bool {
	return allowedFieldTypes[t]
}

type Creator struct {
	store store.Store
}

func NewCreator(st store.Store) *Creator {
	return &Creator{store: st}
}

type CreateRequest struct {
	TenantID  string
	ProjectID string
	Key       string
	BaseType  *string
	Fields    []models.FieldDefinition
}

// Create validates and persists a new record type. The base type, if named,
// must already exist for the tenant.
func (c *Creator) Create(ctx context.Context, req CreateRequest) (models.RecordType, error) {
	if req.Key == "" {
		return models.RecordType{}, fmt.Errorf("record type key is required")
	}
	for _, f := range req.Fields {
		if f.Name == "" {
			return models.RecordType{}, fmt.Errorf("record type %q has a field with no name", req.Key)
		}
		if !AllowedFieldType(f.FieldType) {
			return models.RecordType{}, fmt.Errorf("record type %q field %q has unsupported type %q", req.Key, f.Name, f.FieldType)
		}
	}
	if req.BaseType != nil {
		if _, err := c.store.GetRecordTypeByKey(ctx, req.TenantID, *req.BaseType); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return models.RecordType{}, fmt.Errorf("record type %q extends unknown base type %q", req.Key, *req.BaseType)
			}
			return models.RecordType{}, err
		}
	}
	return c.store.CreateRecordType(ctx, store.RecordTypeInput{
		TenantID:  req.TenantID,
		ProjectID: req.ProjectID,
		Key:       req.Key,
		BaseType:  req.BaseType,
		Status:    "active",
		Fields:    req.Fields,
	})
}
