package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Schredly/packgraph/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
// Ledger slices are kept in append order; list methods return them
// newest-first, matching the Postgres implementation.
type MemoryStore struct {
	mu           sync.RWMutex
	recordTypes  map[string]models.RecordType // keyed by tenantID+"/"+key
	workflows    []models.WorkflowDefinition
	triggers     []models.WorkflowTrigger
	installs     []models.PackageInstallRecord
	envInstalls  []models.EnvironmentInstallRecord
	environments map[string]models.Environment // keyed by tenantID+"/"+id
	intents      map[string]models.PromotionIntent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recordTypes:  map[string]models.RecordType{},
		environments: map[string]models.Environment{},
		intents:      map[string]models.PromotionIntent{},
	}
}

func scopedKey(tenantID, key string) string {
	return tenantID + "/" + key
}

// SeedEnvironment registers an environment for tests.
func (m *MemoryStore) SeedEnvironment(env models.Environment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}
	m.environments[scopedKey(env.TenantID, env.ID)] = env
}

// SeedRecordType registers a pre-existing record type for tests.
func (m *MemoryStore) SeedRecordType(rt models.RecordType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	if rt.Status == "" {
		rt.Status = "active"
	}
	m.recordTypes[scopedKey(rt.TenantID, rt.Key)] = rt
}

func (m *MemoryStore) ListRecordTypes(ctx context.Context, tenantID string) ([]models.RecordType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RecordType
	for _, rt := range m.recordTypes {
		if rt.TenantID == tenantID {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) GetRecordTypeByKey(ctx context.Context, tenantID, key string) (models.RecordType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.recordTypes[scopedKey(tenantID, key)]
	if !ok {
		return models.RecordType{}, ErrNotFound
	}
	return rt, nil
}

func (m *MemoryStore) CreateRecordType(ctx context.Context, in RecordTypeInput) (models.RecordType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Status == "" {
		in.Status = "active"
	}
	now := time.Now().UTC()
	rt := models.RecordType{
		ID:        in.ID,
		TenantID:  in.TenantID,
		ProjectID: in.ProjectID,
		Key:       in.Key,
		BaseType:  in.BaseType,
		Status:    in.Status,
		Version:   1,
		Fields:    append([]models.FieldDefinition(nil), in.Fields...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.recordTypes[scopedKey(in.TenantID, in.Key)] = rt
	return rt, nil
}

func (m *MemoryStore) UpdateRecordTypeFields(ctx context.Context, tenantID, key string, fields []models.FieldDefinition) (models.RecordType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.recordTypes[scopedKey(tenantID, key)]
	if !ok {
		return models.RecordType{}, ErrNotFound
	}
	rt.Fields = append([]models.FieldDefinition(nil), fields...)
	rt.Version++
	rt.UpdatedAt = time.Now().UTC()
	m.recordTypes[scopedKey(tenantID, key)] = rt
	return rt, nil
}

func (m *MemoryStore) UpdateRecordTypeSLAConfig(ctx context.Context, tenantID, key string, sla models.SLAConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.recordTypes[scopedKey(tenantID, key)]
	if !ok {
		return ErrNotFound
	}
	cfg := sla
	rt.SLA = &cfg
	rt.UpdatedAt = time.Now().UTC()
	m.recordTypes[scopedKey(tenantID, key)] = rt
	return nil
}

func (m *MemoryStore) UpdateRecordTypeAssignmentConfig(ctx context.Context, tenantID, key string, cfg models.AssignmentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.recordTypes[scopedKey(tenantID, key)]
	if !ok {
		return ErrNotFound
	}
	c := cfg
	rt.Assignment = &c
	rt.UpdatedAt = time.Now().UTC()
	m.recordTypes[scopedKey(tenantID, key)] = rt
	return nil
}

func (m *MemoryStore) ListWorkflowDefinitions(ctx context.Context, tenantID string) ([]models.WorkflowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.WorkflowDefinition
	for _, wf := range m.workflows {
		if wf.TenantID == tenantID {
			out = append(out, wf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CreateWorkflowDefinition(ctx context.Context, in WorkflowDefinitionInput) (models.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Status == "" {
		in.Status = "active"
	}
	wf := models.WorkflowDefinition{
		ID:        in.ID,
		TenantID:  in.TenantID,
		ProjectID: in.ProjectID,
		Name:      in.Name,
		Status:    in.Status,
		Steps:     append([]models.WorkflowStep(nil), in.Steps...),
		CreatedAt: time.Now().UTC(),
	}
	m.workflows = append(m.workflows, wf)
	return wf, nil
}

func (m *MemoryStore) ListWorkflowTriggers(ctx context.Context, tenantID string) ([]models.WorkflowTrigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.WorkflowTrigger
	for _, tr := range m.triggers {
		if tr.TenantID == tenantID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateWorkflowTrigger(ctx context.Context, in WorkflowTriggerInput) (models.WorkflowTrigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	tr := models.WorkflowTrigger{
		ID:            in.ID,
		TenantID:      in.TenantID,
		WorkflowID:    in.WorkflowID,
		TriggerType:   in.TriggerType,
		RecordTypeKey: in.RecordTypeKey,
		EventName:     in.EventName,
		CreatedAt:     time.Now().UTC(),
	}
	m.triggers = append(m.triggers, tr)
	return tr, nil
}

func (m *MemoryStore) AppendPackageInstall(ctx context.Context, in PackageInstallInput) (models.PackageInstallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := models.PackageInstallRecord{
		ID:              uuid.New().String(),
		TenantID:        in.TenantID,
		ProjectID:       in.ProjectID,
		PackageKey:      in.PackageKey,
		Version:         in.Version,
		Checksum:        in.Checksum,
		Diff:            in.Diff,
		PackageContents: in.PackageContents,
		InstalledBy:     in.InstalledBy,
		CreatedAt:       time.Now().UTC(),
	}
	m.installs = append(m.installs, rec)
	return rec, nil
}

func (m *MemoryStore) ListPackageInstalls(ctx context.Context, tenantID, projectID string) ([]models.PackageInstallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PackageInstallRecord
	for i := len(m.installs) - 1; i >= 0; i-- {
		rec := m.installs[i]
		if rec.TenantID == tenantID && rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendEnvironmentInstall(ctx context.Context, in EnvironmentInstallInput) (models.EnvironmentInstallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.Source == "" {
		in.Source = models.InstallSourceInstall
	}
	rec := models.EnvironmentInstallRecord{
		ID:              uuid.New().String(),
		TenantID:        in.TenantID,
		EnvironmentID:   in.EnvironmentID,
		ProjectID:       in.ProjectID,
		PackageKey:      in.PackageKey,
		Version:         in.Version,
		Checksum:        in.Checksum,
		Diff:            in.Diff,
		PackageContents: in.PackageContents,
		Source:          in.Source,
		InstalledBy:     in.InstalledBy,
		CreatedAt:       time.Now().UTC(),
	}
	m.envInstalls = append(m.envInstalls, rec)
	return rec, nil
}

func (m *MemoryStore) ListEnvironmentInstalls(ctx context.Context, tenantID, environmentID string) ([]models.EnvironmentInstallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.EnvironmentInstallRecord
	for i := len(m.envInstalls) - 1; i >= 0; i-- {
		rec := m.envInstalls[i]
		if rec.TenantID == tenantID && rec.EnvironmentID == environmentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetEnvironment(ctx context.Context, tenantID, id string) (models.Environment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.environments[scopedKey(tenantID, id)]
	if !ok {
		return models.Environment{}, ErrNotFound
	}
	return env, nil
}

// SeedPromotionIntent registers an intent with its timestamps intact for tests.
func (m *MemoryStore) SeedPromotionIntent(intent models.PromotionIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[scopedKey(intent.TenantID, intent.ID)] = intent
}

func (m *MemoryStore) CreatePromotionIntent(ctx context.Context, in PromotionIntentInput) (models.PromotionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Status == "" {
		in.Status = models.IntentStatusDraft
	}
	now := time.Now().UTC()
	intent := models.PromotionIntent{
		ID:                in.ID,
		TenantID:          in.TenantID,
		ProjectID:         in.ProjectID,
		FromEnvironmentID: in.FromEnvironmentID,
		ToEnvironmentID:   in.ToEnvironmentID,
		Status:            in.Status,
		CreatedBy:         in.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.intents[scopedKey(in.TenantID, in.ID)] = intent
	return intent, nil
}

func (m *MemoryStore) GetPromotionIntent(ctx context.Context, tenantID, id string) (models.PromotionIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.intents[scopedKey(tenantID, id)]
	if !ok {
		return models.PromotionIntent{}, ErrNotFound
	}
	return intent, nil
}

func (m *MemoryStore) UpdatePromotionIntent(ctx context.Context, in PromotionIntentUpdate) (models.PromotionIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[scopedKey(in.TenantID, in.ID)]
	if !ok {
		return models.PromotionIntent{}, ErrNotFound
	}
	if in.Status != nil {
		intent.Status = *in.Status
	}
	if in.ApprovedBy != nil {
		intent.ApprovedBy = in.ApprovedBy
	}
	if in.ApprovedAt != nil {
		intent.ApprovedAt = in.ApprovedAt
	}
	if in.Diff != nil {
		d := *in.Diff
		intent.Diff = &d
	}
	if in.Result != nil {
		r := *in.Result
		intent.Result = &r
	}
	if in.NotificationStatus != nil {
		intent.NotificationStatus = in.NotificationStatus
	}
	if in.NotificationLastError != nil {
		if *in.NotificationLastError == "" {
			intent.NotificationLastError = nil
		} else {
			intent.NotificationLastError = in.NotificationLastError
		}
	}
	if in.NotificationLastAttemptAt != nil {
		intent.NotificationLastAttemptAt = in.NotificationLastAttemptAt
	}
	intent.UpdatedAt = time.Now().UTC()
	m.intents[scopedKey(in.TenantID, in.ID)] = intent
	return intent, nil
}

func (m *MemoryStore) ListPromotionIntents(ctx context.Context, tenantID, projectID string) ([]models.PromotionIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PromotionIntent
	for _, intent := range m.intents {
		if intent.TenantID == tenantID && intent.ProjectID == projectID {
			out = append(out, intent)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
