package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Schredly/packgraph/internal/models"
)

// ErrNotFound is returned when a requested record cannot be located.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract consumed by the install and promotion
// engines. Ledger lists are returned newest-first.
type Store interface {
	ListRecordTypes(ctx context.Context, tenantID string) ([]models.RecordType, error)
	GetRecordTypeByKey(ctx context.Context, tenantID, key string) (models.RecordType, error)
	CreateRecordType(ctx context.Context, in RecordTypeInput) (models.RecordType, error)
	UpdateRecordTypeFields(ctx context.Context, tenantID, key string, fields []models.FieldDefinition) (models.RecordType, error)
	UpdateRecordTypeSLAConfig(ctx context.Context, tenantID, key string, sla models.SLAConfig) error
	UpdateRecordTypeAssignmentConfig(ctx context.Context, tenantID, key string, cfg models.AssignmentConfig) error

	ListWorkflowDefinitions(ctx context.Context, tenantID string) ([]models.WorkflowDefinition, error)
	CreateWorkflowDefinition(ctx context.Context, in WorkflowDefinitionInput) (models.WorkflowDefinition, error)
	ListWorkflowTriggers(ctx context.Context, tenantID string) ([]models.WorkflowTrigger, error)
	CreateWorkflowTrigger(ctx context.Context, in WorkflowTriggerInput) (models.WorkflowTrigger, error)

	AppendPackageInstall(ctx context.Context, in PackageInstallInput) (models.PackageInstallRecord, error)
	ListPackageInstalls(ctx context.Context, tenantID, projectID string) ([]models.PackageInstallRecord, error)
	AppendEnvironmentInstall(ctx context.Context, in EnvironmentInstallInput) (models.EnvironmentInstallRecord, error)
	ListEnvironmentInstalls(ctx context.Context, tenantID, environmentID string) ([]models.EnvironmentInstallRecord, error)

	GetEnvironment(ctx context.Context, tenantID, id string) (models.Environment, error)

	CreatePromotionIntent(ctx context.Context, in PromotionIntentInput) (models.PromotionIntent, error)
	GetPromotionIntent(ctx context.Context, tenantID, id string) (models.PromotionIntent, error)
	UpdatePromotionIntent(ctx context.Context, in PromotionIntentUpdate) (models.PromotionIntent, error)
	ListPromotionIntents(ctx context.Context, tenantID, projectID string) ([]models.PromotionIntent, error)

	Ping(ctx context.Context) error
}

type RecordTypeInput struct {
	ID        string
	TenantID  string
	ProjectID string
	Key       string
	BaseType  *string
	Status    string
	Fields    []models.FieldDefinition
}

type WorkflowDefinitionInput struct {
	ID        string
	TenantID  string
	ProjectID string
	Name      string
	Status    string
	Steps     []models.WorkflowStep
}

type WorkflowTriggerInput struct {
	ID            string
	TenantID      string
	WorkflowID    string
	TriggerType   string
	RecordTypeKey string
	EventName     string
}

type PackageInstallInput struct {
	TenantID        string
	ProjectID       string
	PackageKey      string
	Version         string
	Checksum        string
	Diff            models.GraphDiffResult
	PackageContents models.GraphPackage
	InstalledBy     string
}

type EnvironmentInstallInput struct {
	TenantID        string
	EnvironmentID   string
	ProjectID       string
	PackageKey      string
	Version         string
	Checksum        string
	Diff            models.GraphDiffResult
	PackageContents models.GraphPackage
	Source          string
	InstalledBy     string
}

type PromotionIntentInput struct {
	ID                string
	TenantID          string
	ProjectID         string
	FromEnvironmentID string
	ToEnvironmentID   string
	Status            string
	CreatedBy         string
}

// PromotionIntentUpdate carries the mutable intent fields; nil pointers leave
// the stored value untouched. A NotificationLastError pointing at an empty
// string clears the stored error.
type PromotionIntentUpdate struct {
	ID                        string
	TenantID                  string
	Status                    *string
	ApprovedBy                *string
	ApprovedAt                *time.Time
	Diff                      *models.EnvironmentDiff
	Result                    *models.PromotionResult
	NotificationStatus        *string
	NotificationLastError     *string
	NotificationLastAttemptAt *time.Time
}

// PGStore implements Store on Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the tables this store needs if they do not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS record_types (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  project_id text NOT NULL,
  key text NOT NULL,
  base_type text,
  status text NOT NULL DEFAULT 'active',
  version integer NOT NULL DEFAULT 1,
  fields jsonb NOT NULL DEFAULT '[]',
  sla jsonb,
  assignment jsonb,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now(),
  UNIQUE (tenant_id, key)
);
CREATE TABLE IF NOT EXISTS workflow_definitions (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  project_id text NOT NULL,
  name text NOT NULL,
  status text NOT NULL DEFAULT 'active',
  steps jsonb NOT NULL DEFAULT '[]',
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS workflow_triggers (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  workflow_id uuid NOT NULL,
  trigger_type text NOT NULL,
  record_type_key text NOT NULL,
  event_name text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS package_installs (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  project_id text NOT NULL,
  package_key text NOT NULL,
  version text NOT NULL,
  checksum text NOT NULL,
  diff jsonb,
  package_contents jsonb NOT NULL,
  installed_by text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_package_installs_ledger
  ON package_installs (tenant_id, project_id, created_at DESC);
CREATE TABLE IF NOT EXISTS environment_installs (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  environment_id text NOT NULL,
  project_id text NOT NULL,
  package_key text NOT NULL,
  version text NOT NULL,
  checksum text NOT NULL,
  diff jsonb,
  package_contents jsonb NOT NULL,
  source text NOT NULL DEFAULT 'install',
  installed_by text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_environment_installs_ledger
  ON environment_installs (tenant_id, environment_id, created_at DESC);
CREATE TABLE IF NOT EXISTS environments (
  id text NOT NULL,
  tenant_id text NOT NULL,
  name text NOT NULL,
  requires_promotion_approval boolean NOT NULL DEFAULT false,
  promotion_webhook_url text,
  created_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (tenant_id, id)
);
CREATE TABLE IF NOT EXISTS promotion_intents (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  project_id text NOT NULL,
  from_environment_id text NOT NULL,
  to_environment_id text NOT NULL,
  status text NOT NULL DEFAULT 'draft',
  created_by text NOT NULL DEFAULT '',
  approved_by text,
  approved_at timestamptz,
  diff jsonb,
  result jsonb,
  notification_status text,
  notification_last_error text,
  notification_last_attempt_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return b, nil
}

func (s *PGStore) ListRecordTypes(ctx context.Context, tenantID string) ([]models.RecordType, error) {
	const query = `
		SELECT id, tenant_id, project_id, key, base_type, status, version, fields, sla, assignment, created_at, updated_at
		FROM record_types
		WHERE tenant_id = $1
		ORDER BY key ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query record types: %w", err)
	}
	defer rows.Close()

	var out []models.RecordType
	for rows.Next() {
		rt, err := scanRecordType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record types rows err: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecordType(row rowScanner) (models.RecordType, error) {
	var (
		rt              models.RecordType
		baseType        sql.NullString
		fields          []byte
		sla, assignment []byte
	)
	if err := row.Scan(
		&rt.ID,
		&rt.TenantID,
		&rt.ProjectID,
		&rt.Key,
		&baseType,
		&rt.Status,
		&rt.Version,
		&fields,
		&sla,
		&assignment,
		&rt.CreatedAt,
		&rt.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RecordType{}, ErrNotFound
		}
		return models.RecordType{}, fmt.Errorf("scan record type: %w", err)
	}
	if baseType.Valid {
		rt.BaseType = &baseType.String
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &rt.Fields); err != nil {
			return models.RecordType{}, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	if len(sla) > 0 {
		var cfg models.SLAConfig
		if err := json.Unmarshal(sla, &cfg); err != nil {
			return models.RecordType{}, fmt.Errorf("unmarshal sla config: %w", err)
		}
		rt.SLA = &cfg
	}
	if len(assignment) > 0 {
		var cfg models.AssignmentConfig
		if err := json.Unmarshal(assignment, &cfg); err != nil {
			return models.RecordType{}, fmt.Errorf("unmarshal assignment config: %w", err)
		}
		rt.Assignment = &cfg
	}
	return rt, nil
}

func (s *PGStore) GetRecordTypeByKey(ctx context.Context, tenantID, key string) (models.RecordType, error) {
	const query = `
		SELECT id, tenant_id, project_id, key, base_type, status, version, fields, sla, assignment, created_at, updated_at
		FROM record_types
		WHERE tenant_id = $1 AND key = $2
	`
	return scanRecordType(s.db.QueryRowContext(ctx, query, tenantID, key))
}

func (s *PGStore) CreateRecordType(ctx context.Context, in RecordTypeInput) (models.RecordType, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Status == "" {
		in.Status = "active"
	}
	fields, err := marshalJSON(in.Fields)
	if err != nil {
		return models.RecordType{}, err
	}
	const query = `
		INSERT INTO record_types (id, tenant_id, project_id, key, base_type, status, version, fields)
		VALUES ($1,$2,$3,$4,$5,$6,1,$7)
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := s.db.QueryRowContext(ctx, query, in.ID, in.TenantID, in.ProjectID, in.Key, in.BaseType, in.Status, fields).
		Scan(&createdAt, &updatedAt); err != nil {
		return models.RecordType{}, fmt.Errorf("insert record type: %w", err)
	}
	return models.RecordType{
		ID:        in.ID,
		TenantID:  in.TenantID,
		ProjectID: in.ProjectID,
		Key:       in.Key,
		BaseType:  in.BaseType,
		Status:    in.Status,
		Version:   1,
		Fields:    in.Fields,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *PGStore) UpdateRecordTypeFields(ctx context.Context, tenantID, key string, fields []models.FieldDefinition) (models.RecordType, error) {
	b, err := marshalJSON(fields)
	if err != nil {
		return models.RecordType{}, err
	}
	const query = `
		UPDATE record_types
		SET fields = $3, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND key = $2
		RETURNING id, tenant_id, project_id, key, base_type, status, version, fields, sla, assignment, created_at, updated_at
	`
	return scanRecordType(s.db.QueryRowContext(ctx, query, tenantID, key, b))
}

func (s *PGStore) UpdateRecordTypeSLAConfig(ctx context.Context, tenantID, key string, sla models.SLAConfig) error {
	b, err := marshalJSON(sla)
	if err != nil {
		return err
	}
	const query = `
		UPDATE record_types SET sla = $3, updated_at = now()
		WHERE tenant_id = $1 AND key = $2
	`
	res, err := s.db.ExecContext(ctx, query, tenantID, key, b)
	if err != nil {
		return fmt.Errorf("update sla config: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpdateRecordTypeAssignmentConfig(ctx context.Context, tenantID, key string, cfg models.AssignmentConfig) error {
	b, err := marshalJSON(cfg)
	if err != nil {
		return err
	}
	const query = `
		UPDATE record_types SET assignment = $3, updated_at = now()
		WHERE tenant_id = $1 AND key = $2
	`
	res, err := s.db.ExecContext(ctx, query, tenantID, key, b)
	if err != nil {
		return fmt.Errorf("update assignment config: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListWorkflowDefinitions(ctx context.Context, tenantID string) ([]models.WorkflowDefinition, error) {
	const query = `
		SELECT id, tenant_id, project_id, name, status, steps, created_at
		FROM workflow_definitions
		WHERE tenant_id = $1
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query workflow definitions: %w", err)
	}
	defer rows.Close()

	var out []models.WorkflowDefinition
	for rows.Next() {
		var (
			wf    models.WorkflowDefinition
			steps []byte
		)
		if err := rows.Scan(&wf.ID, &wf.TenantID, &wf.ProjectID, &wf.Name, &wf.Status, &steps, &wf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow definition: %w", err)
		}
		if len(steps) > 0 {
			if err := json.Unmarshal(steps, &wf.Steps); err != nil {
				return nil, fmt.Errorf("unmarshal workflow steps: %w", err)
			}
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow definitions rows err: %w", err)
	}
	return out, nil
}

func (s *PGStore) CreateWorkflowDefinition(ctx context.Context, in WorkflowDefinitionInput) (models.WorkflowDefinition, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Status == "" {
		in.Status = "active"
	}
	steps, err := marshalJSON(in.Steps)
	if err != nil {
		return models.WorkflowDefinition{}, err
	}
	const query = `
		INSERT INTO workflow_definitions (id, tenant_id, project_id, name, status, steps)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx, query, in.ID, in.TenantID, in.ProjectID, in.Name, in.Status, steps).Scan(&createdAt); err != nil {
		return models.WorkflowDefinition{}, fmt.Errorf("insert workflow definition: %w", err)
	}
	return models.WorkflowDefinition{
		ID:        in.ID,
		TenantID:  in.TenantID,
		ProjectID: in.ProjectID,
		Name:      in.Name,
		Status:    in.Status,
		Steps:     in.Steps,
		CreatedAt: createdAt,
	}, nil
}

func (s *PGStore) ListWorkflowTriggers(ctx context.Context, tenantID string) ([]models.WorkflowTrigger, error) {
	const query = `
		SELECT id, tenant_id, workflow_id, trigger_type, record_type_key, event_name, created_at
		FROM workflow_triggers
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query workflow triggers: %w", err)
	}
	defer rows.Close()

	var out []models.WorkflowTrigger
	for rows.Next() {
		var tr models.WorkflowTrigger
		if err := rows.Scan(&tr.ID, &tr.TenantID, &tr.WorkflowID, &tr.TriggerType, &tr.RecordTypeKey, &tr.EventName, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow trigger: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow triggers rows err: %w", err)
	}
	return out, nil
}

func (s *PGStore) CreateWorkflowTrigger(ctx context.Context, in WorkflowTriggerInput) (models.WorkflowTrigger, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO workflow_triggers (id, tenant_id, workflow_id, trigger_type, record_type_key, event_name)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx, query, in.ID, in.TenantID, in.WorkflowID, in.TriggerType, in.RecordTypeKey, in.EventName).Scan(&createdAt); err != nil {
		return models.WorkflowTrigger{}, fmt.Errorf("insert workflow trigger: %w", err)
	}
	return models.WorkflowTrigger{
		ID:            in.ID,
		TenantID:      in.TenantID,
		WorkflowID:    in.WorkflowID,
		TriggerType:   in.TriggerType,
		RecordTypeKey: in.RecordTypeKey,
		EventName:     in.EventName,
		CreatedAt:     createdAt,
	}, nil
}

func (s *PGStore) AppendPackageInstall(ctx context.Context, in PackageInstallInput) (models.PackageInstallRecord, error) {
	id := uuid.New().String()
	diff, err := marshalJSON(in.Diff)
	if err != nil {
		return models.PackageInstallRecord{}, err
	}
	contents, err := marshalJSON(in.PackageContents)
	if err != nil {
		return models.PackageInstallRecord{}, err
	}
	const query = `
		INSERT INTO package_installs (id, tenant_id, project_id, package_key, version, checksum, diff, package_contents, installed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx, query, id, in.TenantID, in.ProjectID, in.PackageKey, in.Version, in.Checksum, diff, contents, in.InstalledBy).Scan(&createdAt); err != nil {
		return models.PackageInstallRecord{}, fmt.Errorf("insert package install: %w", err)
	}
	return models.PackageInstallRecord{
		ID:              id,
		TenantID:        in.TenantID,
		ProjectID:       in.ProjectID,
		PackageKey:      in.PackageKey,
		Version:         in.Version,
		Checksum:        in.Checksum,
		Diff:            in.Diff,
		PackageContents: in.PackageContents,
		InstalledBy:     in.InstalledBy,
		CreatedAt:       createdAt,
	}, nil
}

func (s *PGStore) ListPackageInstalls(ctx context.Context, tenantID, projectID string) ([]models.PackageInstallRecord, error) {
	const query = `
		SELECT id, tenant_id, project_id, package_key, version, checksum, diff, package_contents, installed_by, created_at
		FROM package_installs
		WHERE tenant_id = $1 AND project_id = $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("query package installs: %w", err)
	}
	defer rows.Close()

	var out []models.PackageInstallRecord
	for rows.Next() {
		var (
			rec            models.PackageInstallRecord
			diff, contents []byte
		)
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.ProjectID, &rec.PackageKey, &rec.Version, &rec.Checksum, &diff, &contents, &rec.InstalledBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan package install: %w", err)
		}
		if len(diff) > 0 {
			if err := json.Unmarshal(diff, &rec.Diff); err != nil {
				return nil, fmt.Errorf("unmarshal install diff: %w", err)
			}
		}
		if len(contents) > 0 {
			if err := json.Unmarshal(contents, &rec.PackageContents); err != nil {
				return nil, fmt.Errorf("unmarshal package contents: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("package installs rows err: %w", err)
	}
	return out, nil
}

func (s *PGStore) AppendEnvironmentInstall(ctx context.Context, in EnvironmentInstallInput) (models.EnvironmentInstallRecord, error) {
	id := uuid.New().String()
	diff, err := marshalJSON(in.Diff)
	if err != nil {
		return models.EnvironmentInstallRecord{}, err
	}
	contents, err := marshalJSON(in.PackageContents)
	if err != nil {
		return models.EnvironmentInstallRecord{}, err
	}
	if in.Source == "" {
		in.Source = models.InstallSourceInstall
	}
	const query = `
		INSERT INTO environment_installs (id, tenant_id, environment_id, project_id, package_key, version, checksum, diff, package_contents, source, installed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx, query, id, in.TenantID, in.EnvironmentID, in.ProjectID, in.PackageKey, in.Version, in.Checksum, diff, contents, in.Source, in.InstalledBy).Scan(&createdAt); err != nil {
		return models.EnvironmentInstallRecord{}, fmt.Errorf("insert environment install: %w", err)
	}
	return models.EnvironmentInstallRecord{
		ID:              id,
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
		CreatedAt:       createdAt,
	}, nil
}

func (s *PGStore) ListEnvironmentInstalls(ctx context.Context, tenantID, environmentID string) ([]models.EnvironmentInstallRecord, error) {
	const query = `
		SELECT id, tenant_id, environment_id, project_id, package_key, version, checksum, diff, package_contents, source, installed_by, created_at
		FROM environment_installs
		WHERE tenant_id = $1 AND environment_id = $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, environmentID)
	if err != nil {
		return nil, fmt.Errorf("query environment installs: %w", err)
	}
	defer rows.Close()

	var out []models.EnvironmentInstallRecord
	for rows.Next() {
		var (
			rec            models.EnvironmentInstallRecord
			diff, contents []byte
		)
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.EnvironmentID, &rec.ProjectID, &rec.PackageKey, &rec.Version, &rec.Checksum, &diff, &contents, &rec.Source, &rec.InstalledBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan environment install: %w", err)
		}
		if len(diff) > 0 {
			if err := json.Unmarshal(diff, &rec.Diff); err != nil {
				return nil, fmt.Errorf("unmarshal install diff: %w", err)
			}
		}
		if len(contents) > 0 {
			if err := json.Unmarshal(contents, &rec.PackageContents); err != nil {
				return nil, fmt.Errorf("unmarshal package contents: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("environment installs rows err: %w", err)
	}
	return out, nil
}

func (s *PGStore) GetEnvironment(ctx context.Context, tenantID, id string) (models.Environment, error) {
	const query = `
		SELECT id, tenant_id, name, requires_promotion_approval, promotion_webhook_url, created_at
		FROM environments
		WHERE tenant_id = $1 AND id = $2
	`
	var (
		env        models.Environment
		webhookURL sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(
		&env.ID,
		&env.TenantID,
		&env.Name,
		&env.RequiresPromotionApproval,
		&webhookURL,
		&env.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Environment{}, ErrNotFound
		}
		return models.Environment{}, fmt.Errorf("select environment: %w", err)
	}
	if webhookURL.Valid {
		env.PromotionWebhookURL = &webhookURL.String
	}
	return env, nil
}

func (s *PGStore) CreatePromotionIntent(ctx context.Context, in PromotionIntentInput) (models.PromotionIntent, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Status == "" {
		in.Status = models.IntentStatusDraft
	}
	const query = `
		INSERT INTO promotion_intents (id, tenant_id, project_id, from_environment_id, to_environment_id, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := s.db.QueryRowContext(ctx, query, in.ID, in.TenantID, in.ProjectID, in.FromEnvironmentID, in.ToEnvironmentID, in.Status, in.CreatedBy).
		Scan(&createdAt, &updatedAt); err != nil {
		return models.PromotionIntent{}, fmt.Errorf("insert promotion intent: %w", err)
	}
	return models.PromotionIntent{
		ID:                in.ID,
		TenantID:          in.TenantID,
		ProjectID:         in.ProjectID,
		FromEnvironmentID: in.FromEnvironmentID,
		ToEnvironmentID:   in.ToEnvironmentID,
		Status:            in.Status,
		CreatedBy:         in.CreatedBy,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

func scanPromotionIntent(row rowScanner) (models.PromotionIntent, error) {
	var (
		intent                 models.PromotionIntent
		approvedBy             sql.NullString
		approvedAt             sql.NullTime
		diff, result           []byte
		notifStatus, notifErr  sql.NullString
		notifAt                sql.NullTime
	)
	if err := row.Scan(
		&intent.ID,
		&intent.TenantID,
		&intent.ProjectID,
		&intent.FromEnvironmentID,
		&intent.ToEnvironmentID,
		&intent.Status,
		&intent.CreatedBy,
		&approvedBy,
		&approvedAt,
		&diff,
		&result,
		&notifStatus,
		&notifErr,
		&notifAt,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PromotionIntent{}, ErrNotFound
		}
		return models.PromotionIntent{}, fmt.Errorf("scan promotion intent: %w", err)
	}
	if approvedBy.Valid {
		intent.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		intent.ApprovedAt = &t
	}
	if len(diff) > 0 {
		var d models.EnvironmentDiff
		if err := json.Unmarshal(diff, &d); err != nil {
			return models.PromotionIntent{}, fmt.Errorf("unmarshal intent diff: %w", err)
		}
		intent.Diff = &d
	}
	if len(result) > 0 {
		var r models.PromotionResult
		if err := json.Unmarshal(result, &r); err != nil {
			return models.PromotionIntent{}, fmt.Errorf("unmarshal intent result: %w", err)
		}
		intent.Result = &r
	}
	if notifStatus.Valid {
		intent.NotificationStatus = &notifStatus.String
	}
	if notifErr.Valid {
		intent.NotificationLastError = &notifErr.String
	}
	if notifAt.Valid {
		t := notifAt.Time
		intent.NotificationLastAttemptAt = &t
	}
	return intent, nil
}

const intentColumns = `id, tenant_id, project_id, from_environment_id, to_environment_id, status, created_by,
	approved_by, approved_at, diff, result, notification_status, notification_last_error, notification_last_attempt_at,
	created_at, updated_at`

func (s *PGStore) GetPromotionIntent(ctx context.Context, tenantID, id string) (models.PromotionIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM promotion_intents WHERE tenant_id = $1 AND id = $2`
	return scanPromotionIntent(s.db.QueryRowContext(ctx, query, tenantID, id))
}

func (s *PGStore) UpdatePromotionIntent(ctx context.Context, in PromotionIntentUpdate) (models.PromotionIntent, error) {
	var diff, result []byte
	var err error
	if in.Diff != nil {
		if diff, err = marshalJSON(in.Diff); err != nil {
			return models.PromotionIntent{}, err
		}
	}
	if in.Result != nil {
		if result, err = marshalJSON(in.Result); err != nil {
			return models.PromotionIntent{}, err
		}
	}
	query := `
		UPDATE promotion_intents SET
			status = COALESCE($3, status),
			approved_by = COALESCE($4, approved_by),
			approved_at = COALESCE($5, approved_at),
			diff = COALESCE($6, diff),
			result = COALESCE($7, result),
			notification_status = COALESCE($8, notification_status),
			notification_last_error = CASE WHEN $9::text IS NULL THEN notification_last_error ELSE NULLIF($9, '') END,
			notification_last_attempt_at = COALESCE($10, notification_last_attempt_at),
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + intentColumns
	return scanPromotionIntent(s.db.QueryRowContext(ctx, query,
		in.TenantID, in.ID, in.Status, in.ApprovedBy, in.ApprovedAt,
		nullableBytes(diff), nullableBytes(result),
		in.NotificationStatus, in.NotificationLastError, in.NotificationLastAttemptAt,
	))
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (s *PGStore) ListPromotionIntents(ctx context.Context, tenantID, projectID string) ([]models.PromotionIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM promotion_intents WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("query promotion intents: %w", err)
	}
	defer rows.Close()

	var out []models.PromotionIntent
	for rows.Next() {
		intent, err := scanPromotionIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("promotion intents rows err: %w", err)
	}
	return out, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
