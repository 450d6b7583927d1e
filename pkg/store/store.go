package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/tenant"

	_ "modernc.org/sqlite"
)

const (
	defaultCRMPlatform = "stub"
	defaultTimezone    = "America/New_York"
	defaultBehavior    = "voicemail"
)

// Store keeps tenants, their call configuration, service catalogs and call
// logs in sqlite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to dsn and applies the schema. ":memory:" is accepted.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const selectClient = `
SELECT c.id, c.company_name, c.phone_number, c.industry_vertical, c.crm_platform,
       c.crm_credentials, c.timezone, c.active,
       COALESCE(cc.business_hours, '{}'), COALESCE(cc.after_hours_behavior, ''),
       COALESCE(cc.transfer_number, ''), COALESCE(cc.emergency_keywords, '[]'),
       COALESCE(cc.tone_override, ''), COALESCE(cc.faq_content, '{}')
FROM clients c
LEFT JOIN call_configs cc ON cc.client_id = c.id
`

// FindByPhone returns the active tenant owning normalized.
func (s *Store) FindByPhone(ctx context.Context, normalized string) (*tenant.Config, error) {
	return s.findOne(ctx, selectClient+`WHERE c.phone_number = ? AND c.active = 1`, normalized)
}

func (s *Store) FindByID(ctx context.Context, id string) (*tenant.Config, error) {
	return s.findOne(ctx, selectClient+`WHERE c.id = ?`, id)
}

func (s *Store) findOne(ctx context.Context, query string, arg string) (*tenant.Config, error) {
	var (
		cfg                         tenant.Config
		creds, hours, keywords, faq string
		active                      int
		behavior, transfer, tone    string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&cfg.ID, &cfg.CompanyName, &cfg.PhoneNumber, &cfg.IndustryVertical, &cfg.CRMPlatform,
		&creds, &cfg.Timezone, &active,
		&hours, &behavior, &transfer, &keywords, &tone, &faq,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errorsx.Wrap(tenant.ErrNotFound, errorsx.ReasonTenantNotFound)
	}
	if err != nil {
		return nil, errorsx.Wrapf(errorsx.ReasonStoreQuery, "query client: %w", err)
	}
	cfg.Active = active == 1
	cfg.CallConfig = tenant.CallConfig{
		AfterHoursBehavior: behavior,
		TransferNumber:     transfer,
		ToneOverride:       tone,
	}
	if err := decodeColumns(
		column{"crm_credentials", creds, &cfg.CRMCredentials},
		column{"business_hours", hours, &cfg.CallConfig.BusinessHours},
		column{"emergency_keywords", keywords, &cfg.CallConfig.EmergencyKeywords},
		column{"faq_content", faq, &cfg.CallConfig.FAQContent},
	); err != nil {
		return nil, err
	}
	services, err := s.listServices(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	cfg.Services = services
	return &cfg, nil
}

func (s *Store) listServices(ctx context.Context, clientID string) ([]tenant.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service_name, COALESCE(base_price, 0), duration_minutes, requires_deposit
		 FROM services WHERE client_id = ? ORDER BY id`, clientID)
	if err != nil {
		return nil, errorsx.Wrapf(errorsx.ReasonStoreQuery, "query services: %w", err)
	}
	defer rows.Close()
	var out []tenant.Service
	for rows.Next() {
		var svc tenant.Service
		var deposit int
		if err := rows.Scan(&svc.Name, &svc.BasePrice, &svc.DurationMinutes, &deposit); err != nil {
			return nil, err
		}
		svc.RequiresDeposit = deposit == 1
		out = append(out, svc)
	}
	return out, rows.Err()
}

// CreateClient inserts a tenant with its call configuration and services and
// returns the generated id. The phone number is normalized first.
func (s *Store) CreateClient(ctx context.Context, cfg tenant.Config) (string, error) {
	if strings.TrimSpace(cfg.CompanyName) == "" {
		return "", errors.New("company_name is required")
	}
	phone := tenant.NormalizePhone(cfg.PhoneNumber)
	if phone == "" {
		return "", errors.New("phone_number is required")
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	if cfg.CRMPlatform == "" {
		cfg.CRMPlatform = defaultCRMPlatform
	}
	if cfg.Timezone == "" {
		cfg.Timezone = defaultTimezone
	}
	creds, err := encode(cfg.CRMCredentials, "{}")
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO clients (id, company_name, phone_number, industry_vertical, crm_platform, crm_credentials, timezone, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		id, cfg.CompanyName, phone, cfg.IndustryVertical, cfg.CRMPlatform, creds, cfg.Timezone, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", errorsx.Wrapf(errorsx.ReasonStoreQuery, "insert client: %w", err)
	}
	if err := upsertCallConfig(ctx, tx, id, cfg.CallConfig); err != nil {
		return "", err
	}
	if err := insertServices(ctx, tx, id, cfg.Services); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// UpsertCallConfig replaces a tenant's call configuration.
func (s *Store) UpsertCallConfig(ctx context.Context, clientID string, cc tenant.CallConfig) error {
	return upsertCallConfig(ctx, s.db, clientID, cc)
}

func (s *Store) InsertServices(ctx context.Context, clientID string, services []tenant.Service) error {
	return insertServices(ctx, s.db, clientID, services)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCallConfig(ctx context.Context, db execer, clientID string, cc tenant.CallConfig) error {
	hours, err := encode(cc.BusinessHours, "{}")
	if err != nil {
		return err
	}
	keywords, err := encode(cc.EmergencyKeywords, "[]")
	if err != nil {
		return err
	}
	faq, err := encode(cc.FAQContent, "{}")
	if err != nil {
		return err
	}
	behavior := cc.AfterHoursBehavior
	if behavior == "" {
		behavior = defaultBehavior
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO call_configs (client_id, business_hours, after_hours_behavior, transfer_number, emergency_keywords, tone_override, faq_content)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (client_id) DO UPDATE SET
		   business_hours       = excluded.business_hours,
		   after_hours_behavior = excluded.after_hours_behavior,
		   transfer_number      = excluded.transfer_number,
		   emergency_keywords   = excluded.emergency_keywords,
		   tone_override        = excluded.tone_override,
		   faq_content          = excluded.faq_content`,
		clientID, hours, behavior, cc.TransferNumber, keywords, cc.ToneOverride, faq)
	if err != nil {
		return errorsx.Wrapf(errorsx.ReasonStoreQuery, "upsert call config: %w", err)
	}
	return nil
}

func insertServices(ctx context.Context, db execer, clientID string, services []tenant.Service) error {
	for _, svc := range services {
		duration := svc.DurationMinutes
		if duration <= 0 {
			duration = 60
		}
		deposit := 0
		if svc.RequiresDeposit {
			deposit = 1
		}
		var price any
		if svc.BasePrice > 0 {
			price = svc.BasePrice
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO services (client_id, service_name, base_price, duration_minutes, requires_deposit) VALUES (?, ?, ?, ?, ?)`,
			clientID, svc.Name, price, duration, deposit); err != nil {
			return errorsx.Wrapf(errorsx.ReasonStoreQuery, "insert service %q: %w", svc.Name, err)
		}
	}
	return nil
}

// InsertCallLog appends a call log row.
func (s *Store) InsertCallLog(ctx context.Context, e calllog.Entry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var duration any
	if e.DurationSeconds != nil {
		duration = *e.DurationSeconds
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_logs (client_id, call_id, caller_number, outcome, summary, duration_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ClientID, e.CallID, nullString(e.CallerNumber), nullString(e.Outcome), nullString(e.Summary), duration,
		created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errorsx.Wrapf(errorsx.ReasonStoreQuery, "insert call log: %w", err)
	}
	return nil
}

// ListCallLogs returns a tenant's call logs, newest first.
func (s *Store) ListCallLogs(ctx context.Context, clientID string, limit, offset int) ([]calllog.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, call_id, COALESCE(caller_number, ''), COALESCE(outcome, ''), COALESCE(summary, ''), duration_seconds, created_at
		 FROM call_logs WHERE client_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`, clientID, limit, offset)
	if err != nil {
		return nil, errorsx.Wrapf(errorsx.ReasonStoreQuery, "query call logs: %w", err)
	}
	defer rows.Close()
	var out []calllog.Entry
	for rows.Next() {
		var (
			e        calllog.Entry
			duration sql.NullInt64
			created  string
		)
		if err := rows.Scan(&e.ID, &e.ClientID, &e.CallID, &e.CallerNumber, &e.Outcome, &e.Summary, &duration, &created); err != nil {
			return nil, err
		}
		if duration.Valid {
			d := int(duration.Int64)
			e.DurationSeconds = &d
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

type column struct {
	name string
	raw  string
	dst  any
}

func decodeColumns(cols ...column) error {
	for _, c := range cols {
		if strings.TrimSpace(c.raw) == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return fmt.Errorf("decode %s: %w", c.name, err)
		}
	}
	return nil
}

func encode(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

var (
	_ tenant.Lookup    = (*Store)(nil)
	_ calllog.Recorder = (*Store)(nil)
)
