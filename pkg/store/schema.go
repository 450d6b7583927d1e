package store

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id                TEXT PRIMARY KEY,
	company_name      TEXT NOT NULL,
	phone_number      TEXT NOT NULL UNIQUE,
	industry_vertical TEXT NOT NULL DEFAULT '',
	crm_platform      TEXT NOT NULL DEFAULT 'stub',
	crm_credentials   TEXT NOT NULL DEFAULT '{}',
	timezone          TEXT NOT NULL DEFAULT 'America/New_York',
	active            INTEGER NOT NULL DEFAULT 1,
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS call_configs (
	client_id            TEXT PRIMARY KEY REFERENCES clients(id),
	business_hours       TEXT NOT NULL DEFAULT '{}',
	after_hours_behavior TEXT NOT NULL DEFAULT 'voicemail',
	transfer_number      TEXT NOT NULL DEFAULT '',
	emergency_keywords   TEXT NOT NULL DEFAULT '[]',
	tone_override        TEXT NOT NULL DEFAULT '',
	faq_content          TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS services (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id        TEXT NOT NULL REFERENCES clients(id),
	service_name     TEXT NOT NULL,
	base_price       REAL,
	duration_minutes INTEGER NOT NULL DEFAULT 60,
	requires_deposit INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS call_logs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id        TEXT NOT NULL,
	call_id          TEXT NOT NULL,
	caller_number    TEXT,
	outcome          TEXT,
	summary          TEXT,
	duration_seconds INTEGER,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_call_logs_client ON call_logs(client_id, created_at);
`
