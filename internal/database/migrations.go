package database

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS teams (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    responsibilities TEXT NOT NULL DEFAULT '',
    telegram_topic_id INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS team_mailbox_config (
    team_id INTEGER PRIMARY KEY REFERENCES teams(id) ON DELETE CASCADE,
    host TEXT NOT NULL DEFAULT '',
    port INTEGER NOT NULL DEFAULT 993,
    use_tls BOOLEAN NOT NULL DEFAULT true,
    username TEXT NOT NULL,
    password_encrypted TEXT NOT NULL,
    folder TEXT NOT NULL DEFAULT 'INBOX',
    fetch_mode TEXT NOT NULL DEFAULT 'unseen',
    last_processed_sequence INTEGER NOT NULL DEFAULT 0,
    auto_processing_enabled BOOLEAN NOT NULL DEFAULT true,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS specialists (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    team_id INTEGER NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    email TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT true,
    UNIQUE(team_id, email)
);

CREATE TABLE IF NOT EXISTS specialist_categories (
    specialist_id INTEGER NOT NULL REFERENCES specialists(id) ON DELETE CASCADE,
    category TEXT NOT NULL,
    PRIMARY KEY (specialist_id, category)
);

CREATE TABLE IF NOT EXISTS known_partners (
    team_id INTEGER NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    PRIMARY KEY (team_id, name)
);

CREATE TABLE IF NOT EXISTS partners (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    domain TEXT NOT NULL DEFAULT '',
    codes TEXT NOT NULL DEFAULT '',
    auto_created BOOLEAN NOT NULL DEFAULT false,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    team_id INTEGER NOT NULL,
    message_sequence_id INTEGER NOT NULL,
    message_id TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    recipients TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    attachments TEXT NOT NULL DEFAULT '',
    received_at DATETIME NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    retry_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE(team_id, message_sequence_id)
);

CREATE TABLE IF NOT EXISTS extraction_cache (
    content_hash TEXT NOT NULL,
    team_id INTEGER NOT NULL,
    result_json TEXT NOT NULL,
    confidence REAL NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (content_hash, team_id)
);

CREATE TABLE IF NOT EXISTS key_usage_state (
    tier TEXT PRIMARY KEY,
    daily_count INTEGER NOT NULL,
    daily_limit INTEGER NOT NULL,
    minute_count INTEGER NOT NULL,
    minute_limit INTEGER NOT NULL,
    backoff_step INTEGER NOT NULL DEFAULT 0,
    last_minute_reset DATETIME NOT NULL,
    last_day_reset DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS clarification_cases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT NOT NULL,
    priority TEXT NOT NULL,
    effort TEXT NOT NULL,
    status TEXT NOT NULL,
    team_id INTEGER NOT NULL,
    partner_id INTEGER REFERENCES partners(id),
    assigned_specialist_id INTEGER REFERENCES specialists(id),
    source_sequence_id INTEGER NOT NULL,
    original_email_json TEXT NOT NULL,
    auto_created BOOLEAN NOT NULL DEFAULT false,
    is_bulk BOOLEAN NOT NULL DEFAULT false,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE(team_id, source_sequence_id)
);

CREATE TABLE IF NOT EXISTS case_references (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id INTEGER NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    reference_type TEXT NOT NULL,
    reference_value TEXT NOT NULL,
    auto_extracted BOOLEAN NOT NULL DEFAULT true,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS case_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id INTEGER NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    description TEXT NOT NULL,
    reference_type TEXT NOT NULL DEFAULT '',
    reference_value TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_audit (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id INTEGER NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    result_json TEXT NOT NULL,
    confidence REAL NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS case_activities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id INTEGER NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS case_drafts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id INTEGER NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    body TEXT NOT NULL,
    sent BOOLEAN NOT NULL DEFAULT false,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS case_followups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id INTEGER NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    due_at DATETIME NOT NULL,
    done BOOLEAN NOT NULL DEFAULT false,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS case_tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id INTEGER NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON processing_queue(status, created_at);
CREATE INDEX IF NOT EXISTS idx_partners_domain ON partners(domain);
CREATE INDEX IF NOT EXISTS idx_partners_name_key ON partners(name_key);
CREATE INDEX IF NOT EXISTS idx_cases_assignee ON clarification_cases(assigned_specialist_id, category, status);
CREATE INDEX IF NOT EXISTS idx_references_case ON case_references(case_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS teams (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    responsibilities TEXT NOT NULL DEFAULT '',
    telegram_topic_id INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS team_mailbox_config (
    team_id BIGINT PRIMARY KEY REFERENCES teams(id) ON DELETE CASCADE,
    host TEXT NOT NULL DEFAULT '',
    port INTEGER NOT NULL DEFAULT 993,
    use_tls BOOLEAN NOT NULL DEFAULT true,
    username TEXT NOT NULL,
    password_encrypted TEXT NOT NULL,
    folder TEXT NOT NULL DEFAULT 'INBOX',
    fetch_mode TEXT NOT NULL DEFAULT 'unseen',
    last_processed_sequence BIGINT NOT NULL DEFAULT 0,
    auto_processing_enabled BOOLEAN NOT NULL DEFAULT true,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS specialists (
    id BIGSERIAL PRIMARY KEY,
    team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    email TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT true,
    UNIQUE(team_id, email)
);

CREATE TABLE IF NOT EXISTS specialist_categories (
    specialist_id BIGINT NOT NULL REFERENCES specialists(id) ON DELETE CASCADE,
    category TEXT NOT NULL,
    PRIMARY KEY (specialist_id, category)
);

CREATE TABLE IF NOT EXISTS known_partners (
    team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    PRIMARY KEY (team_id, name)
);

CREATE TABLE IF NOT EXISTS partners (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    domain TEXT NOT NULL DEFAULT '',
    codes TEXT NOT NULL DEFAULT '',
    auto_created BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_queue (
    id BIGSERIAL PRIMARY KEY,
    team_id BIGINT NOT NULL,
    message_sequence_id BIGINT NOT NULL,
    message_id TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    recipients TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    attachments TEXT NOT NULL DEFAULT '',
    received_at TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    retry_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE(team_id, message_sequence_id)
);

CREATE TABLE IF NOT EXISTS extraction_cache (
    content_hash TEXT NOT NULL,
    team_id BIGINT NOT NULL,
    result_json TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (content_hash, team_id)
);

CREATE TABLE IF NOT EXISTS key_usage_state (
    tier TEXT PRIMARY KEY,
    daily_count INTEGER NOT NULL,
    daily_limit INTEGER NOT NULL,
    minute_count INTEGER NOT NULL,
    minute_limit INTEGER NOT NULL,
    backoff_step INTEGER NOT NULL DEFAULT 0,
    last_minute_reset TIMESTAMPTZ NOT NULL,
    last_day_reset TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS clarification_cases (
    id BIGSERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT NOT NULL,
    priority TEXT NOT NULL,
    effort TEXT NOT NULL,
    status TEXT NOT NULL,
    team_id BIGINT NOT NULL,
    partner_id BIGINT REFERENCES partners(id),
    assigned_specialist_id BIGINT REFERENCES specialists(id),
    source_sequence_id BIGINT NOT NULL,
    original_email_json TEXT NOT NULL,
    auto_created BOOLEAN NOT NULL DEFAULT false,
    is_bulk BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE(team_id, source_sequence_id)
);

CREATE TABLE IF NOT EXISTS case_references (
    id BIGSERIAL PRIMARY KEY,
    case_id BIGINT NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    reference_type TEXT NOT NULL,
    reference_value TEXT NOT NULL,
    auto_extracted BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS case_items (
    id BIGSERIAL PRIMARY KEY,
    case_id BIGINT NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    description TEXT NOT NULL,
    reference_type TEXT NOT NULL DEFAULT '',
    reference_value TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_audit (
    id BIGSERIAL PRIMARY KEY,
    case_id BIGINT NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    result_json TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS case_activities (
    id BIGSERIAL PRIMARY KEY,
    case_id BIGINT NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS case_drafts (
    id BIGSERIAL PRIMARY KEY,
    case_id BIGINT NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    body TEXT NOT NULL,
    sent BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS case_followups (
    id BIGSERIAL PRIMARY KEY,
    case_id BIGINT NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    due_at TIMESTAMPTZ NOT NULL,
    done BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS case_tasks (
    id BIGSERIAL PRIMARY KEY,
    case_id BIGINT NOT NULL REFERENCES clarification_cases(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON processing_queue(status, created_at);
CREATE INDEX IF NOT EXISTS idx_partners_domain ON partners(domain);
CREATE INDEX IF NOT EXISTS idx_partners_name_key ON partners(name_key);
CREATE INDEX IF NOT EXISTS idx_cases_assignee ON clarification_cases(assigned_specialist_id, category, status);
CREATE INDEX IF NOT EXISTS idx_references_case ON case_references(case_id);
`
