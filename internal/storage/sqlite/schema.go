package sqlite

const schema = `
-- Issue records: one row per issue, keyed by "owner/repo#number".
-- Writes are last-write-wins upserts; the orchestrator owns transitions.
CREATE TABLE IF NOT EXISTS issue_records (
    issue_key TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    repo TEXT NOT NULL,
    number INTEGER NOT NULL CHECK(number > 0),
    title TEXT NOT NULL,
    body TEXT NOT NULL DEFAULT '',
    classification TEXT NOT NULL DEFAULT '{}',
    plan TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    priority_rank INTEGER NOT NULL DEFAULT 2,
    auto_fix_attempted INTEGER NOT NULL DEFAULT 0,
    auto_fix_successful INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    processed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_records_repo ON issue_records(owner, repo);
CREATE INDEX IF NOT EXISTS idx_records_status ON issue_records(status);
CREATE INDEX IF NOT EXISTS idx_records_pending ON issue_records(priority_rank, created_at);

-- Action log: append-only audit trail. Rows are never updated or deleted.
CREATE TABLE IF NOT EXISTS action_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    issue_key TEXT NOT NULL,
    action TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_action_log_issue ON action_log(issue_key);
CREATE INDEX IF NOT EXISTS idx_action_log_created_at ON action_log(created_at);
`
