package db

const schemaSQL = `
-- ===========================================================================
-- INBOX (discovery results awaiting approval)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS inbox_entries (
  thing_uid TEXT PRIMARY KEY,
  thing_type_uid TEXT NOT NULL,
  identifier TEXT NOT NULL,
  label TEXT NOT NULL,
  properties TEXT NOT NULL DEFAULT '{}',
  representation_property TEXT,
  status TEXT NOT NULL DEFAULT 'NEW',
  first_seen_at TEXT NOT NULL,
  last_seen_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inbox_status ON inbox_entries(status);
CREATE INDEX IF NOT EXISTS idx_inbox_last_seen ON inbox_entries(last_seen_at);
CREATE INDEX IF NOT EXISTS idx_inbox_thing_type ON inbox_entries(thing_type_uid);

-- ===========================================================================
-- DISCOVERY RUNS
-- ===========================================================================

CREATE TABLE IF NOT EXISTS discovery_runs (
  run_id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  devices_seen INTEGER NOT NULL DEFAULT 0,
  matched INTEGER NOT NULL DEFAULT 0,
  added INTEGER NOT NULL DEFAULT 0,
  pruned INTEGER NOT NULL DEFAULT 0,
  error TEXT
);

CREATE INDEX IF NOT EXISTS idx_discovery_runs_started ON discovery_runs(started_at);
`
