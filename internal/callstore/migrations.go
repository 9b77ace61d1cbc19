package callstore

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create call_records",
		SQL: `
			CREATE TABLE call_records (
				id             TEXT PRIMARY KEY,
				tenant_id      TEXT NOT NULL,
				agent_id       TEXT NOT NULL,
				user_id        TEXT NOT NULL DEFAULT '',
				lead_id        TEXT NOT NULL DEFAULT '',
				campaign_id    TEXT NOT NULL DEFAULT '',
				queue_id       TEXT NOT NULL DEFAULT '',
				direction      TEXT NOT NULL,
				status         TEXT NOT NULL,
				phone_number   TEXT NOT NULL,
				start_time     TEXT NOT NULL,
				answer_time    TEXT,
				end_time       TEXT,
				duration_secs  INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_call_records_tenant ON call_records (tenant_id, start_time);
			CREATE INDEX idx_call_records_agent ON call_records (agent_id, start_time);
			CREATE INDEX idx_call_records_campaign ON call_records (campaign_id);
		`,
	},
}
