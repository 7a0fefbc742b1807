package cache

type migration struct {
	version int
	sql     string
}

// migrations 按版本顺序执行，版本号从 1 连续递增
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	version    INTEGER NOT NULL,
	written_at INTEGER NOT NULL,
	writer     TEXT NOT NULL DEFAULT ''
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
