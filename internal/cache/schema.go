package cache

// TableName is the persistent-tier cache table.
const TableName = "book_api_cache"

// Schema defines the persistent cache tier. search_count tracks how often an
// entry has been read; it feeds cache-warming heuristics, never eviction.
const Schema = `
CREATE TABLE IF NOT EXISTS book_api_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	search_count INTEGER NOT NULL DEFAULT 0,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_book_api_cache_expires_at ON book_api_cache(expires_at);
`
