package crosspostdb

import "database/sql"

// InitSchema ensures the DB has the ledger and token tables.
func InitSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS syndicated_posts (
            original_guid TEXT NOT NULL,
            network TEXT NOT NULL,
            remote_id TEXT NOT NULL,
            original_uri TEXT,
            created_at TIMESTAMP NOT NULL,
            PRIMARY KEY (original_guid, network)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_syndicated_posts_created_at ON syndicated_posts(created_at)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
            network TEXT PRIMARY KEY,
            access_token TEXT NOT NULL,
            refresh_token TEXT NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return storageErr("init schema", err)
		}
	}
	return nil
}
