package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/lib/pq"
)

// DefaultTable is the links table name.
const DefaultTable = "links"

// channelHashLen is how many hex chars of sha256(owner) name a channel.
// NOTIFY channels are identifiers and must stay under 64 bytes.
const channelHashLen = 16

// ChannelName returns the NOTIFY channel carrying an owner's changes.
// It must match the expression used by the trigger in migrations.
func ChannelName(table, ownerID string) string {
	sum := sha256.Sum256([]byte(ownerID))
	return table + "_" + hex.EncodeToString(sum[:])[:channelHashLen]
}

// migrations returns the idempotent schema statements for table.
func migrations(table string) []string {
	tbl := pq.QuoteIdentifier(table)
	idx := pq.QuoteIdentifier(table + "_owner_created_idx")
	fn := pq.QuoteIdentifier(table + "_notify")
	trg := pq.QuoteIdentifier(table + "_notify_trg")
	prefix := pq.QuoteLiteral(table + "_")

	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				url TEXT NOT NULL,
				title TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, tbl),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (owner_id, created_at DESC)`, idx, tbl),
		fmt.Sprintf(`
			CREATE OR REPLACE FUNCTION %[1]s() RETURNS trigger AS $$
			DECLARE
				row_owner TEXT;
				payload TEXT;
			BEGIN
				IF TG_OP = 'DELETE' THEN
					row_owner := OLD.owner_id;
					payload := json_build_object('kind', 'delete', 'id', OLD.id)::text;
				ELSE
					row_owner := NEW.owner_id;
					payload := json_build_object(
						'kind', 'insert',
						'item', json_build_object(
							'id', NEW.id,
							'owner_id', NEW.owner_id,
							'url', NEW.url,
							'title', NEW.title,
							'created_at', NEW.created_at
						)
					)::text;
				END IF;
				PERFORM pg_notify(
					%[2]s || substr(encode(sha256(convert_to(row_owner, 'UTF8')), 'hex'), 1, %[3]d),
					payload
				);
				RETURN NULL;
			END;
			$$ LANGUAGE plpgsql`, fn, prefix, channelHashLen),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trg, tbl),
		fmt.Sprintf(`
			CREATE TRIGGER %s
			AFTER INSERT OR DELETE ON %s
			FOR EACH ROW EXECUTE FUNCTION %s()`, trg, tbl, fn),
	}
}

// migrate applies the schema in one transaction.
func migrate(ctx context.Context, db *sql.DB, table string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range migrations(table) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
