package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/tooldef"
)

// PostgresStore persists approvals in Postgres. Put relies on an upsert, so
// re-approval replaces the prior record in one statement and concurrent
// readers never see a partial write.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool. The pool is expected to
// use the pgx stdlib driver registered by the caller.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS etdi_approvals (
	tool_id       TEXT PRIMARY KEY,
	version       TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	provider_id   TEXT NOT NULL,
	provider_name TEXT NOT NULL DEFAULT '',
	permissions   JSONB NOT NULL DEFAULT '[]',
	approved_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS etdi_chain_approvals (
	caller_id   TEXT NOT NULL,
	callee_id   TEXT NOT NULL,
	approved_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (caller_id, callee_id)
);`

// Migrate creates the approval tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, toolID string) (*Record, error) {
	var (
		rec       Record
		permsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT tool_id, version, content_hash, provider_id, provider_name, permissions, approved_at
		FROM etdi_approvals WHERE tool_id = $1`, toolID,
	).Scan(&rec.ToolID, &rec.Version, &rec.ContentHash,
		&rec.Provider.ID, &rec.Provider.Name, &permsJSON, &rec.ApprovedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, etdi.WrapError(etdi.KindStore, toolID, fmt.Errorf("Get: %w", err))
	}
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &rec.Permissions); err != nil {
			return nil, etdi.WrapError(etdi.KindStore, toolID, fmt.Errorf("Get: permissions: %w", err))
		}
	}
	return &rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	perms := rec.Permissions
	if perms == nil {
		perms = []tooldef.Permission{}
	}
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return etdi.WrapError(etdi.KindStore, rec.ToolID, fmt.Errorf("Put: permissions: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO etdi_approvals (tool_id, version, content_hash, provider_id, provider_name, permissions, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tool_id) DO UPDATE SET
			version       = EXCLUDED.version,
			content_hash  = EXCLUDED.content_hash,
			provider_id   = EXCLUDED.provider_id,
			provider_name = EXCLUDED.provider_name,
			permissions   = EXCLUDED.permissions,
			approved_at   = EXCLUDED.approved_at`,
		rec.ToolID, rec.Version, rec.ContentHash,
		rec.Provider.ID, rec.Provider.Name, permsJSON, rec.ApprovedAt,
	)
	if err != nil {
		return etdi.WrapError(etdi.KindStore, rec.ToolID, fmt.Errorf("Put: %w", err))
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, toolID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM etdi_approvals WHERE tool_id = $1`, toolID); err != nil {
		return etdi.WrapError(etdi.KindStore, toolID, fmt.Errorf("Delete: %w", err))
	}
	return nil
}

func (s *PostgresStore) ChainApproved(ctx context.Context, callerID, calleeID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM etdi_chain_approvals WHERE caller_id = $1 AND callee_id = $2`,
		callerID, calleeID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, etdi.WrapError(etdi.KindStore, calleeID, fmt.Errorf("ChainApproved: %w", err))
	}
	return true, nil
}

func (s *PostgresStore) ApproveChain(ctx context.Context, callerID, calleeID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etdi_chain_approvals (caller_id, callee_id, approved_at)
		VALUES ($1, $2, now())
		ON CONFLICT (caller_id, callee_id) DO NOTHING`,
		callerID, calleeID,
	)
	if err != nil {
		return etdi.WrapError(etdi.KindStore, calleeID, fmt.Errorf("ApproveChain: %w", err))
	}
	return nil
}

func (s *PostgresStore) RevokeChain(ctx context.Context, callerID, calleeID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM etdi_chain_approvals WHERE caller_id = $1 AND callee_id = $2`,
		callerID, calleeID,
	)
	if err != nil {
		return etdi.WrapError(etdi.KindStore, calleeID, fmt.Errorf("RevokeChain: %w", err))
	}
	return nil
}
