package sqlite

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage/filter"
)

// PutPendingApproval implements storage.PendingApprovalStore. The original
// created_at survives updates.
func (s *Store) PutPendingApproval(ctx context.Context, rec storage.PendingApprovalRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("resolution id", rec.ResolutionID); err != nil {
		return err
	}
	createdAt, updatedAt := rec.CreatedAt, rec.UpdatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO pending_approvals (resolution_id, world_id, character_id, kind, state, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(resolution_id) DO UPDATE SET
    world_id = excluded.world_id,
    character_id = excluded.character_id,
    kind = excluded.kind,
    state = excluded.state,
    payload = excluded.payload,
    updated_at = excluded.updated_at`,
		rec.ResolutionID, rec.WorldID, rec.CharacterID, rec.Kind, rec.State, rec.Payload,
		toMillis(createdAt), toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put pending approval: %w", err)
	}
	return nil
}

// DeletePendingApproval implements storage.PendingApprovalStore.
func (s *Store) DeletePendingApproval(ctx context.Context, resolutionID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pending_approvals WHERE resolution_id = ?`, resolutionID)
	if err != nil {
		return fmt.Errorf("delete pending approval: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListPendingApprovals implements storage.PendingApprovalStore.
func (s *Store) ListPendingApprovals(ctx context.Context, worldID, filterStr string) ([]storage.PendingApprovalRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cond, err := filter.ParsePendingFilter(filterStr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid filter", err)
	}
	query := `
SELECT resolution_id, world_id, character_id, kind, state, payload, created_at, updated_at
FROM pending_approvals WHERE 1 = 1`
	var args []any
	if worldID != "" {
		query += ` AND world_id = ?`
		args = append(args, worldID)
	}
	if cond.Clause != "" {
		query += ` AND (` + cond.Clause + `)`
		args = append(args, cond.Params...)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY created_at, resolution_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()
	var out []storage.PendingApprovalRecord
	for rows.Next() {
		var (
			rec                  storage.PendingApprovalRecord
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&rec.ResolutionID, &rec.WorldID, &rec.CharacterID, &rec.Kind, &rec.State, &rec.Payload, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan pending approval: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		rec.UpdatedAt = fromMillis(updatedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending approvals: %w", err)
	}
	return out, nil
}
