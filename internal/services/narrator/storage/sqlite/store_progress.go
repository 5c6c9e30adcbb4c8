package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

// RecordEventCompletion implements storage.ProgressStore.
func (s *Store) RecordEventCompletion(ctx context.Context, rec storage.EventCompletionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.clock()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO event_completions (world_id, character_id, event_id, outcome, turn, completed_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.WorldID, rec.CharacterID, rec.EventID, rec.Outcome, rec.Turn, toMillis(completedAt))
	if err != nil {
		return fmt.Errorf("record event completion: %w", err)
	}
	return nil
}

// ListEventCompletions implements storage.ProgressStore. An empty characterID
// lists the whole world.
func (s *Store) ListEventCompletions(ctx context.Context, worldID, characterID string) ([]storage.EventCompletionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT world_id, character_id, event_id, outcome, turn, completed_at FROM event_completions WHERE world_id = ?`
	args := []any{worldID}
	if characterID != "" {
		query += ` AND character_id = ?`
		args = append(args, characterID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list event completions: %w", err)
	}
	defer rows.Close()
	var out []storage.EventCompletionRecord
	for rows.Next() {
		var (
			rec storage.EventCompletionRecord
			at  int64
		)
		if err := rows.Scan(&rec.WorldID, &rec.CharacterID, &rec.EventID, &rec.Outcome, &rec.Turn, &at); err != nil {
			return nil, fmt.Errorf("scan event completion: %w", err)
		}
		rec.CompletedAt = fromMillis(at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event completions: %w", err)
	}
	return out, nil
}

// RecordChallengeCompletion implements storage.ProgressStore.
func (s *Store) RecordChallengeCompletion(ctx context.Context, rec storage.ChallengeCompletionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.clock()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO challenge_completions (world_id, character_id, challenge_id, success, completed_at)
VALUES (?, ?, ?, ?, ?)`,
		rec.WorldID, rec.CharacterID, rec.ChallengeID, boolInt(rec.Success), toMillis(completedAt))
	if err != nil {
		return fmt.Errorf("record challenge completion: %w", err)
	}
	return nil
}

// ListChallengeCompletions implements storage.ProgressStore.
func (s *Store) ListChallengeCompletions(ctx context.Context, worldID, characterID string) ([]storage.ChallengeCompletionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT world_id, character_id, challenge_id, success, completed_at FROM challenge_completions WHERE world_id = ?`
	args := []any{worldID}
	if characterID != "" {
		query += ` AND character_id = ?`
		args = append(args, characterID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list challenge completions: %w", err)
	}
	defer rows.Close()
	var out []storage.ChallengeCompletionRecord
	for rows.Next() {
		var (
			rec     storage.ChallengeCompletionRecord
			success int
			at      int64
		)
		if err := rows.Scan(&rec.WorldID, &rec.CharacterID, &rec.ChallengeID, &success, &at); err != nil {
			return nil, fmt.Errorf("scan challenge completion: %w", err)
		}
		rec.Success = success != 0
		rec.CompletedAt = fromMillis(at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenge completions: %w", err)
	}
	return out, nil
}

// ListLore implements storage.LoreStore.
func (s *Store) ListLore(ctx context.Context, worldID string) ([]storage.LoreRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT world_id, character_id, info, persisted, revealed_at
FROM lore WHERE world_id = ? ORDER BY seq`, worldID)
	if err != nil {
		return nil, fmt.Errorf("list lore: %w", err)
	}
	defer rows.Close()
	var out []storage.LoreRecord
	for rows.Next() {
		var (
			rec       storage.LoreRecord
			persisted int
			at        int64
		)
		if err := rows.Scan(&rec.WorldID, &rec.CharacterID, &rec.Info, &persisted, &at); err != nil {
			return nil, fmt.Errorf("scan lore: %w", err)
		}
		rec.Persisted = persisted != 0
		rec.RevealedAt = fromMillis(at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lore: %w", err)
	}
	return out, nil
}

// GetSettings implements storage.SettingsStore.
func (s *Store) GetSettings(ctx context.Context, worldID string) (storage.SettingsRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SettingsRecord{}, err
	}
	rec := storage.SettingsRecord{WorldID: worldID}
	var updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT branch_count, tokens_per_branch, failure_policy, updated_at
FROM world_settings WHERE world_id = ?`, worldID).
		Scan(&rec.BranchCount, &rec.TokensPerBranch, &rec.FailurePolicy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SettingsRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SettingsRecord{}, fmt.Errorf("get settings: %w", err)
	}
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// PutSettings implements storage.SettingsStore.
func (s *Store) PutSettings(ctx context.Context, rec storage.SettingsRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("world id", rec.WorldID); err != nil {
		return err
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.clock()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO world_settings (world_id, branch_count, tokens_per_branch, failure_policy, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(world_id) DO UPDATE SET
    branch_count = excluded.branch_count,
    tokens_per_branch = excluded.tokens_per_branch,
    failure_policy = excluded.failure_policy,
    updated_at = excluded.updated_at`,
		rec.WorldID, rec.BranchCount, rec.TokensPerBranch, rec.FailurePolicy, toMillis(updatedAt))
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}
