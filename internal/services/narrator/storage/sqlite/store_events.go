package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

func getEvent(ctx context.Context, q querier, worldID, eventID string) (*narrative.NarrativeEvent, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body_json FROM narrative_events WHERE world_id = ? AND id = ?`, worldID, eventID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return narrative.UnmarshalEvent([]byte(body))
}

func putEvent(ctx context.Context, q querier, event *narrative.NarrativeEvent) error {
	body, err := narrative.MarshalEvent(event)
	if err != nil {
		return err
	}
	// New events are appended after the world's current last position.
	_, err = q.ExecContext(ctx, `
INSERT INTO narrative_events (world_id, id, region_id, position, body_json)
VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM narrative_events WHERE world_id = ?), ?)
ON CONFLICT(world_id, id) DO UPDATE SET
    region_id = excluded.region_id,
    body_json = excluded.body_json`,
		event.WorldID, event.ID, event.RegionID, event.WorldID, string(body),
	)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// GetEvent implements storage.EventStore.
func (s *Store) GetEvent(ctx context.Context, worldID, eventID string) (*narrative.NarrativeEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return getEvent(ctx, s.sqlDB, worldID, eventID)
}

// PutEvent implements storage.EventStore.
func (s *Store) PutEvent(ctx context.Context, event *narrative.NarrativeEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if event == nil {
		return apperrors.New(apperrors.CodeInvalidInput, "event is required")
	}
	if err := required("event id", event.ID); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid event", err)
	}
	return putEvent(ctx, s.sqlDB, event)
}

// CompleteEvent implements storage.EventStore.
func (s *Store) CompleteEvent(ctx context.Context, worldID, eventID string, at time.Time, outcome string) (*narrative.NarrativeEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var saved *narrative.NarrativeEvent
	err := s.inTx(ctx, "complete event", func(tx *sql.Tx) error {
		e, err := getEvent(ctx, tx, worldID, eventID)
		if err != nil {
			return err
		}
		if err := e.Complete(at, outcome); err != nil {
			return err
		}
		if err := putEvent(ctx, tx, e); err != nil {
			return err
		}
		saved = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SetEventActive implements storage.EventStore.
func (s *Store) SetEventActive(ctx context.Context, worldID, eventID string, active bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "set event active", func(tx *sql.Tx) error {
		e, err := getEvent(ctx, tx, worldID, eventID)
		if err != nil {
			return err
		}
		e.SetActive(active)
		return putEvent(ctx, tx, e)
	})
}

// DeleteEvent implements storage.EventStore.
func (s *Store) DeleteEvent(ctx context.Context, worldID, eventID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM narrative_events WHERE world_id = ? AND id = ?`, worldID, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListEvents implements storage.EventStore.
func (s *Store) ListEvents(ctx context.Context, worldID, regionID string) ([]*narrative.NarrativeEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT body_json FROM narrative_events WHERE world_id = ?`
	args := []any{worldID}
	if regionID != "" {
		query += ` AND (region_id = '' OR region_id = ?)`
		args = append(args, regionID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY position`, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var out []*narrative.NarrativeEvent
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := narrative.UnmarshalEvent([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// GetChain implements storage.EventStore.
func (s *Store) GetChain(ctx context.Context, worldID, chainID string) (storage.ChainRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ChainRecord{}, err
	}
	c := storage.ChainRecord{WorldID: worldID}
	var ids string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id, name, event_ids_json FROM event_chains WHERE world_id = ? AND id = ?`, worldID, chainID).
		Scan(&c.ID, &c.Name, &ids)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ChainRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ChainRecord{}, fmt.Errorf("get chain: %w", err)
	}
	if err := decodeJSON(ids, &c.EventIDs); err != nil {
		return storage.ChainRecord{}, fmt.Errorf("decode chain events: %w", err)
	}
	return c, nil
}

// PutChain implements storage.EventStore.
func (s *Store) PutChain(ctx context.Context, chain storage.ChainRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("chain id", chain.ID); err != nil {
		return err
	}
	ids, err := encodeJSON(chain.EventIDs)
	if err != nil {
		return fmt.Errorf("encode chain events: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO event_chains (world_id, id, name, event_ids_json) VALUES (?, ?, ?, ?)
ON CONFLICT(world_id, id) DO UPDATE SET name = excluded.name, event_ids_json = excluded.event_ids_json`,
		chain.WorldID, chain.ID, chain.Name, ids)
	if err != nil {
		return fmt.Errorf("put chain: %w", err)
	}
	return nil
}

// ListChains implements storage.EventStore.
func (s *Store) ListChains(ctx context.Context, worldID string) ([]storage.ChainRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, name, event_ids_json FROM event_chains WHERE world_id = ? ORDER BY id`, worldID)
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	defer rows.Close()
	var out []storage.ChainRecord
	for rows.Next() {
		c := storage.ChainRecord{WorldID: worldID}
		var ids string
		if err := rows.Scan(&c.ID, &c.Name, &ids); err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		if err := decodeJSON(ids, &c.EventIDs); err != nil {
			return nil, fmt.Errorf("decode chain events: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chains: %w", err)
	}
	return out, nil
}
