package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	sqlitemigrate "github.com/louisbranch/gmloop/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

var _ storage.Store = (*Store)(nil)

// Store persists narrator state in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite narrator store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes read-modify-write transactions; SQLite
	// cannot upgrade concurrent readers to writers without SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// WithClock overrides the clock used for store-assigned timestamps.
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) now() int64 {
	return toMillis(s.clock())
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.Newf(apperrors.CodeInvalidInput, "%s is required", field)
	}
	return nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

type scanner func(dest ...any) error

// GetWorld implements storage.WorldStore.
func (s *Store) GetWorld(ctx context.Context, worldID string) (storage.WorldRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.WorldRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, current_scene_id, time_of_day, turn_count, flags_json, created_at, updated_at
FROM worlds WHERE id = ?`, worldID)
	var (
		w                    storage.WorldRecord
		flags                string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&w.ID, &w.Name, &w.CurrentSceneID, &w.TimeOfDay, &w.TurnCount, &flags, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.WorldRecord{}, storage.ErrNotFound
		}
		return storage.WorldRecord{}, fmt.Errorf("get world: %w", err)
	}
	if err := decodeJSON(flags, &w.Flags); err != nil {
		return storage.WorldRecord{}, fmt.Errorf("decode world flags: %w", err)
	}
	w.CreatedAt = fromMillis(createdAt)
	w.UpdatedAt = fromMillis(updatedAt)
	return w, nil
}

// PutWorld implements storage.WorldStore.
func (s *Store) PutWorld(ctx context.Context, world storage.WorldRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("world id", world.ID); err != nil {
		return err
	}
	flags, err := encodeJSON(world.Flags)
	if err != nil {
		return fmt.Errorf("encode world flags: %w", err)
	}
	createdAt, updatedAt := world.CreatedAt, world.UpdatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO worlds (id, name, current_scene_id, time_of_day, turn_count, flags_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    current_scene_id = excluded.current_scene_id,
    time_of_day = excluded.time_of_day,
    turn_count = excluded.turn_count,
    flags_json = excluded.flags_json,
    updated_at = excluded.updated_at`,
		world.ID, world.Name, world.CurrentSceneID, world.TimeOfDay, world.TurnCount, flags,
		toMillis(createdAt), toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put world: %w", err)
	}
	return nil
}

// GetScene implements storage.WorldStore.
func (s *Store) GetScene(ctx context.Context, sceneID string) (storage.SceneRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SceneRecord{}, err
	}
	var scene storage.SceneRecord
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id, world_id, name FROM scenes WHERE id = ?`, sceneID).
		Scan(&scene.ID, &scene.WorldID, &scene.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SceneRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SceneRecord{}, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// PutScene implements storage.WorldStore.
func (s *Store) PutScene(ctx context.Context, scene storage.SceneRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("scene id", scene.ID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO scenes (id, world_id, name) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET world_id = excluded.world_id, name = excluded.name`,
		scene.ID, scene.WorldID, scene.Name)
	if err != nil {
		return fmt.Errorf("put scene: %w", err)
	}
	return nil
}

const characterColumns = `id, world_id, name, description, location_id, stats_json, inventory_json, conditions_json, sheet_json, updated_at`

func scanCharacter(scan scanner) (storage.CharacterRecord, error) {
	var (
		c                            storage.CharacterRecord
		stats, inventory, conditions string
		updatedAt                    int64
	)
	if err := scan(&c.ID, &c.WorldID, &c.Name, &c.Description, &c.LocationID, &stats, &inventory, &conditions, &c.SheetJSON, &updatedAt); err != nil {
		return storage.CharacterRecord{}, err
	}
	if err := decodeJSON(stats, &c.Stats); err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("decode stats: %w", err)
	}
	if err := decodeJSON(inventory, &c.Inventory); err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("decode inventory: %w", err)
	}
	if err := decodeJSON(conditions, &c.Conditions); err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("decode conditions: %w", err)
	}
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func getCharacter(ctx context.Context, q querier, characterID string) (storage.CharacterRecord, error) {
	c, err := scanCharacter(q.QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ?`, characterID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CharacterRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("get character: %w", err)
	}
	return c, nil
}

func putCharacter(ctx context.Context, q querier, c storage.CharacterRecord, updatedAt int64) error {
	stats, err := encodeJSON(c.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	inventory, err := encodeJSON(c.Inventory)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	conditions, err := encodeJSON(c.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO characters (`+characterColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    world_id = excluded.world_id,
    name = excluded.name,
    description = excluded.description,
    location_id = excluded.location_id,
    stats_json = excluded.stats_json,
    inventory_json = excluded.inventory_json,
    conditions_json = excluded.conditions_json,
    sheet_json = excluded.sheet_json,
    updated_at = excluded.updated_at`,
		c.ID, c.WorldID, c.Name, c.Description, c.LocationID, stats, inventory, conditions, c.SheetJSON, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("put character: %w", err)
	}
	return nil
}

// GetCharacter implements storage.CharacterStore.
func (s *Store) GetCharacter(ctx context.Context, characterID string) (storage.CharacterRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CharacterRecord{}, err
	}
	return getCharacter(ctx, s.sqlDB, characterID)
}

// PutCharacter implements storage.CharacterStore.
func (s *Store) PutCharacter(ctx context.Context, character storage.CharacterRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("character id", character.ID); err != nil {
		return err
	}
	updatedAt := character.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.clock()
	}
	return putCharacter(ctx, s.sqlDB, character, toMillis(updatedAt))
}

const npcColumns = `id, world_id, region_id, name, motivation, relationships_json, opinions_json, updated_at`

func scanNPC(scan scanner) (storage.NPCRecord, error) {
	var (
		n                       storage.NPCRecord
		relationships, opinions string
		updatedAt               int64
	)
	if err := scan(&n.ID, &n.WorldID, &n.RegionID, &n.Name, &n.Motivation, &relationships, &opinions, &updatedAt); err != nil {
		return storage.NPCRecord{}, err
	}
	if err := decodeJSON(relationships, &n.Relationships); err != nil {
		return storage.NPCRecord{}, fmt.Errorf("decode relationships: %w", err)
	}
	if err := decodeJSON(opinions, &n.Opinions); err != nil {
		return storage.NPCRecord{}, fmt.Errorf("decode opinions: %w", err)
	}
	n.UpdatedAt = fromMillis(updatedAt)
	return n, nil
}

func getNPC(ctx context.Context, q querier, npcID string) (storage.NPCRecord, error) {
	n, err := scanNPC(q.QueryRowContext(ctx, `SELECT `+npcColumns+` FROM npcs WHERE id = ?`, npcID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NPCRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.NPCRecord{}, fmt.Errorf("get npc: %w", err)
	}
	return n, nil
}

func putNPC(ctx context.Context, q querier, n storage.NPCRecord, updatedAt int64) error {
	relationships, err := encodeJSON(n.Relationships)
	if err != nil {
		return fmt.Errorf("encode relationships: %w", err)
	}
	opinions, err := encodeJSON(n.Opinions)
	if err != nil {
		return fmt.Errorf("encode opinions: %w", err)
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO npcs (`+npcColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    world_id = excluded.world_id,
    region_id = excluded.region_id,
    name = excluded.name,
    motivation = excluded.motivation,
    relationships_json = excluded.relationships_json,
    opinions_json = excluded.opinions_json,
    updated_at = excluded.updated_at`,
		n.ID, n.WorldID, n.RegionID, n.Name, n.Motivation, relationships, opinions, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("put npc: %w", err)
	}
	return nil
}

// GetNPC implements storage.NPCStore.
func (s *Store) GetNPC(ctx context.Context, npcID string) (storage.NPCRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NPCRecord{}, err
	}
	return getNPC(ctx, s.sqlDB, npcID)
}

// PutNPC implements storage.NPCStore.
func (s *Store) PutNPC(ctx context.Context, npc storage.NPCRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := required("npc id", npc.ID); err != nil {
		return err
	}
	updatedAt := npc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.clock()
	}
	return putNPC(ctx, s.sqlDB, npc, toMillis(updatedAt))
}

// ListNPCsInRegion implements storage.NPCStore.
func (s *Store) ListNPCsInRegion(ctx context.Context, worldID, regionID string) ([]storage.NPCRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + npcColumns + ` FROM npcs WHERE world_id = ?`
	args := []any{worldID}
	if regionID != "" {
		query += ` AND region_id = ?`
		args = append(args, regionID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list npcs: %w", err)
	}
	defer rows.Close()
	var out []storage.NPCRecord
	for rows.Next() {
		n, err := scanNPC(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan npc: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate npcs: %w", err)
	}
	return out, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ outcome.WorldState = (*Store)(nil)
