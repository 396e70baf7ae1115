// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

package fieldstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by point lookups when no record matches the key.
var ErrNotFound = errors.New("fieldstore: record not found")

// Capabilities describes what the underlying backend can guarantee. The
// degraded fallback store reports Durable=false and Indexed=false so callers
// can surface the degradation instead of hiding it.
type Capabilities struct {
	Durable bool
	Indexed bool
}

// Backend is the persistent local store contract. The SQLite Store is the
// primary implementation; FlatStore is the best-effort fallback used when
// the database cannot be opened.
type Backend interface {
	Capabilities() Capabilities

	PutOrder(ctx context.Context, order *ServiceOrder) error
	GetOrder(ctx context.Context, id string) (*ServiceOrder, error)
	Orders(ctx context.Context) ([]*ServiceOrder, error)
	OrdersByStatus(ctx context.Context, status OrderStatus) ([]*ServiceOrder, error)
	OrdersBySyncStatus(ctx context.Context, status SyncStatus) ([]*ServiceOrder, error)
	// ApplyServerOrder upserts a server-provided order and marks it synced in
	// one atomic write.
	ApplyServerOrder(ctx context.Context, order *ServiceOrder) error
	MarkOrderSynced(ctx context.Context, id string) error

	PutRoute(ctx context.Context, route *Route) error
	GetRoute(ctx context.Context, id string) (*Route, error)
	Routes(ctx context.Context) ([]*Route, error)

	PutDevice(ctx context.Context, device *Device) error
	GetDevice(ctx context.Context, assetTag string) (*Device, error)
	Devices(ctx context.Context) ([]*Device, error)

	// AppendAction assigns the action a sequence id and persists it. The
	// caller's Timestamp and RetryCount are kept as-is.
	AppendAction(ctx context.Context, action *OfflineAction) error
	// ActionsByTimestamp returns all queued actions ordered by timestamp
	// ascending, sequence id as tiebreak.
	ActionsByTimestamp(ctx context.Context) ([]*OfflineAction, error)
	DeleteAction(ctx context.Context, id int64) error
	UpdateActionRetry(ctx context.Context, action *OfflineAction) error

	PutPhoto(ctx context.Context, photo *Photo) error
	GetPhoto(ctx context.Context, id string) (*Photo, error)
	PhotosByOrder(ctx context.Context, orderID string) ([]*Photo, error)
	PhotosByUploadState(ctx context.Context, uploaded bool) ([]*Photo, error)
	MarkPhotoUploaded(ctx context.Context, id string) error
	DeletePhoto(ctx context.Context, id string) error

	LastSyncAt(ctx context.Context) (time.Time, error)
	SetLastSyncAt(ctx context.Context, at time.Time) error

	Close() error
}

// Store is the SQLite-backed implementation of Backend.
type Store struct {
	db *sql.DB
}

var _ Backend = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists. WAL mode keeps readers unblocked during sync writes.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := OpenDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenDB wraps an existing database handle (used by tests with :memory:).
func OpenDB(db *sql.DB) (*Store, error) {
	if err := initializeSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Capabilities reports full durability and index support.
func (s *Store) Capabilities() Capabilities {
	return Capabilities{Durable: true, Indexed: true}
}

// DB exposes the handle for callers that need raw access (tests, vacuum).
func (s *Store) DB() *sql.DB { return s.db }

func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS service_orders (
			id            TEXT PRIMARY KEY,
			status        TEXT NOT NULL CHECK (status IN ('pending','in_progress','completed')),
			cabinets      TEXT NOT NULL DEFAULT '[]',
			sync_status   TEXT NOT NULL CHECK (sync_status IN ('synced','pending')),
			last_modified TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_service_orders_status ON service_orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_service_orders_sync_status ON service_orders(sync_status)`,

		`CREATE TABLE IF NOT EXISTS routes (
			id            TEXT PRIMARY KEY,
			number        TEXT NOT NULL,
			order_ids     TEXT NOT NULL DEFAULT '[]',
			period_start  TEXT NOT NULL,
			period_end    TEXT NOT NULL,
			last_modified TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS devices (
			asset_tag TEXT PRIMARY KEY,
			model     TEXT NOT NULL DEFAULT '',
			location  TEXT NOT NULL DEFAULT '',
			last_seen TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS offline_actions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			type        TEXT NOT NULL,
			payload     TEXT,
			timestamp   TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offline_actions_timestamp ON offline_actions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS photos (
			id         TEXT PRIMARY KEY,
			order_id   TEXT NOT NULL,
			data       BLOB NOT NULL,
			uploaded   INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_order ON photos(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_uploaded ON photos(uploaded)`,

		// Single-row sync metadata (last successful sync watermark).
		`CREATE TABLE IF NOT EXISTS sync_meta (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			last_sync_at TEXT NOT NULL DEFAULT ''
		)`,
		`INSERT OR IGNORE INTO sync_meta (id, last_sync_at) VALUES (1, '')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Fixed-width fractional seconds, so stored strings sort lexicographically
// in chronological order. RFC3339Nano trims trailing zeros and would let
// ".15Z" sort before ".1Z" under the textual ORDER BY below.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// withTx runs fn inside a transaction so each logical store operation is
// atomic with respect to crash/restart.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ---- service orders ----

func upsertOrderInTx(ctx context.Context, tx *sql.Tx, order *ServiceOrder) error {
	cabinets, err := json.Marshal(order.Cabinets)
	if err != nil {
		return fmt.Errorf("failed to marshal cabinets: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO service_orders (id, status, cabinets, sync_status, last_modified)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			cabinets = excluded.cabinets,
			sync_status = excluded.sync_status,
			last_modified = excluded.last_modified
	`, order.ID, string(order.Status), string(cabinets), string(order.SyncStatus), fmtTime(order.LastModified))
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", order.ID, err)
	}
	return nil
}

// PutOrder upserts an order by primary key.
func (s *Store) PutOrder(ctx context.Context, order *ServiceOrder) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertOrderInTx(ctx, tx, order)
	})
}

// ApplyServerOrder stores a server-provided order version, forcing
// sync_status to synced in the same write.
func (s *Store) ApplyServerOrder(ctx context.Context, order *ServiceOrder) error {
	applied := order.Clone()
	applied.SyncStatus = SyncSynced
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertOrderInTx(ctx, tx, applied)
	})
}

// MarkOrderSynced flips the sync status of a single order to synced.
func (s *Store) MarkOrderSynced(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE service_orders SET sync_status = ? WHERE id = ?`, string(SyncSynced), id)
		if err != nil {
			return fmt.Errorf("failed to mark order %s synced: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func scanOrder(scan func(dest ...any) error) (*ServiceOrder, error) {
	var order ServiceOrder
	var status, cabinets, syncStatus, lastModified string
	if err := scan(&order.ID, &status, &cabinets, &syncStatus, &lastModified); err != nil {
		return nil, err
	}
	order.Status = OrderStatus(status)
	order.SyncStatus = SyncStatus(syncStatus)
	if err := json.Unmarshal([]byte(cabinets), &order.Cabinets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cabinets for order %s: %w", order.ID, err)
	}
	t, err := parseTime(lastModified)
	if err != nil {
		return nil, err
	}
	order.LastModified = t
	return &order, nil
}

const orderColumns = `id, status, cabinets, sync_status, last_modified`

// GetOrder returns the order with the given id, or ErrNotFound.
func (s *Store) GetOrder(ctx context.Context, id string) (*ServiceOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM service_orders WHERE id = ?`, id)
	order, err := scanOrder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return order, nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]*ServiceOrder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*ServiceOrder
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

// Orders returns all stored orders ordered by id.
func (s *Store) Orders(ctx context.Context) ([]*ServiceOrder, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM service_orders ORDER BY id`)
}

// OrdersByStatus returns orders matching the given lifecycle status.
func (s *Store) OrdersByStatus(ctx context.Context, status OrderStatus) ([]*ServiceOrder, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM service_orders WHERE status = ? ORDER BY id`, string(status))
}

// OrdersBySyncStatus returns orders matching the given sync status.
func (s *Store) OrdersBySyncStatus(ctx context.Context, status SyncStatus) ([]*ServiceOrder, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM service_orders WHERE sync_status = ? ORDER BY id`, string(status))
}

// ---- routes ----

// PutRoute upserts a route by primary key.
func (s *Store) PutRoute(ctx context.Context, route *Route) error {
	orderIDs, err := json.Marshal(route.OrderIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal route order ids: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO routes (id, number, order_ids, period_start, period_end, last_modified)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				number = excluded.number,
				order_ids = excluded.order_ids,
				period_start = excluded.period_start,
				period_end = excluded.period_end,
				last_modified = excluded.last_modified
		`, route.ID, route.Number, string(orderIDs),
			fmtTime(route.PeriodStart), fmtTime(route.PeriodEnd), fmtTime(route.LastModified))
		if err != nil {
			return fmt.Errorf("failed to upsert route %s: %w", route.ID, err)
		}
		return nil
	})
}

func scanRoute(scan func(dest ...any) error) (*Route, error) {
	var route Route
	var orderIDs, periodStart, periodEnd, lastModified string
	if err := scan(&route.ID, &route.Number, &orderIDs, &periodStart, &periodEnd, &lastModified); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(orderIDs), &route.OrderIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order ids for route %s: %w", route.ID, err)
	}
	var err error
	if route.PeriodStart, err = parseTime(periodStart); err != nil {
		return nil, err
	}
	if route.PeriodEnd, err = parseTime(periodEnd); err != nil {
		return nil, err
	}
	if route.LastModified, err = parseTime(lastModified); err != nil {
		return nil, err
	}
	return &route, nil
}

const routeColumns = `id, number, order_ids, period_start, period_end, last_modified`

// GetRoute returns the route with the given id, or ErrNotFound.
func (s *Store) GetRoute(ctx context.Context, id string) (*Route, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE id = ?`, id)
	route, err := scanRoute(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route %s: %w", id, err)
	}
	return route, nil
}

// Routes returns all stored routes ordered by route number.
func (s *Store) Routes(ctx context.Context) ([]*Route, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+routeColumns+` FROM routes ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		route, err := scanRoute(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routes: %w", err)
	}
	return routes, nil
}

// ---- devices ----

// PutDevice upserts a device by asset tag.
func (s *Store) PutDevice(ctx context.Context, device *Device) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO devices (asset_tag, model, location, last_seen)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(asset_tag) DO UPDATE SET
				model = excluded.model,
				location = excluded.location,
				last_seen = excluded.last_seen
		`, device.AssetTag, device.Model, device.Location, fmtTime(device.LastSeen))
		if err != nil {
			return fmt.Errorf("failed to upsert device %s: %w", device.AssetTag, err)
		}
		return nil
	})
}

// GetDevice returns the device with the given asset tag, or ErrNotFound.
func (s *Store) GetDevice(ctx context.Context, assetTag string) (*Device, error) {
	var device Device
	var lastSeen string
	err := s.db.QueryRowContext(ctx,
		`SELECT asset_tag, model, location, last_seen FROM devices WHERE asset_tag = ?`, assetTag).
		Scan(&device.AssetTag, &device.Model, &device.Location, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", assetTag, err)
	}
	if device.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	return &device, nil
}

// Devices returns all stored devices ordered by asset tag.
func (s *Store) Devices(ctx context.Context) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_tag, model, location, last_seen FROM devices ORDER BY asset_tag`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		var device Device
		var lastSeen string
		if err := rows.Scan(&device.AssetTag, &device.Model, &device.Location, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if device.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		devices = append(devices, &device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// ---- offline actions ----

// AppendAction persists a queued action and fills in its assigned id.
func (s *Store) AppendAction(ctx context.Context, action *OfflineAction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO offline_actions (type, payload, timestamp, retry_count)
			VALUES (?, ?, ?, ?)
		`, action.Type, string(action.Payload), fmtTime(action.Timestamp), action.RetryCount)
		if err != nil {
			return fmt.Errorf("failed to append action: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read action id: %w", err)
		}
		action.ID = id
		return nil
	})
}

// ActionsByTimestamp returns every queued action, oldest first.
func (s *Store) ActionsByTimestamp(ctx context.Context) ([]*OfflineAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, payload, timestamp, retry_count
		FROM offline_actions
		ORDER BY timestamp ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []*OfflineAction
	for rows.Next() {
		var action OfflineAction
		var payload sql.NullString
		var ts string
		if err := rows.Scan(&action.ID, &action.Type, &payload, &ts, &action.RetryCount); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if payload.Valid {
			action.Payload = json.RawMessage(payload.String)
		}
		if action.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		actions = append(actions, &action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}

// DeleteAction removes a single queue entry by id.
func (s *Store) DeleteAction(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM offline_actions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete action %d: %w", id, err)
		}
		return nil
	})
}

// UpdateActionRetry persists the action's current retry counter.
func (s *Store) UpdateActionRetry(ctx context.Context, action *OfflineAction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE offline_actions SET retry_count = ? WHERE id = ?`, action.RetryCount, action.ID)
		if err != nil {
			return fmt.Errorf("failed to update retry count for action %d: %w", action.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ---- photos ----

// PutPhoto upserts a photo by id.
func (s *Store) PutPhoto(ctx context.Context, photo *Photo) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		uploaded := 0
		if photo.Uploaded {
			uploaded = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO photos (id, order_id, data, uploaded, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				order_id = excluded.order_id,
				data = excluded.data,
				uploaded = excluded.uploaded,
				created_at = excluded.created_at
		`, photo.ID, photo.OrderID, photo.Data, uploaded, fmtTime(photo.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert photo %s: %w", photo.ID, err)
		}
		return nil
	})
}

func scanPhoto(scan func(dest ...any) error) (*Photo, error) {
	var photo Photo
	var uploaded int
	var createdAt string
	if err := scan(&photo.ID, &photo.OrderID, &photo.Data, &uploaded, &createdAt); err != nil {
		return nil, err
	}
	photo.Uploaded = uploaded != 0
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	photo.CreatedAt = t
	return &photo, nil
}

const photoColumns = `id, order_id, data, uploaded, created_at`

// GetPhoto returns the photo with the given id, or ErrNotFound.
func (s *Store) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = ?`, id)
	photo, err := scanPhoto(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo %s: %w", id, err)
	}
	return photo, nil
}

func (s *Store) queryPhotos(ctx context.Context, query string, args ...any) ([]*Photo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	var photos []*Photo
	for rows.Next() {
		photo, err := scanPhoto(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}
	return photos, nil
}

// PhotosByOrder returns photos owned by the given order, oldest first.
func (s *Store) PhotosByOrder(ctx context.Context, orderID string) ([]*Photo, error) {
	return s.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE order_id = ? ORDER BY created_at ASC, id ASC`, orderID)
}

// PhotosByUploadState returns photos filtered by upload flag, oldest first.
func (s *Store) PhotosByUploadState(ctx context.Context, uploaded bool) ([]*Photo, error) {
	flag := 0
	if uploaded {
		flag = 1
	}
	return s.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE uploaded = ? ORDER BY created_at ASC, id ASC`, flag)
}

// MarkPhotoUploaded flips the uploaded flag for a photo.
func (s *Store) MarkPhotoUploaded(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE photos SET uploaded = 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to mark photo %s uploaded: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeletePhoto removes a photo by id.
func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete photo %s: %w", id, err)
		}
		return nil
	})
}

// ---- sync metadata ----

// LastSyncAt returns the last successful sync watermark, or the zero time
// when no sync has completed yet.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT last_sync_at FROM sync_meta WHERE id = 1`).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync timestamp: %w", err)
	}
	return parseTime(raw)
}

// SetLastSyncAt persists the last successful sync watermark.
func (s *Store) SetLastSyncAt(ctx context.Context, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sync_meta SET last_sync_at = ? WHERE id = 1`, fmtTime(at)); err != nil {
			return fmt.Errorf("failed to set last sync timestamp: %w", err)
		}
		return nil
	})
}
