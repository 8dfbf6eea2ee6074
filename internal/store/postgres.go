package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hydrosense/control-plane/internal/model"
)

// Postgres backs the persistence port with the fleet database. Device state
// lives in a JSONB column so the control plane and the CRUD service share
// one document shape; command audit records get their own table.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens the connection pool and verifies it.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// Ping is used by the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) GetDevice(ctx context.Context, id string) (model.DeviceState, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT state FROM devices WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.DeviceState{}, ErrDeviceNotFound
	}
	if err != nil {
		return model.DeviceState{}, fmt.Errorf("get device %s: %w", id, err)
	}
	var d model.DeviceState
	if err := json.Unmarshal(raw, &d); err != nil {
		return model.DeviceState{}, fmt.Errorf("decode device %s: %w", id, err)
	}
	d.DeviceID = id
	return d, nil
}

// UpsertDevice applies the patch inside a transaction so concurrent patches
// from the sensor and schedule paths cannot lose fields.
func (p *Postgres) UpsertDevice(ctx context.Context, id string, patch model.DevicePatch) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert device %s: begin: %w", id, err)
	}
	defer tx.Rollback()

	var raw []byte
	d := model.DeviceState{DeviceID: id}
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM devices WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// new device row
	case err != nil:
		return fmt.Errorf("upsert device %s: select: %w", id, err)
	default:
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("upsert device %s: decode: %w", id, err)
		}
		d.DeviceID = id
	}

	patch.Apply(&d)
	next, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("upsert device %s: encode: %w", id, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (id, state, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		id, next)
	if err != nil {
		return fmt.Errorf("upsert device %s: write: %w", id, err)
	}
	return tx.Commit()
}

func (p *Postgres) CreateCommandRecord(ctx context.Context, rec model.CommandRecord) error {
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return fmt.Errorf("create command %s: encode params: %w", rec.ID, err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO command_records (id, device_id, command_type, parameters, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.DeviceID, rec.CommandType, params, string(rec.Status), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create command %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) UpdateCommandRecord(ctx context.Context, id string, patch model.CommandPatch) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE command_records
		SET status = COALESCE($2, status),
		    executed_at = COALESCE($3, executed_at)
		WHERE id = $1`,
		id, statusArg(patch.Status), timeArg(patch.ExecutedAt))
	if err != nil {
		return fmt.Errorf("update command %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCommandNotFound
	}
	return nil
}

func (p *Postgres) ListDevicesInScheduleMode(ctx context.Context) ([]model.DeviceState, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, state FROM devices WHERE state->>'watering_mode' = $1`,
		string(model.ModeSchedule))
	if err != nil {
		return nil, fmt.Errorf("list schedule devices: %w", err)
	}
	defer rows.Close()

	var out []model.DeviceState
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("list schedule devices: scan: %w", err)
		}
		var d model.DeviceState
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("list schedule devices: decode %s: %w", id, err)
		}
		d.DeviceID = id
		out = append(out, d)
	}
	return out, rows.Err()
}

func statusArg(s *model.CommandStatus) interface{} {
	if s == nil {
		return nil
	}
	return string(*s)
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
