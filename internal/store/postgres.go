package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"valve-gateway/internal/config"
	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/models"
)

const (
	tableTelemetry  = "telemetry"
	tableOperations = "valve_operations"
	tableAlerts     = "system_alerts"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS telemetry (
		id BIGSERIAL PRIMARY KEY,
		ts_utc BIGINT NOT NULL,
		valve_state VARCHAR(10) NOT NULL,
		p1 DOUBLE PRECISION NOT NULL,
		p2 DOUBLE PRECISION NOT NULL,
		c_src DOUBLE PRECISION NOT NULL,
		c_dst DOUBLE PRECISION NOT NULL,
		em SMALLINT NOT NULL DEFAULT 0,
		raw_line TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_ts ON telemetry (ts_utc)`,
	`CREATE TABLE IF NOT EXISTS valve_operations (
		id TEXT PRIMARY KEY,
		ts_utc BIGINT NOT NULL,
		command VARCHAR(20) NOT NULL,
		issuer_user VARCHAR(50),
		result VARCHAR(20) NOT NULL,
		message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_valve_operations_ts ON valve_operations (ts_utc)`,
	`CREATE TABLE IF NOT EXISTS system_alerts (
		id BIGSERIAL PRIMARY KEY,
		ts_utc BIGINT NOT NULL,
		alert_type VARCHAR(50) NOT NULL,
		message TEXT NOT NULL,
		priority VARCHAR(20) NOT NULL DEFAULT 'MEDIUM',
		acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
		alert_metadata JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_system_alerts_ts ON system_alerts (ts_utc)`,
}

const telemetryColumns = "ts_utc, valve_state, p1, p2, c_src, c_dst, em, raw_line"

// Postgres stores rows through database/sql and lib/pq
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects and pings the database
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, gwerrors.NewStoreError("open", err, "")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, gwerrors.NewStoreError("ping", err, "")
	}

	logger.LogInfo("🗄️ Connected to Postgres")
	return NewPostgres(db), nil
}

// NewPostgres wraps an open handle
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates missing tables and indexes
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return gwerrors.NewStoreError("ensure_schema", err, "")
		}
	}
	return nil
}

func (p *Postgres) SaveTelemetry(ctx context.Context, s models.TelemetrySample) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO telemetry (`+telemetryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.Timestamp, string(s.Valve), s.P1, s.P2, s.CSrc, s.CDst, boolToInt(s.Emergency), nullString(s.RawLine))
	if err != nil {
		return gwerrors.NewStoreError("insert", err, tableTelemetry)
	}
	return nil
}

func (p *Postgres) LatestTelemetry(ctx context.Context) (models.TelemetrySample, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+telemetryColumns+` FROM telemetry ORDER BY ts_utc DESC, id DESC LIMIT 1`)
	s, err := scanTelemetry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TelemetrySample{}, ErrNotFound
	}
	if err != nil {
		return models.TelemetrySample{}, gwerrors.NewStoreError("select", err, tableTelemetry)
	}
	return s, nil
}

func (p *Postgres) TelemetryHistory(ctx context.Context, limit int) ([]models.TelemetrySample, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+telemetryColumns+` FROM telemetry ORDER BY ts_utc DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, gwerrors.NewStoreError("select", err, tableTelemetry)
	}
	return collectTelemetry(rows)
}

func (p *Postgres) TelemetryRange(ctx context.Context, from, to int64) ([]models.TelemetrySample, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+telemetryColumns+` FROM telemetry WHERE ts_utc >= $1 AND ts_utc <= $2 ORDER BY ts_utc ASC, id ASC`,
		from, to)
	if err != nil {
		return nil, gwerrors.NewStoreError("select", err, tableTelemetry)
	}
	return collectTelemetry(rows)
}

func (p *Postgres) SaveCommandResult(ctx context.Context, r models.CommandResult) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO valve_operations (id, ts_utc, command, issuer_user, result, message) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Timestamp.Unix(), string(r.Command), nullString(r.Principal), string(r.Outcome), nullString(r.Message))
	if err != nil {
		return gwerrors.NewStoreError("insert", err, tableOperations)
	}
	return nil
}

func (p *Postgres) CommandResult(ctx context.Context, id string) (models.CommandResult, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, ts_utc, command, issuer_user, result, message FROM valve_operations WHERE id = $1`, id)
	r, err := scanCommandResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CommandResult{}, ErrNotFound
	}
	if err != nil {
		return models.CommandResult{}, gwerrors.NewStoreError("select", err, tableOperations)
	}
	return r, nil
}

func (p *Postgres) RecentCommandResults(ctx context.Context, limit int) ([]models.CommandResult, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, ts_utc, command, issuer_user, result, message FROM valve_operations ORDER BY ts_utc DESC LIMIT $1`, limit)
	if err != nil {
		return nil, gwerrors.NewStoreError("select", err, tableOperations)
	}
	defer rows.Close()

	out := make([]models.CommandResult, 0)
	for rows.Next() {
		r, err := scanCommandResult(rows)
		if err != nil {
			return nil, gwerrors.NewStoreError("scan", err, tableOperations)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerrors.NewStoreError("select", err, tableOperations)
	}
	return out, nil
}

func (p *Postgres) SaveAlert(ctx context.Context, a models.Alert) (models.Alert, error) {
	var meta any
	if a.Metadata != nil {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return models.Alert{}, gwerrors.NewStoreError("encode_metadata", err, tableAlerts)
		}
		meta = b
	}

	err := p.db.QueryRowContext(ctx,
		`INSERT INTO system_alerts (ts_utc, alert_type, message, priority, acknowledged, alert_metadata) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.Timestamp.Unix(), a.Type, a.Message, string(a.Priority), a.Acknowledged, meta).Scan(&a.ID)
	if err != nil {
		return models.Alert{}, gwerrors.NewStoreError("insert", err, tableAlerts)
	}
	return a, nil
}

func (p *Postgres) Alerts(ctx context.Context, q models.AlertQuery) ([]models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if q.UnacknowledgedOnly {
		where = append(where, "acknowledged = FALSE")
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since.Unix())
		where = append(where, fmt.Sprintf("ts_utc >= $%d", len(args)))
	}

	query := `SELECT id, ts_utc, alert_type, message, priority, acknowledged, alert_metadata FROM system_alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_utc DESC, id DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gwerrors.NewStoreError("select", err, tableAlerts)
	}
	defer rows.Close()

	out := make([]models.Alert, 0)
	for rows.Next() {
		var (
			a        models.Alert
			ts       int64
			priority string
			meta     []byte
		)
		if err := rows.Scan(&a.ID, &ts, &a.Type, &a.Message, &priority, &a.Acknowledged, &meta); err != nil {
			return nil, gwerrors.NewStoreError("scan", err, tableAlerts)
		}
		a.Timestamp = time.Unix(ts, 0).UTC()
		a.Priority = models.Priority(priority)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				logger.LogWarn("Alert %d has unreadable metadata: %v", a.ID, err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerrors.NewStoreError("select", err, tableAlerts)
	}
	return out, nil
}

func (p *Postgres) AcknowledgeAlert(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE system_alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return gwerrors.NewStoreError("update", err, tableAlerts)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return gwerrors.NewStoreError("update", err, tableAlerts)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTelemetry(row scanner) (models.TelemetrySample, error) {
	var (
		s     models.TelemetrySample
		valve string
		em    int
		raw   sql.NullString
	)
	if err := row.Scan(&s.Timestamp, &valve, &s.P1, &s.P2, &s.CSrc, &s.CDst, &em, &raw); err != nil {
		return models.TelemetrySample{}, err
	}
	s.Valve = models.ValveState(valve)
	s.Emergency = em != 0
	s.RawLine = raw.String
	return s, nil
}

func collectTelemetry(rows *sql.Rows) ([]models.TelemetrySample, error) {
	defer rows.Close()

	out := make([]models.TelemetrySample, 0)
	for rows.Next() {
		s, err := scanTelemetry(rows)
		if err != nil {
			return nil, gwerrors.NewStoreError("scan", err, tableTelemetry)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerrors.NewStoreError("select", err, tableTelemetry)
	}
	return out, nil
}

func scanCommandResult(row scanner) (models.CommandResult, error) {
	var (
		r                  models.CommandResult
		ts                 int64
		command, outcome   string
		principal, message sql.NullString
	)
	if err := row.Scan(&r.ID, &ts, &command, &principal, &outcome, &message); err != nil {
		return models.CommandResult{}, err
	}
	r.Timestamp = time.Unix(ts, 0).UTC()
	r.Command = models.CommandName(command)
	r.Outcome = models.Outcome(outcome)
	r.Principal = principal.String
	r.Message = message.String
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*Postgres)(nil)
