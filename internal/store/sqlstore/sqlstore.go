// Package sqlstore persists sessions to DuckDB, SQLite or PostgreSQL through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/store"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/internal/version"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Driver names a database/sql driver.
type Driver string

const (
	DriverDuckDB   Driver = "duckdb"
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "pgx"
)

// Config selects the database.
type Config struct {
	Driver Driver `yaml:"driver" json:"driver" validate:"required,oneof=duckdb sqlite3 pgx" jsonschema:"title=Driver,enum=duckdb,enum=sqlite3,enum=pgx"`
	// DSN is the data source name. Empty means an in-memory database for duckdb and sqlite3.
	DSN string `yaml:"dsn" json:"dsn" jsonschema:"title=DSN" keychain:"true"`
}

// SQLStore implements store.Store.
type SQLStore struct {
	db     *sql.DB
	driver Driver
	sb     squirrel.StatementBuilderType
	logger *logger.Logger
}

var _ store.Store = (*SQLStore)(nil)

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*SQLStore, error) {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid store config", err)
	}

	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New(errors.ErrCodeMissingParameter, "postgres dsn is required")
		}
	case DriverDuckDB:
	}

	db, err := sql.Open(string(cfg.Driver), dsn)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreNotReady, err, "failed to open %s database", cfg.Driver)
	}

	if cfg.Driver == DriverSQLite {
		// Every sqlite connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{
		db:     db,
		driver: cfg.Driver,
		sb:     squirrel.StatementBuilder.PlaceholderFormat(placeholderFor(cfg.Driver)),
		logger: log,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()

		return nil, err
	}

	if err := s.checkVersion(ctx, version.Version); err != nil {
		db.Close()

		return nil, err
	}

	log.Info("Store opened", zap.String("driver", string(cfg.Driver)))

	return s, nil
}

// placeholderFor returns the bind parameter style of the driver.
func placeholderFor(driver Driver) squirrel.PlaceholderFormat {
	if driver == DriverPostgres {
		return squirrel.Dollar
	}

	return squirrel.Question
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeStoreNotReady, "database is not reachable", err)
	}

	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(errors.ErrCodeStoreNotReady, "failed to create schema", err)
		}
	}

	for _, col := range addedColumns {
		probe, _, err := s.sb.Select(col.column).From(col.table).Limit(1).ToSql()
		if err != nil {
			return errors.Wrap(errors.ErrCodeStoreNotReady, "failed to build column check", err)
		}

		rows, err := s.db.QueryContext(ctx, probe)
		if err == nil {
			rows.Close()
			continue
		}

		if _, err := s.db.ExecContext(ctx, "ALTER TABLE "+col.table+" ADD COLUMN "+col.column+" "+col.definition); err != nil {
			return errors.Wrapf(errors.ErrCodeStoreNotReady, err, "failed to add %s.%s", col.table, col.column)
		}
		s.logger.Info("Store column added", zap.String("table", col.table), zap.String("column", col.column))
	}

	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveSession implements store.Store.
func (s *SQLStore) SaveSession(ctx context.Context, session *types.Session, events []types.Event) error {
	configJSON, err := json.Marshal(session.Config)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to encode session config", err)
	}

	var activeOrder any
	if session.ActiveOrder != nil {
		orderJSON, err := json.Marshal(session.ActiveOrder)
		if err != nil {
			return errors.Wrap(errors.ErrCodeStoreFailed, "failed to encode twap order", err)
		}
		activeOrder = string(orderJSON)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = s.sb.Insert("sessions").
		Columns(sessionColumns...).
		Values(
			session.ID, session.Config.SymbolCode, session.Config.SymbolName, string(configJSON),
			string(session.Status), session.CurrentStage,
			nullDecimal(session.AnchorPrice), nullDecimal(session.LastPrice), nullTime(session.LastPriceAt),
			activeOrder, session.FeedDown, session.EventSeq, session.CreatedAt.UnixNano(),
			nullTime(session.StartedAt), nullTime(session.CompletedAt),
		).
		Suffix(onConflict([]string{"id"}, sessionColumns[1:])).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to save session %s", session.ID)
	}

	for _, stage := range session.Stages {
		_, err = s.sb.Insert("stages").
			Columns(stageColumns...).
			Values(
				session.ID, stage.Number, stage.TargetReturnPct.String(), stage.DropPct.String(),
				stage.AllocationPct.String(), stage.AllocationAmount.String(), nullDecimal(stage.ExpectedPrice),
				string(stage.Status), stage.TradeFailed, nullTime(stage.StartedAt), nullTime(stage.CompletedAt),
			).
			Suffix(onConflict([]string{"session_id", "stage_number"}, stageColumns[2:])).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to save stage %d of %s", stage.Number, session.ID)
		}
	}

	// A reconfigured ready session may have fewer stages than before.
	_, err = s.sb.Delete("stages").
		Where(squirrel.And{squirrel.Eq{"session_id": session.ID}, squirrel.Gt{"stage_number": len(session.Stages)}}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to trim stages of %s", session.ID)
	}

	for _, pos := range session.Positions {
		_, err = s.sb.Insert("positions").
			Columns(positionColumns...).
			Values(
				session.ID, pos.StageNumber, pos.BuyPrice.String(), pos.Quantity.String(), pos.BuyTime.UnixNano(),
				pos.SellTargetPrice.String(), nullDecimal(pos.SellPrice), nullTime(pos.SellTime),
				nullDecimal(pos.RealizedProfit), string(pos.Status),
			).
			Suffix(onConflict([]string{"session_id", "stage_number"}, []string{"sell_price", "sell_time", "realized_profit", "status"})).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to save position %d of %s", pos.StageNumber, session.ID)
		}
	}

	for _, event := range events {
		_, err = s.sb.Insert("events").
			Columns(eventColumns...).
			Values(
				event.ID, event.SessionID, event.Sequence, string(event.Kind), event.StageNumber,
				nullDecimal(event.Price), nullDecimal(event.Quantity), event.Message, event.CreatedAt.UnixNano(),
			).
			Suffix("ON CONFLICT (id) DO NOTHING").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to append event %d of %s", event.Sequence, session.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to commit session %s", session.ID)
	}

	return nil
}

// GetSession implements store.Store.
func (s *SQLStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	sessions, err := s.load(ctx, squirrel.Eq{"id": id}, squirrel.Eq{"session_id": id})
	if err != nil {
		return nil, err
	}

	if len(sessions) == 0 {
		return nil, errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}

	return sessions[0], nil
}

// LoadSessions implements store.Store.
func (s *SQLStore) LoadSessions(ctx context.Context) ([]*types.Session, error) {
	return s.load(ctx, nil, nil)
}

// DeleteSession implements store.Store.
func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"events", "positions", "stages"} {
		if _, err := s.sb.Delete(table).Where(squirrel.Eq{"session_id": id}).RunWith(tx).ExecContext(ctx); err != nil {
			return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to delete %s of %s", table, id)
		}
	}

	res, err := s.sb.Delete("sessions").Where(squirrel.Eq{"id": id}).RunWith(tx).ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to delete session %s", id)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to commit delete of %s", id)
	}

	return nil
}

// Events implements store.Store.
func (s *SQLStore) Events(ctx context.Context, sessionID string) ([]types.Event, error) {
	query, args, err := s.sb.Select(eventColumns...).
		From("events").
		Where(squirrel.Eq{"session_id": sessionID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to build events query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to query events of %s", sessionID)
	}
	defer rows.Close()

	events := []types.Event{}
	for rows.Next() {
		var (
			e         types.Event
			kind      string
			price     sql.NullString
			quantity  sql.NullString
			createdAt int64
		)

		if err := rows.Scan(&e.ID, &e.SessionID, &e.Sequence, &kind, &e.StageNumber, &price, &quantity, &e.Message, &createdAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to scan event", err)
		}

		e.Kind = types.EventKind(kind)
		e.CreatedAt = fromNanos(createdAt)
		if e.Price, err = decimalFrom(price); err != nil {
			return nil, err
		}
		if e.Quantity, err = decimalFrom(quantity); err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to read events", err)
	}

	return events, nil
}

// ExportParquet writes every table to dir as parquet files. Only DuckDB supports it.
func (s *SQLStore) ExportParquet(ctx context.Context, dir string) ([]string, error) {
	if s.driver != DriverDuckDB {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "parquet export requires the duckdb driver, got %s", s.driver)
	}

	var paths []string
	for _, table := range []string{"sessions", "stages", "positions", "events"} {
		path := filepath.Join(dir, table+".parquet")
		stmt := fmt.Sprintf("COPY (SELECT * FROM %s) TO '%s' (FORMAT PARQUET)", table, strings.ReplaceAll(path, "'", "''"))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to export %s", table)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func (s *SQLStore) load(ctx context.Context, sessionWhere, childWhere squirrel.Sqlizer) ([]*types.Session, error) {
	sessions, err := s.loadSessions(ctx, sessionWhere)
	if err != nil || len(sessions) == 0 {
		return sessions, err
	}

	byID := make(map[string]*types.Session, len(sessions))
	for _, session := range sessions {
		byID[session.ID] = session
	}

	if err := s.loadStages(ctx, childWhere, byID); err != nil {
		return nil, err
	}

	if err := s.loadPositions(ctx, childWhere, byID); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (s *SQLStore) loadSessions(ctx context.Context, where squirrel.Sqlizer) ([]*types.Session, error) {
	builder := s.sb.Select(sessionColumns...).From("sessions").OrderBy("created_at DESC", "id")
	if where != nil {
		builder = builder.Where(where)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to build sessions query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to query sessions", err)
	}
	defer rows.Close()

	sessions := []*types.Session{}
	for rows.Next() {
		var (
			session                             types.Session
			symbolCode, symbolName, configJSON  string
			status                              string
			anchor, lastPrice, activeOrder      sql.NullString
			lastPriceAt, startedAt, completedAt sql.NullInt64
			createdAt                           int64
		)

		if err := rows.Scan(
			&session.ID, &symbolCode, &symbolName, &configJSON, &status, &session.CurrentStage,
			&anchor, &lastPrice, &lastPriceAt, &activeOrder, &session.FeedDown,
			&session.EventSeq, &createdAt, &startedAt, &completedAt,
		); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to scan session", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &session.Config); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to decode config of %s", session.ID)
		}

		if activeOrder.Valid {
			var order types.TwapOrder
			if err := json.Unmarshal([]byte(activeOrder.String), &order); err != nil {
				return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to decode twap order of %s", session.ID)
			}
			session.ActiveOrder = &order
		}

		session.Status = types.SessionStatus(status)
		session.CreatedAt = fromNanos(createdAt)
		session.LastPriceAt = timeFrom(lastPriceAt)
		session.StartedAt = timeFrom(startedAt)
		session.CompletedAt = timeFrom(completedAt)
		if session.AnchorPrice, err = decimalFrom(anchor); err != nil {
			return nil, err
		}
		if session.LastPrice, err = decimalFrom(lastPrice); err != nil {
			return nil, err
		}
		session.Stages = []types.Stage{}
		session.Positions = []types.Position{}

		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to read sessions", err)
	}

	return sessions, nil
}

func (s *SQLStore) loadStages(ctx context.Context, where squirrel.Sqlizer, byID map[string]*types.Session) error {
	builder := s.sb.Select(stageColumns...).From("stages").OrderBy("session_id", "stage_number")
	if where != nil {
		builder = builder.Where(where)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to build stages query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to query stages", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sessionID                           string
			stage                               types.Stage
			target, drop, allocPct, allocAmount string
			expected                            sql.NullString
			status                              string
			startedAt, completedAt              sql.NullInt64
		)

		if err := rows.Scan(&sessionID, &stage.Number, &target, &drop, &allocPct, &allocAmount,
			&expected, &status, &stage.TradeFailed, &startedAt, &completedAt); err != nil {
			return errors.Wrap(errors.ErrCodeStoreFailed, "failed to scan stage", err)
		}

		values, err := decimals(target, drop, allocPct, allocAmount)
		if err != nil {
			return err
		}
		stage.TargetReturnPct, stage.DropPct, stage.AllocationPct, stage.AllocationAmount = values[0], values[1], values[2], values[3]
		if stage.ExpectedPrice, err = decimalFrom(expected); err != nil {
			return err
		}
		stage.Status = types.StageStatus(status)
		stage.StartedAt = timeFrom(startedAt)
		stage.CompletedAt = timeFrom(completedAt)

		if session, ok := byID[sessionID]; ok {
			session.Stages = append(session.Stages, stage)
		}
	}

	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to read stages", err)
	}

	return nil
}

func (s *SQLStore) loadPositions(ctx context.Context, where squirrel.Sqlizer, byID map[string]*types.Session) error {
	builder := s.sb.Select(positionColumns...).From("positions").OrderBy("session_id", "stage_number")
	if where != nil {
		builder = builder.Where(where)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to build positions query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to query positions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sessionID                  string
			pos                        types.Position
			buyPrice, quantity, target string
			sellPrice, realized        sql.NullString
			buyTime                    int64
			sellTime                   sql.NullInt64
			status                     string
		)

		if err := rows.Scan(&sessionID, &pos.StageNumber, &buyPrice, &quantity, &buyTime, &target,
			&sellPrice, &sellTime, &realized, &status); err != nil {
			return errors.Wrap(errors.ErrCodeStoreFailed, "failed to scan position", err)
		}

		values, err := decimals(buyPrice, quantity, target)
		if err != nil {
			return err
		}
		pos.BuyPrice, pos.Quantity, pos.SellTargetPrice = values[0], values[1], values[2]
		if pos.SellPrice, err = decimalFrom(sellPrice); err != nil {
			return err
		}
		if pos.RealizedProfit, err = decimalFrom(realized); err != nil {
			return err
		}
		pos.BuyTime = fromNanos(buyTime)
		pos.SellTime = timeFrom(sellTime)
		pos.Status = types.PositionStatus(status)

		if session, ok := byID[sessionID]; ok {
			session.Positions = append(session.Positions, pos)
		}
	}

	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to read positions", err)
	}

	return nil
}

func onConflict(keys, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}

	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
}

func nullDecimal(v optional.Option[decimal.Decimal]) any {
	if v.IsNone() {
		return nil
	}

	return v.Unwrap().String()
}

func nullTime(v optional.Option[time.Time]) any {
	if v.IsNone() {
		return nil
	}

	return v.Unwrap().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func timeFrom(v sql.NullInt64) optional.Option[time.Time] {
	if !v.Valid {
		return optional.None[time.Time]()
	}

	return optional.Some(fromNanos(v.Int64))
}

func decimalFrom(v sql.NullString) (optional.Option[decimal.Decimal], error) {
	if !v.Valid {
		return optional.None[decimal.Decimal](), nil
	}

	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "invalid decimal %q", v.String)
	}

	return optional.Some(d), nil
}

func decimals(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "invalid decimal %q", v)
		}
		out[i] = d
	}

	return out, nil
}
